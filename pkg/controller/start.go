package controller

import (
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/cuemby/workerman/pkg/log"
	"github.com/cuemby/workerman/pkg/master"
	"github.com/cuemby/workerman/pkg/rendezvous"
	"github.com/cuemby/workerman/pkg/werrors"
)

// envForeground guards against a daemonized re-exec daemonizing again:
// set on the detached grandchild so it runs the master directly
// instead of re-entering the fork-and-exit dance.
const envForeground = "WORKERMAN_FOREGROUND"

// IsForeground reports whether this process is the detached
// grandchild of a daemon start, already session-leader and already
// past the fork step. cmd/workerman doesn't need this directly — it's
// consulted only by Start itself — but it's exported so a future
// entry point can skip re-daemonizing defensively too.
func IsForeground() bool {
	return os.Getenv(envForeground) == "1"
}

// Start runs the master. In foreground mode it blocks in this process
// until the master exits. In daemon mode it re-execs itself detached
// (the Go-idiomatic stand-in for the classic fork/setsid/fork dance:
// a single re-exec with a new session, guarded by envForeground so the
// detached copy doesn't try to daemonize a second time) and returns
// once process.pid appears or the poll window lapses.
func (c *Controller) Start(cfg Config) error {
	if c.running() {
		return werrors.NewLifecycleError("Cannot start workerman, workerman already running.")
	}

	if IsForeground() {
		// This process is the detached grandchild spawnDaemon re-exec'd:
		// it already lost its controlling terminal, so everything from
		// here on must go through the post-daemonize sinks.
		c.out.Daemonize()
		return runForeground(cfg, c.dir)
	}
	if !cfg.Daemon {
		return runForeground(cfg, c.dir)
	}
	return c.startDaemon(cfg)
}

func runForeground(cfg Config, dir *rendezvous.Dir) error {
	m := master.New(master.Config{
		Name:      cfg.Name,
		Listeners: buildListeners(cfg.Listeners),
		Dir:       dir,
		Daemon:    cfg.Daemon,
	})
	return m.Start()
}

func (c *Controller) startDaemon(cfg Config) error {
	if err := c.reexec(cfg, c.dir); err != nil {
		return err
	}
	for i := 0; i < daemonizePollSteps; i++ {
		if c.running() {
			return nil
		}
		time.Sleep(daemonizePollEvery)
	}
	return werrors.NewLifecycleError("workerman did not start within the expected time")
}

// spawnDaemon is the real daemon launcher: re-exec this binary with the
// same arguments, a new session, and envForeground set, pointing its
// stdout/stderr at cfg.StdErrPath (or /dev/null).
func spawnDaemon(cfg Config, dir *rendezvous.Dir) error {
	exe, err := os.Executable()
	if err != nil {
		return werrors.NewForkError(err, "resolve own executable path")
	}

	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Env = append(os.Environ(), envForeground+"=1")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	out, err := daemonOutput(cfg.StdErrPath)
	if err != nil {
		return err
	}
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Start(); err != nil {
		return werrors.NewForkError(err, "start daemon process")
	}
	return cmd.Process.Release()
}

func daemonOutput(path string) (*os.File, error) {
	if path == "" {
		log.Warn("no std_error_path configured; daemon output will be discarded")
		return os.OpenFile(os.DevNull, os.O_RDWR, 0)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, &werrors.FileIOError{Path: path, Op: "open", Cause: err}
	}
	return f, nil
}
