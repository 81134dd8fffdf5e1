// Package controller is the CLI-side driver: the short-lived process
// invoked by the operator for start/stop/restart/status. It never
// shares memory with the master — every interaction is a POSIX signal
// or a rendezvous file under the working directory.
package controller

import (
	"syscall"
	"time"

	"github.com/cuemby/workerman/pkg/config"
	"github.com/cuemby/workerman/pkg/listener"
	"github.com/cuemby/workerman/pkg/output"
	"github.com/cuemby/workerman/pkg/rendezvous"
	"github.com/cuemby/workerman/pkg/signalbus"
	"github.com/cuemby/workerman/pkg/werrors"
)

// daemonizePollSteps/Every bound how long Start waits for a detached
// master to write process.pid: 10 steps of 500ms.
const (
	daemonizePollSteps = 10
	daemonizePollEvery = 500 * time.Millisecond
)

// Config wires a start operation to the listener set and process
// identity the master should run with.
type Config struct {
	Name       string
	WorkingDir string
	StdErrPath string
	Daemon     bool
	Listeners  []config.ListenerSpec
}

// Controller is a thin coordination layer over a rendezvous.Dir; it
// holds no master/worker state of its own.
type Controller struct {
	dir *rendezvous.Dir
	out *output.Output

	// signal is signalbus.Dispatch by default; tests substitute a stub
	// so Stop/Restart/Status can be exercised without sending a real
	// kill() to an arbitrary pid.
	signal func(pid int, sig syscall.Signal) error

	// reexec launches the master in daemon mode; overridden in tests so
	// Start's daemon branch never actually forks a process.
	reexec func(cfg Config, dir *rendezvous.Dir) error
}

// New returns a Controller rooted at dir, reporting through out.
func New(dir *rendezvous.Dir, out *output.Output) *Controller {
	return &Controller{
		dir:    dir,
		out:    out,
		signal: signalbus.Dispatch,
		reexec: spawnDaemon,
	}
}

// buildListeners constructs the in-process listener registry from cfg,
// shared between the foreground-start path and the detached grandchild
// of a daemon start.
func buildListeners(specs []config.ListenerSpec) []*listener.Listener {
	file := &config.File{Listeners: specs}
	cfgs := file.ListenerConfigs()
	listeners := make([]*listener.Listener, len(cfgs))
	for i, c := range cfgs {
		listeners[i] = listener.New(c)
	}
	return listeners
}

func (c *Controller) running() bool {
	return c.dir.Exists(rendezvous.ProcessPID)
}

func (c *Controller) notRunning() error {
	return werrors.NewLifecycleError("workerman is not running")
}

func (c *Controller) readMasterPID() (int, error) {
	pid, err := c.dir.ReadPID(rendezvous.ProcessPID)
	if err != nil {
		return 0, c.notRunning()
	}
	return pid, nil
}

// readMasterPIDOr behaves like readMasterPID but substitutes notRunningErr
// for the generic not-running message, so each caller can surface the
// scenario-specific text an operator sees on stderr.
func (c *Controller) readMasterPIDOr(notRunningErr error) (int, error) {
	pid, err := c.dir.ReadPID(rendezvous.ProcessPID)
	if err != nil {
		return 0, notRunningErr
	}
	return pid, nil
}
