package controller

import (
	"context"
	"syscall"
	"time"

	"github.com/cuemby/workerman/pkg/rendezvous"
	"github.com/cuemby/workerman/pkg/werrors"
)

// Stop signals the running master to stop every worker and exit.
// Non-graceful (INT) kills workers immediately; graceful (QUIT) first
// waits for the master's drain handshake and reports per-worker
// progress as each one exits.
func (c *Controller) Stop(graceful bool) error {
	pid, err := c.readMasterPID()
	if err != nil {
		return err
	}

	sig := syscall.SIGINT
	if graceful {
		sig = syscall.SIGQUIT
	}
	if err := c.signal(pid, sig); err != nil {
		return err
	}

	if graceful {
		if err := c.drain(context.Background()); err != nil {
			return err
		}
	}

	return c.dir.WaitForDelete(context.Background(), rendezvous.ProcessPID)
}

// Restart re-forks every worker in place without dropping a listening
// socket. Non-graceful (USR1) replaces workers immediately; graceful
// (USR2) drains each one the same way Stop does, then waits for the
// master to publish a fresh restart marker.
func (c *Controller) Restart(graceful bool) error {
	pid, err := c.readMasterPID()
	if err != nil {
		return err
	}

	c.dir.Delete(rendezvous.RestartFile)
	sentAt := time.Now()

	sig := syscall.SIGUSR1
	if graceful {
		sig = syscall.SIGUSR2
	}
	if err := c.signal(pid, sig); err != nil {
		return err
	}

	if graceful {
		if err := c.drain(context.Background()); err != nil {
			return err
		}
	}

	return c.waitRestarted(context.Background(), sentAt)
}

// drain waits for the master's synchronous handshake file (written
// before the signal goes out, per the graceful-drain redesign in
// pkg/master/control.go), then watches each listed hash file disappear
// one at a time, ticking a progress bar as workers exit.
func (c *Controller) drain(ctx context.Context) error {
	if err := c.dir.WaitForCreate(ctx, rendezvous.ShutdownFile); err != nil {
		return err
	}
	var hashes []string
	if err := c.dir.ReadJSON(rendezvous.ShutdownFile, &hashes); err != nil {
		return err
	}

	bar := c.out.ProgressBar(len(hashes), 0)
	for _, h := range hashes {
		if err := c.dir.WaitForDelete(ctx, h); err != nil {
			return err
		}
		bar.Tick()
	}
	bar.Finish()

	return c.dir.Delete(rendezvous.ShutdownFile)
}

func (c *Controller) waitRestarted(ctx context.Context, sentAt time.Time) error {
	if err := c.dir.WaitForCreate(ctx, rendezvous.RestartFile); err != nil {
		return err
	}
	var unixTS int64
	if err := c.dir.ReadJSON(rendezvous.RestartFile, &unixTS); err != nil {
		return err
	}
	// The marker has one-second resolution, so compare against the send
	// time truncated to the same resolution.
	if time.Unix(unixTS, 0).Before(sentAt.Truncate(time.Second)) {
		return werrors.NewLifecycleError("restart marker is stale")
	}
	return nil
}
