package master

import (
	"os"
	"os/exec"
	"time"

	"github.com/cuemby/workerman/pkg/bootstrap"
	"github.com/cuemby/workerman/pkg/listener"
	"github.com/cuemby/workerman/pkg/metrics"
	"github.com/cuemby/workerman/pkg/types"
	"github.com/cuemby/workerman/pkg/werrors"
)

// forkWorker spawns a brand-new worker (fresh id, fresh hash, restart
// count 0) bound to l and registers its WorkerRecord.
func (m *Master) forkWorker(l *listener.Listener) error {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.mu.Unlock()

	return m.spawnFn(l, id, types.NewHash(), 0)
}

// spawn execs a worker process bound to l via self-reexec, passing
// its identity through environment variables and every pre-bound
// listener fd through ExtraFiles (see SPEC_FULL.md "FORK MODEL
// TRANSLATION"). It registers the resulting WorkerRecord and starts a
// reaper goroutine that feeds m.reap when the process exits.
func (m *Master) spawn(l *listener.Listener, id int, hash string, restartCount int) error {
	idx := m.listenerIndex(l)
	if idx < 0 {
		return werrors.NewForkError(nil, "listener not registered with this master")
	}

	exe, err := os.Executable()
	if err != nil {
		return werrors.NewForkError(err, "resolve own executable path")
	}

	cmd := exec.Command(exe)
	cmd.Env = append(os.Environ(), bootstrap.Env(id, hash, restartCount, idx, m.dir.Path("."), m.listenersJSON())...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	for _, candidate := range m.cfg.Listeners {
		if candidate.Config.ReusePort {
			continue
		}
		f, err := candidate.File()
		if err != nil {
			return werrors.NewForkError(err, "obtain listener fd for handoff")
		}
		cmd.ExtraFiles = append(cmd.ExtraFiles, f)
	}

	if err := cmd.Start(); err != nil {
		return werrors.NewForkError(err, "start worker process")
	}

	for _, f := range cmd.ExtraFiles {
		f.Close()
	}

	rec := &types.WorkerRecord{
		PID:           cmd.Process.Pid,
		ID:            id,
		ListenerIndex: idx,
		Hash:          hash,
		RestartCount:  restartCount,
		StartTime:     time.Now(),
	}

	m.mu.Lock()
	m.workers[rec.PID] = rec
	count := len(m.workers)
	m.mu.Unlock()
	metrics.WorkersTotal.Set(float64(count))

	go m.reapWhenDone(cmd, rec.PID)

	m.log.Info().Int("worker_id", id).Int("pid", rec.PID).Str("listener", l.Config.Name).Msg("worker started")
	return nil
}

func (m *Master) reapWhenDone(cmd *exec.Cmd, pid int) {
	err := cmd.Wait()
	status := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		status = exitErr.ExitCode()
	} else if err != nil {
		status = 1
	}
	m.reap <- reapEvent{pid: pid, status: status}
}
