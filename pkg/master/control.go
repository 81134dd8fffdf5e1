package master

import (
	"syscall"
	"time"

	"github.com/cuemby/workerman/pkg/metrics"
	"github.com/cuemby/workerman/pkg/rendezvous"
	"github.com/cuemby/workerman/pkg/signalbus"
	"github.com/cuemby/workerman/pkg/types"
	"github.com/cuemby/workerman/pkg/werrors"
)

// handleControlSignal dispatches one operator-triggered signal
// received by the master to the matching stop/reload/status
// operation.
func (m *Master) handleControlSignal(sig syscall.Signal) {
	switch sig {
	case syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGTSTP:
		m.doStop(types.HandlerStop, syscall.SIGINT, false)
	case syscall.SIGQUIT:
		m.doStop(types.HandlerStop, syscall.SIGQUIT, true)
	case syscall.SIGUSR1:
		m.doStop(types.HandlerReload, syscall.SIGUSR1, false)
	case syscall.SIGUSR2:
		m.doStop(types.HandlerReload, syscall.SIGUSR2, true)
	case syscall.SIGIOT:
		m.collectStatus()
	}
}

// doStop implements both the stop and reload control operations: it
// marks every current worker as an expected death under handler, pins
// a snapshot of them into workersPendingStop, and fans sig out to
// every worker pid. For a graceful variant (QUIT/USR2) it first stages
// the drain handshake so the worker sees its own delete target before
// the signal arrives.
func (m *Master) doStop(handler types.DeadWorkerHandler, sig syscall.Signal, graceful bool) {
	m.mu.Lock()
	m.expectDeadWorker = true
	m.expectedDeadWorkerHandler = handler
	pids, hashes := m.snapshotWorkersLocked()
	if handler == types.HandlerReload {
		m.reloadStarted = time.Now()
	}
	m.mu.Unlock()

	if graceful {
		m.beginGracefulDrain(hashes)
	}

	for _, err := range signalbus.DispatchAll(pids, sig) {
		m.log.Error().Err(err).Msg("signal delivery to worker failed")
	}

	m.mu.Lock()
	for _, pid := range pids {
		if rec, ok := m.workers[pid]; ok {
			m.workersPendingStop[pid] = rec
		}
	}
	m.mu.Unlock()
}

// beginGracefulDrain writes the drain handshake the controller and the
// exiting workers both observe: the hash list in shutdown.workerman,
// plus one stub file per hash. Workers unlink their own stub on exit,
// so its disappearance is the controller's per-step drain signal. This
// replaces the original's 500ms sleep between writing the hash list
// and sending QUIT with the master staging both sides of the handshake
// itself before the signal goes out, so there is no window where a
// worker could exit before its stub exists.
func (m *Master) beginGracefulDrain(hashes []string) {
	if err := m.dir.WriteJSON(rendezvous.ShutdownFile, hashes); err != nil {
		m.log.Error().Err(err).Msg("failed to write shutdown handshake file")
	}
	for _, h := range hashes {
		if err := m.dir.WriteBytes(h, []byte{}); err != nil {
			m.log.Error().Err(err).Str("hash", h).Msg("failed to write drain stub")
		}
	}
}

func (m *Master) snapshotWorkersLocked() ([]int, []string) {
	pids := make([]int, 0, len(m.workers))
	hashes := make([]string, 0, len(m.workers))
	for pid, rec := range m.workers {
		pids = append(pids, pid)
		hashes = append(hashes, rec.Hash)
	}
	return pids, hashes
}

// handleDeadWorker branches on whether this pid's exit was expected
// (an operator-triggered stop/reload in flight) or not (a crash).
func (m *Master) handleDeadWorker(ev reapEvent) {
	m.mu.Lock()
	rec, ok := m.workers[ev.pid]
	expect := m.expectDeadWorker
	handler := m.expectedDeadWorkerHandler
	m.mu.Unlock()
	if !ok {
		return
	}

	if !expect {
		m.log.Error().Int("worker_id", rec.ID).Int("pid", ev.pid).Msg("worker exited unexpectedly")
		m.removeWorker(ev.pid)
		rec.RestartCount++
		metrics.RestartsTotal.Inc()
		m.revive(rec)
		return
	}

	switch handler {
	case types.HandlerStop:
		if ev.status != 0 {
			m.log.Error().Err(werrors.NewUnexpectedExitError(rec.ID, ev.status)).Msg("worker exited with non-zero status during planned stop")
		}
		m.removeWorker(ev.pid)

		m.mu.Lock()
		empty := len(m.workers) == 0
		m.mu.Unlock()
		if empty {
			m.mu.Lock()
			m.run = false
			m.shutdownDisabled = true
			m.mu.Unlock()
		}

	case types.HandlerReload:
		if ev.status != 0 {
			m.log.Error().Err(werrors.NewUnexpectedExitError(rec.ID, ev.status)).Msg("worker exited with non-zero status during planned reload")
		}
		m.removeWorker(ev.pid)
		rec.RestartCount++
		m.revive(rec)

		m.mu.Lock()
		drained := len(m.workersPendingStop) == 0
		started := m.reloadStarted
		m.mu.Unlock()
		if drained {
			if err := m.dir.WriteJSON(rendezvous.RestartFile, time.Now().Unix()); err != nil {
				m.log.Error().Err(err).Msg("failed to write restart marker")
			}
			if !started.IsZero() {
				metrics.ReloadDuration.Observe(time.Since(started).Seconds())
			}
		}

	default:
		m.removeWorker(ev.pid)
	}
}

// removeWorker deletes pid from both bookkeeping maps. Deleting from a
// map that doesn't hold the key is a no-op in Go, which is what keeps
// this safe to call from both the unexpected-crash branch (workers
// only) and the planned-stop/reload branches (both maps) without the
// double-removal bug the original handler had.
func (m *Master) removeWorker(pid int) {
	m.mu.Lock()
	delete(m.workers, pid)
	delete(m.workersPendingStop, pid)
	count := len(m.workers)
	m.mu.Unlock()
	metrics.WorkersTotal.Set(float64(count))
}

// revive re-forks a worker that died, preserving its id, hash and
// listener assignment, with its restart count carried over from rec.
func (m *Master) revive(rec *types.WorkerRecord) {
	if rec.ListenerIndex < 0 || rec.ListenerIndex >= len(m.cfg.Listeners) {
		m.log.Error().Int("worker_id", rec.ID).Msg("cannot revive worker: listener index out of range")
		return
	}
	l := m.cfg.Listeners[rec.ListenerIndex]
	if err := m.spawnFn(l, rec.ID, rec.Hash, rec.RestartCount); err != nil {
		m.log.Error().Err(err).Int("worker_id", rec.ID).Msg("failed to revive worker")
	}
}

// collectStatus writes the master's own status row, the
// status.workerman index of every hash involved, and asks every
// worker to write its own row via IOT.
func (m *Master) collectStatus() {
	row := m.statusRow()
	if err := m.dir.WriteJSON(m.hash, row); err != nil {
		m.log.Error().Err(err).Msg("failed to write master status")
	}

	m.mu.Lock()
	hashes := make([]string, 0, len(m.workers)+1)
	hashes = append(hashes, m.hash)
	pids := make([]int, 0, len(m.workers))
	for pid, rec := range m.workers {
		hashes = append(hashes, rec.Hash)
		pids = append(pids, pid)
	}
	m.mu.Unlock()

	if err := m.dir.WriteJSON(rendezvous.StatusFile, hashes); err != nil {
		m.log.Error().Err(err).Msg("failed to write status index")
	}
	for _, err := range signalbus.DispatchAll(pids, syscall.SIGIOT) {
		m.log.Error().Err(err).Msg("status signal delivery failed")
	}
}

// atExit is deferred from Start. recover only observes a panic when
// called directly by the deferred function, which is what makes this
// workerman's translation of "terminates via any path other than the
// controlled exit": a panicking monitor loop is the only non-signal
// way this process can die while still running Go code, so it is the
// only case this can detect and react to before the process goes down.
func (m *Master) atExit() {
	if r := recover(); r != nil {
		m.log.Error().Interface("panic", r).Msg("master exiting on uncaught error")
		m.killAll()
		m.cleanupRendezvous()
		panic(r)
	}
	m.cleanupRendezvous()
}

func (m *Master) killAll() {
	m.mu.Lock()
	pids := make([]int, 0, len(m.workers)+len(m.workersPendingStop))
	for pid := range m.workers {
		pids = append(pids, pid)
	}
	for pid := range m.workersPendingStop {
		pids = append(pids, pid)
	}
	m.mu.Unlock()

	for _, err := range signalbus.DispatchAll(pids, syscall.SIGKILL) {
		m.log.Error().Err(err).Msg("kill delivery failed during shutdown")
	}
}

func (m *Master) cleanupRendezvous() {
	for _, name := range rendezvous.WellKnown {
		m.dir.Delete(name)
	}
	m.dir.Delete(m.hash)
}
