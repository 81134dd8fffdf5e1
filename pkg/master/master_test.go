package master

import (
	"bytes"
	"syscall"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/workerman/pkg/listener"
	"github.com/cuemby/workerman/pkg/rendezvous"
	"github.com/cuemby/workerman/pkg/types"
	"github.com/cuemby/workerman/pkg/werrors"
)

func newTestMaster(t *testing.T) *Master {
	t.Helper()
	dir, err := rendezvous.New(t.TempDir())
	require.NoError(t, err)

	cfg := &types.ListenerConfig{Name: "echo", Transport: types.TransportTCP, Address: "127.0.0.1:0"}
	l := listener.New(cfg)
	require.NoError(t, l.Build())
	t.Cleanup(func() { l.Teardown() })

	m := New(Config{Name: "test", Listeners: []*listener.Listener{l}, Dir: dir})
	// Never actually re-exec the test binary: stub spawning out.
	m.spawnFn = func(l *listener.Listener, id int, hash string, restartCount int) error {
		return nil
	}
	return m
}

func addWorker(m *Master, pid, id int, hash string) *types.WorkerRecord {
	rec := &types.WorkerRecord{PID: pid, ID: id, ListenerIndex: 0, Hash: hash}
	m.mu.Lock()
	m.workers[pid] = rec
	m.mu.Unlock()
	return rec
}

func TestHandleDeadWorkerUnexpectedCrashRevives(t *testing.T) {
	m := newTestMaster(t)
	rec := addWorker(m, 100, 1, "hash-a")

	var spawned []string
	m.spawnFn = func(l *listener.Listener, id int, hash string, restartCount int) error {
		spawned = append(spawned, hash)
		return nil
	}

	m.handleDeadWorker(reapEvent{pid: 100, status: 1})

	m.mu.Lock()
	_, stillPresent := m.workers[100]
	m.mu.Unlock()

	assert.False(t, stillPresent)
	assert.Equal(t, []string{"hash-a"}, spawned)
	assert.Equal(t, 1, rec.RestartCount)
}

func TestHandleDeadWorkerPlannedStopRemovesAndStopsRunWhenEmpty(t *testing.T) {
	m := newTestMaster(t)
	addWorker(m, 200, 2, "hash-b")

	m.mu.Lock()
	m.expectDeadWorker = true
	m.expectedDeadWorkerHandler = types.HandlerStop
	m.run = true
	m.mu.Unlock()

	m.handleDeadWorker(reapEvent{pid: 200, status: 0})

	m.mu.Lock()
	_, present := m.workers[200]
	run := m.run
	disabled := m.shutdownDisabled
	m.mu.Unlock()

	assert.False(t, present)
	assert.False(t, run)
	assert.True(t, disabled)
}

func TestHandleDeadWorkerPlannedStopKeepsRunningWhileOthersRemain(t *testing.T) {
	m := newTestMaster(t)
	addWorker(m, 200, 2, "hash-b")
	addWorker(m, 201, 3, "hash-c")

	m.mu.Lock()
	m.expectDeadWorker = true
	m.expectedDeadWorkerHandler = types.HandlerStop
	m.run = true
	m.mu.Unlock()

	m.handleDeadWorker(reapEvent{pid: 200, status: 0})

	m.mu.Lock()
	run := m.run
	_, stillThere := m.workers[201]
	m.mu.Unlock()

	assert.True(t, run)
	assert.True(t, stillThere)
}

func TestHandleDeadWorkerPlannedReloadRevivesAndWritesRestartMarkerWhenDrained(t *testing.T) {
	m := newTestMaster(t)
	rec := addWorker(m, 300, 4, "hash-d")

	m.mu.Lock()
	m.expectDeadWorker = true
	m.expectedDeadWorkerHandler = types.HandlerReload
	m.workersPendingStop[300] = rec
	m.mu.Unlock()

	var revivedHash string
	m.spawnFn = func(l *listener.Listener, id int, hash string, restartCount int) error {
		revivedHash = hash
		return nil
	}

	m.handleDeadWorker(reapEvent{pid: 300, status: 0})

	assert.Equal(t, "hash-d", revivedHash)
	assert.True(t, m.dir.Exists(rendezvous.RestartFile))
}

func TestHandleDeadWorkerPlannedStopLogsUnexpectedExitError(t *testing.T) {
	m := newTestMaster(t)
	addWorker(m, 200, 2, "hash-b")

	var buf bytes.Buffer
	m.log = zerolog.New(&buf)

	m.mu.Lock()
	m.expectDeadWorker = true
	m.expectedDeadWorkerHandler = types.HandlerStop
	m.run = true
	m.mu.Unlock()

	m.handleDeadWorker(reapEvent{pid: 200, status: 17})

	assert.Contains(t, buf.String(), werrors.NewUnexpectedExitError(2, 17).Error())
}

func TestDoStopGracefulWritesHandshakeAndSnapshotsPendingStop(t *testing.T) {
	m := newTestMaster(t)
	addWorker(m, 400, 5, "hash-e")

	m.doStop(types.HandlerStop, syscall.SIGQUIT, true)

	var hashes []string
	require.NoError(t, m.dir.ReadJSON(rendezvous.ShutdownFile, &hashes))
	assert.Equal(t, []string{"hash-e"}, hashes)
	assert.True(t, m.dir.Exists("hash-e"))

	m.mu.Lock()
	_, pending := m.workersPendingStop[400]
	handler := m.expectedDeadWorkerHandler
	m.mu.Unlock()
	assert.True(t, pending)
	assert.Equal(t, types.HandlerStop, handler)
}

func TestCollectStatusWritesMasterRowAndIndex(t *testing.T) {
	m := newTestMaster(t)
	addWorker(m, 500, 6, "hash-f")

	m.collectStatus()

	var row types.StatusRow
	require.NoError(t, m.dir.ReadJSON(m.hash, &row))
	assert.Equal(t, "M", row.ID)

	var hashes []string
	require.NoError(t, m.dir.ReadJSON(rendezvous.StatusFile, &hashes))
	assert.ElementsMatch(t, []string{m.hash, "hash-f"}, hashes)
}

func TestCleanupRendezvousRemovesWellKnownAndMasterHash(t *testing.T) {
	m := newTestMaster(t)
	require.NoError(t, m.dir.WriteJSON(rendezvous.ProcessPID, 1))
	require.NoError(t, m.dir.WriteJSON(m.hash, "row"))

	m.cleanupRendezvous()

	assert.False(t, m.dir.Exists(rendezvous.ProcessPID))
	assert.False(t, m.dir.Exists(m.hash))
}

func TestListenerIndexFindsRegisteredListener(t *testing.T) {
	m := newTestMaster(t)
	assert.Equal(t, 0, m.listenerIndex(m.cfg.Listeners[0]))

	other := listener.New(&types.ListenerConfig{Name: "other", Transport: types.TransportTCP, Address: "127.0.0.1:0"})
	assert.Equal(t, -1, m.listenerIndex(other))
}
