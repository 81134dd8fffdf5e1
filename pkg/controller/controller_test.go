package controller

import (
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/workerman/pkg/output"
	"github.com/cuemby/workerman/pkg/rendezvous"
	"github.com/cuemby/workerman/pkg/types"
)

type recordingSink struct {
	lines []string
}

func (r *recordingSink) Error(msg string)    { r.lines = append(r.lines, msg) }
func (r *recordingSink) Warning(msg string)  { r.lines = append(r.lines, msg) }
func (r *recordingSink) Info(msg string)     { r.lines = append(r.lines, msg) }
func (r *recordingSink) Debug(msg string)    { r.lines = append(r.lines, msg) }
func (r *recordingSink) Success(msg string)  { r.lines = append(r.lines, msg) }
func (r *recordingSink) Exception(err error) { r.lines = append(r.lines, err.Error()) }
func (r *recordingSink) ProgressBar(total, start int) output.Bar {
	return &recordingBar{}
}

type recordingBar struct {
	ticks    int
	finished bool
}

func (b *recordingBar) Tick()   { b.ticks++ }
func (b *recordingBar) Finish() { b.finished = true }

func newTestController(t *testing.T) (*Controller, *rendezvous.Dir, *recordingSink) {
	t.Helper()
	dir, err := rendezvous.New(t.TempDir())
	require.NoError(t, err)
	sink := &recordingSink{}
	out := output.New([]output.Sink{sink}, nil)
	c := New(dir, out)
	return c, dir, sink
}

func TestStopHardFailsWhenNotRunning(t *testing.T) {
	c, _, _ := newTestController(t)
	err := c.Stop(false)
	assert.Error(t, err)
}

func TestStopHardSignalsAndWaitsForPIDRemoval(t *testing.T) {
	c, dir, _ := newTestController(t)
	require.NoError(t, dir.WritePID(rendezvous.ProcessPID, 4242))

	var gotSig syscall.Signal
	c.signal = func(pid int, sig syscall.Signal) error {
		gotSig = sig
		assert.Equal(t, 4242, pid)
		go func() {
			time.Sleep(10 * time.Millisecond)
			dir.Delete(rendezvous.ProcessPID)
		}()
		return nil
	}

	err := c.Stop(false)
	require.NoError(t, err)
	assert.Equal(t, syscall.SIGINT, gotSig)
	assert.False(t, dir.Exists(rendezvous.ProcessPID))
}

func TestStopGracefulDrainsEachHashThenWaits(t *testing.T) {
	c, dir, _ := newTestController(t)
	require.NoError(t, dir.WritePID(rendezvous.ProcessPID, 99))

	hashes := []string{"hash-a", "hash-b"}
	c.signal = func(pid int, sig syscall.Signal) error {
		assert.Equal(t, syscall.SIGQUIT, sig)
		require.NoError(t, dir.WriteJSON(rendezvous.ShutdownFile, hashes))
		for _, h := range hashes {
			require.NoError(t, dir.WriteBytes(h, []byte{}))
		}
		go func() {
			time.Sleep(5 * time.Millisecond)
			dir.Delete("hash-a")
			time.Sleep(5 * time.Millisecond)
			dir.Delete("hash-b")
			time.Sleep(5 * time.Millisecond)
			dir.Delete(rendezvous.ProcessPID)
		}()
		return nil
	}

	err := c.Stop(true)
	require.NoError(t, err)
	assert.False(t, dir.Exists(rendezvous.ShutdownFile))
}

func TestRestartHardWaitsForFreshMarker(t *testing.T) {
	c, dir, _ := newTestController(t)
	require.NoError(t, dir.WritePID(rendezvous.ProcessPID, 7))

	c.signal = func(pid int, sig syscall.Signal) error {
		assert.Equal(t, syscall.SIGUSR1, sig)
		go func() {
			time.Sleep(5 * time.Millisecond)
			dir.WriteJSON(rendezvous.RestartFile, time.Now().Unix())
		}()
		return nil
	}

	err := c.Restart(false)
	assert.NoError(t, err)
}

func TestRestartRejectsStaleMarker(t *testing.T) {
	c, dir, _ := newTestController(t)
	require.NoError(t, dir.WritePID(rendezvous.ProcessPID, 7))

	c.signal = func(pid int, sig syscall.Signal) error {
		go func() {
			time.Sleep(5 * time.Millisecond)
			dir.WriteJSON(rendezvous.RestartFile, time.Now().Add(-time.Hour).Unix())
		}()
		return nil
	}

	err := c.Restart(false)
	assert.Error(t, err)
}

func TestStatusHardFailsWithStatusSpecificMessageWhenNotRunning(t *testing.T) {
	c, _, _ := newTestController(t)
	_, err := c.Status(false)
	require.Error(t, err)
	assert.Equal(t, "Cannot collect worker status, workerman is not running.", err.Error())
}

func TestStatusInfoPrintsLegendWithoutTouchingMaster(t *testing.T) {
	c, dir, sink := newTestController(t)
	rows, err := c.Status(true)
	require.NoError(t, err)
	assert.Nil(t, rows)
	assert.NotEmpty(t, sink.lines)
	assert.False(t, dir.Exists(rendezvous.ProcessPID))
}

func TestStatusCollectsRowsAndCleansUp(t *testing.T) {
	c, dir, _ := newTestController(t)
	require.NoError(t, dir.WritePID(rendezvous.ProcessPID, 55))

	c.signal = func(pid int, sig syscall.Signal) error {
		assert.Equal(t, syscall.SIGIOT, sig)
		go func() {
			time.Sleep(5 * time.Millisecond)
			dir.WriteJSON(rendezvous.StatusFile, []string{"m-hash", "w-hash"})
			dir.WriteJSON("m-hash", types.StatusRow{ID: "M"})
			dir.WriteJSON("w-hash", types.StatusRow{ID: "1"})
		}()
		return nil
	}

	rows, err := c.Status(false)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "M", rows[0].ID)
	assert.Equal(t, "1", rows[1].ID)
	assert.False(t, dir.Exists(rendezvous.StatusFile))
	assert.False(t, dir.Exists("m-hash"))
	assert.False(t, dir.Exists("w-hash"))
}

func TestStartFailsWhenAlreadyRunning(t *testing.T) {
	c, dir, _ := newTestController(t)
	require.NoError(t, dir.WritePID(rendezvous.ProcessPID, 1))

	err := c.Start(Config{Daemon: false})
	assert.Error(t, err)
}

func TestStartDaemonPollsUntilPIDAppears(t *testing.T) {
	c, dir, _ := newTestController(t)
	c.reexec = func(cfg Config, d *rendezvous.Dir) error {
		go func() {
			time.Sleep(5 * time.Millisecond)
			d.WritePID(rendezvous.ProcessPID, 123)
		}()
		return nil
	}

	err := c.Start(Config{Daemon: true})
	require.NoError(t, err)
	assert.True(t, dir.Exists(rendezvous.ProcessPID))
}
