package rendezvous

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadDeleteJSON(t *testing.T) {
	dir, err := New(t.TempDir())
	require.NoError(t, err)

	type payload struct {
		Hashes []string `json:"hashes"`
	}
	want := payload{Hashes: []string{"a", "b"}}

	require.NoError(t, dir.WriteJSON(StatusFile, want))
	assert.True(t, dir.Exists(StatusFile))

	var got payload
	require.NoError(t, dir.ReadJSON(StatusFile, &got))
	assert.Equal(t, want, got)

	require.NoError(t, dir.Delete(StatusFile))
	assert.False(t, dir.Exists(StatusFile))
}

func TestDeleteMissingFileIsNotError(t *testing.T) {
	dir, err := New(t.TempDir())
	require.NoError(t, err)

	assert.NoError(t, dir.Delete("nonexistent.workerman"))
}

func TestCleanWellKnownRemovesAllFour(t *testing.T) {
	dir, err := New(t.TempDir())
	require.NoError(t, err)

	for _, name := range WellKnown {
		require.NoError(t, dir.WriteBytes(name, []byte("x")))
	}

	require.NoError(t, dir.CleanWellKnown())

	for _, name := range WellKnown {
		assert.False(t, dir.Exists(name), "%s should be removed", name)
	}
}

func TestLockUnlock(t *testing.T) {
	dir, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, dir.WriteBytes("target", []byte("x")))
	require.NoError(t, dir.Lock("target"))
	require.NoError(t, dir.Unlock("target"))
}

func TestUnlockWithoutLockErrors(t *testing.T) {
	dir, err := New(t.TempDir())
	require.NoError(t, err)

	err = dir.Unlock("never-locked")
	assert.Error(t, err)
}

func TestWritePIDReadPID(t *testing.T) {
	dir, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, dir.WritePID(ProcessPID, 4242))
	got, err := dir.ReadPID(ProcessPID)
	require.NoError(t, err)
	assert.Equal(t, 4242, got)
}

func TestWaitForCreateAndDelete(t *testing.T) {
	tmp := t.TempDir()
	dir, err := New(tmp)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- dir.WaitForCreate(ctx, "hash-a")
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, dir.WriteBytes("hash-a", []byte("{}")))

	require.NoError(t, <-done)

	ctx2, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel2()

	done2 := make(chan error, 1)
	go func() {
		done2 <- dir.WaitForDelete(ctx2, "hash-a")
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, dir.Delete("hash-a"))

	require.NoError(t, <-done2)
}

func TestPathIsScopedToDirectory(t *testing.T) {
	tmp := t.TempDir()
	dir, err := New(tmp)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(tmp, "x"), dir.Path("x"))
}
