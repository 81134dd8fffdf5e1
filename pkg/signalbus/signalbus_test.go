package signalbus

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/workerman/pkg/werrors"
)

func TestDrainEmptyReturnsNil(t *testing.T) {
	bus := New(syscall.SIGUSR1)
	defer bus.Stop()

	assert.Empty(t, bus.Drain())
}

func TestWaitReceivesDeliveredSignal(t *testing.T) {
	bus := New(syscall.SIGUSR1)
	defer bus.Stop()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR1))

	got := make(chan []os.Signal, 1)
	go func() { got <- bus.Wait() }()

	select {
	case sigs := <-got:
		require.NotEmpty(t, sigs)
		assert.Equal(t, syscall.SIGUSR1, sigs[0])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for signal")
	}
}

func TestDispatchToSelf(t *testing.T) {
	bus := New(syscall.SIGUSR2)
	defer bus.Stop()

	err := Dispatch(os.Getpid(), syscall.SIGUSR2)
	require.NoError(t, err)

	select {
	case sig := <-bus.Signals():
		assert.Equal(t, syscall.SIGUSR2, sig)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for signal")
	}
}

// nonexistentPID is a pid unlikely to be in use; signaling it should
// fail with ESRCH rather than reach an unrelated process.
const nonexistentPID = 1 << 30

func TestDispatchInvalidPIDReturnsSignalDeliveryError(t *testing.T) {
	err := Dispatch(nonexistentPID, syscall.SIGTERM)
	assert.Error(t, err)
	var sde *werrors.SignalDeliveryError
	assert.ErrorAs(t, err, &sde)
}

func TestDispatchAllCollectsErrorsWithoutStopping(t *testing.T) {
	errs := DispatchAll([]int{nonexistentPID, os.Getpid(), nonexistentPID + 1}, syscall.SIGWINCH)
	assert.Len(t, errs, 2)
}
