package eventloop

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPostTimerFires(t *testing.T) {
	l := New()
	defer l.Stop()

	var fired int32
	l.PostTimer(10*time.Millisecond, func() {
		atomic.StoreInt32(&fired, 1)
	})

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

func TestPostTimerCancel(t *testing.T) {
	l := New()
	defer l.Stop()

	var fired int32
	h := l.PostTimer(50*time.Millisecond, func() {
		atomic.StoreInt32(&fired, 1)
	})
	h.Cancel()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
}

func TestStopIsIdempotent(t *testing.T) {
	l := New()
	l.Stop()
	l.Stop()
}

func TestDispatchSignalRunsSynchronously(t *testing.T) {
	l := New()
	defer l.Stop()

	ran := false
	l.DispatchSignal(func() { ran = true })
	assert.True(t, ran)
}
