// Package eventloop defines the narrow boundary between workerman's
// process-lifecycle core and the event loop / protocol decoders that
// stay out of scope here: a timer wheel, per-connection read/write
// state machine, and application-protocol decoding. workerman's Worker
// only needs to register an fd for readability, post a one-shot timer,
// and forward signals into a single-threaded cooperative loop — it
// never touches a connection's bytes.
//
// Loop is a small default implementation sufficient to run the Worker
// end to end; a real deployment is expected to supply its own
// implementation backed by epoll/kqueue and a frame/HTTP/WebSocket
// decoder in production.
package eventloop

import (
	"sync"
	"time"
)

// TimerHandle cancels a timer scheduled with EventLoop.PostTimer.
type TimerHandle interface {
	Cancel()
}

// EventLoop is the capability Worker drives: register an fd for
// readability, schedule a one-shot timer, dispatch an incoming signal
// for cooperative handling, and run/stop the loop itself.
type EventLoop interface {
	RegisterFD(fd int, onReadable func()) error
	UnregisterFD(fd int) error
	PostTimer(d time.Duration, fn func()) TimerHandle
	DispatchSignal(fn func())
	Run()
	Stop()
}

// Loop is a minimal goroutine-and-channel EventLoop. It does not poll
// fds itself — RegisterFD spawns a dedicated goroutine per fd that
// blocks in a caller-supplied readiness check, which is adequate for
// workerman's own accept-loop use (the listener already blocks in
// Accept) and keeps this package free of a platform-specific poller.
type Loop struct {
	mu      sync.Mutex
	stopCh  chan struct{}
	stopped bool
	timers  map[*timer]struct{}
	wg      sync.WaitGroup
}

type timer struct {
	t      *time.Timer
	cancel chan struct{}
	once   sync.Once
}

func (t *timer) Cancel() {
	t.once.Do(func() {
		close(t.cancel)
		t.t.Stop()
	})
}

// New returns a ready-to-run Loop.
func New() *Loop {
	return &Loop{
		stopCh: make(chan struct{}),
		timers: make(map[*timer]struct{}),
	}
}

// RegisterFD runs onReadable in its own goroutine until the loop
// stops. Workerman's accept handler is itself a blocking Accept call,
// so "registering for readability" here means "run this blocking
// handler in the loop's goroutine pool".
func (l *Loop) RegisterFD(fd int, onReadable func()) error {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for {
			select {
			case <-l.stopCh:
				return
			default:
				onReadable()
			}
		}
	}()
	return nil
}

// UnregisterFD is a no-op for Loop: RegisterFD's goroutine exits on
// Stop, and workerman closes the fd itself via Listener.Teardown.
func (l *Loop) UnregisterFD(fd int) error { return nil }

// PostTimer schedules fn to run after d unless cancelled first.
func (l *Loop) PostTimer(d time.Duration, fn func()) TimerHandle {
	t := &timer{t: time.NewTimer(d), cancel: make(chan struct{})}

	l.mu.Lock()
	l.timers[t] = struct{}{}
	l.mu.Unlock()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer func() {
			l.mu.Lock()
			delete(l.timers, t)
			l.mu.Unlock()
		}()
		select {
		case <-t.t.C:
			fn()
		case <-t.cancel:
		case <-l.stopCh:
		}
	}()
	return t
}

// DispatchSignal runs fn synchronously on the calling goroutine. The
// caller (Worker) is itself the cooperative dispatcher; the loop's
// only job is to provide a name for this step in the startup sequence
// .
func (l *Loop) DispatchSignal(fn func()) { fn() }

// Run blocks until Stop is called.
func (l *Loop) Run() {
	<-l.stopCh
	l.wg.Wait()
}

// Stop signals every registered fd handler and pending timer to exit.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	l.mu.Unlock()
	close(l.stopCh)
}
