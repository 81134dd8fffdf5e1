// Package signalbus installs POSIX signal handlers and hands signals
// to a cooperative queue that the master and worker main loops drain
// between units of work. It follows the same buffered-channel-
// plus-drain-loop shape as a publish/subscribe event broker, with a
// single consumer instead of many subscribers, because a signal must
// be handled exactly once and in arrival order.
package signalbus

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/workerman/pkg/werrors"
)

// Bus queues incoming OS signals for cooperative dispatch. Signals are
// never merged: two SIGQUITs in a row enqueue two entries, but a
// handler only ever runs between reap calls in the owning loop, never
// concurrently with one.
type Bus struct {
	ch     chan os.Signal
	notify chan os.Signal
}

// New installs a handler for sigs and returns a Bus that buffers them
// until Drain is called.
func New(sigs ...os.Signal) *Bus {
	notify := make(chan os.Signal, 64)
	signal.Notify(notify, sigs...)
	return &Bus{ch: make(chan os.Signal, 64), notify: notify}
}

// Stop uninstalls the signal handler. Used when a forked child clears
// inherited master signal state.
func (b *Bus) Stop() {
	signal.Stop(b.notify)
}

// Drain returns every signal queued since the last Drain, in arrival
// order, without blocking.
func (b *Bus) Drain() []os.Signal {
	b.pump()
	var pending []os.Signal
	for {
		select {
		case sig := <-b.ch:
			pending = append(pending, sig)
		default:
			return pending
		}
	}
}

// Wait blocks until at least one signal is queued, then returns every
// signal queued so far. The monitor loop alternates draining the
// signal queue with reaping dead children.
func (b *Bus) Wait() []os.Signal {
	sig := <-b.notify
	pending := []os.Signal{sig}
	pending = append(pending, b.Drain()...)
	return pending
}

// Signals is a non-blocking channel a select loop can multiplex
// alongside other events (e.g. the master's child-reap channel).
func (b *Bus) Signals() <-chan os.Signal {
	return b.notify
}

func (b *Bus) pump() {
	for {
		select {
		case sig := <-b.notify:
			b.ch <- sig
		default:
			return
		}
	}
}

// Dispatch sends sig to pid, wrapping a failure as a
// werrors.SignalDeliveryError. A failure during a fanout is logged per
// pid by the caller and never aborts the fanout.
func Dispatch(pid int, sig syscall.Signal) error {
	if err := syscall.Kill(pid, sig); err != nil {
		return &werrors.SignalDeliveryError{PID: pid, Sig: sig.String(), Cause: err}
	}
	return nil
}

// DispatchAll sends sig to every pid in pids, collecting per-pid
// delivery errors without stopping the fanout.
func DispatchAll(pids []int, sig syscall.Signal) []error {
	var errs []error
	for _, pid := range pids {
		if err := Dispatch(pid, sig); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
