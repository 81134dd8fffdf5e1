// Package worker implements the child-process side of workerman: one
// process bound to one Listener, running a single-threaded cooperative
// event loop that accepts connections, dispatches signals, and
// reports status on demand.
package worker

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/workerman/pkg/eventloop"
	"github.com/cuemby/workerman/pkg/listener"
	"github.com/cuemby/workerman/pkg/log"
	"github.com/cuemby/workerman/pkg/procname"
	"github.com/cuemby/workerman/pkg/rendezvous"
	"github.com/cuemby/workerman/pkg/signalbus"
	"github.com/cuemby/workerman/pkg/types"
)

// drainRetryInterval is how long graceful stop waits before checking
// again whether every connection has closed.
const drainRetryInterval = time.Second

// Config is everything a forked child needs to become a Worker; it is
// assembled from the environment variables the master sets before
// re-executing itself (see pkg/master/fork.go and pkg/bootstrap).
type Config struct {
	ID         int
	Hash       string
	Listener   *listener.Listener
	// Competing lists every other listener this process inherited but
	// does not own; Run releases each one's fd before registering its
	// own accept handler.
	Competing  []*listener.Listener
	Daemon     bool
	RestartCnt int
	Dir        *rendezvous.Dir
}

// Worker is the runtime state of one worker process: its listener,
// active connections, and the bookkeeping needed to answer a status
// request or drain gracefully.
type Worker struct {
	id           int
	hash         string
	listener     *listener.Listener
	competing    []*listener.Listener
	startTime    time.Time
	restartCount int
	daemon       bool

	dir  *rendezvous.Dir
	loop eventloop.EventLoop
	bus  *signalbus.Bus
	log  zerolog.Logger

	mu              sync.Mutex
	connections     map[uint64]*Connection
	totalCount      uint64
	peakMemoryBytes uint64
	nextConnID      uint64

	accepting bool
	exit      func(int)
}

// New constructs a Worker from cfg. It does not start accepting
// connections; call Run for that.
func New(cfg Config) *Worker {
	return &Worker{
		id:           cfg.ID,
		hash:         cfg.Hash,
		listener:     cfg.Listener,
		competing:    cfg.Competing,
		restartCount: cfg.RestartCnt,
		daemon:       cfg.Daemon,
		dir:          cfg.Dir,
		connections:  make(map[uint64]*Connection),
		loop:         eventloop.New(),
		log:          log.WithWorkerID(cfg.ID),
		exit:         os.Exit,
	}
}

// Run executes the startup sequence and blocks until the event loop
// stops (on hard or graceful exit, this process calls os.Exit and
// never returns here under normal operation).
func (w *Worker) Run() {
	w.startTime = time.Now()

	defer func() {
		if r := recover(); r != nil {
			w.log.Error().Interface("panic", r).Msg("worker exiting on uncaught panic")
			w.unlinkHash()
			os.Exit(1)
		}
	}()

	if w.listener.Config.ReusePort {
		if err := w.listener.BuildInWorker(); err != nil {
			w.log.Error().Err(err).Msg("worker failed to bind reuse_port listener")
			os.Exit(1)
		}
	}
	for _, c := range w.competing {
		if err := c.DropCompetingState(); err != nil {
			w.log.Error().Err(err).Str("listener", c.Config.Name).Msg("worker failed to drop competing listener state")
		}
	}

	procname.Set(fmt.Sprintf("%s worker (%d)", w.listener.Config.Name, w.id))

	w.bus = signalbus.New(
		syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGTSTP, syscall.SIGUSR1,
		syscall.SIGQUIT, syscall.SIGUSR2, syscall.SIGIOT,
	)
	go w.dispatchSignals()

	w.accepting = true
	if err := w.listener.ResumeAccept(w.loop, w.onAccept); err != nil {
		w.log.Error().Err(err).Msg("worker failed to register accept handler")
		os.Exit(1)
	}

	w.loop.Run()
}

func (w *Worker) dispatchSignals() {
	for {
		sigs := w.bus.Wait()
		for _, sig := range sigs {
			s := sig.(syscall.Signal)
			w.loop.DispatchSignal(func() { w.handleSignal(s) })
		}
	}
}

func (w *Worker) handleSignal(sig syscall.Signal) {
	switch sig {
	case syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGTSTP, syscall.SIGUSR1:
		w.hardStop()
	case syscall.SIGQUIT, syscall.SIGUSR2:
		w.gracefulStop()
	case syscall.SIGIOT:
		w.writeStatus()
	}
}

func (w *Worker) onAccept(ac *eventloop.AcceptedConnection) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.accepting {
		ac.Close()
		return
	}

	w.nextConnID++
	id := w.nextConnID
	ac.ID = id
	ac.OnClose = func() { w.Forget(id) }
	conn := &Connection{ID: id, Accepted: ac, Worker: w.id}
	w.connections[id] = conn
	w.totalCount++
}

// Forget removes conn from the active set; called by the event-loop
// collaborator when a connection closes so graceful drain can observe
// an empty connection set.
func (w *Worker) Forget(id uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.connections, id)
}

func (w *Worker) hardStop() {
	w.listener.Teardown()

	w.mu.Lock()
	conns := make([]*Connection, 0, len(w.connections))
	for _, c := range w.connections {
		conns = append(conns, c)
	}
	w.mu.Unlock()

	// Close outside the lock: Close runs OnClose, which calls back into
	// Forget and re-acquires w.mu. Forget also covers the deletion here,
	// so this loop no longer deletes from w.connections itself.
	for _, c := range conns {
		c.Accepted.Close()
	}

	w.unlinkHash()
	w.exit(0)
}

func (w *Worker) gracefulStop() {
	if w.listener.Accepting() {
		w.listener.PauseAccept()
		w.mu.Lock()
		w.accepting = false
		w.mu.Unlock()
	}

	w.mu.Lock()
	empty := len(w.connections) == 0
	w.mu.Unlock()

	if empty {
		w.listener.Teardown()
		w.unlinkHash()
		w.exit(0)
		return
	}

	w.loop.PostTimer(drainRetryInterval, w.gracefulStop)
}

func (w *Worker) writeStatus() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	if mem.Alloc > w.peakMemoryBytes {
		w.peakMemoryBytes = mem.Alloc
	}

	w.mu.Lock()
	active := len(w.connections)
	total := w.totalCount
	w.mu.Unlock()

	row := types.StatusRow{
		ID:          fmt.Sprintf("%d", w.id),
		Listen:      w.listener.Config.Address,
		Name:        w.listener.Config.Name,
		Memory:      formatMB(mem.Alloc),
		PeakMemory:  formatMB(w.peakMemoryBytes),
		StartTime:   fmt.Sprintf("(%d) %s", w.restartCount, formatUptime(time.Since(w.startTime))),
		Connections: fmt.Sprintf("%d/%d", active, total),
		Timers:      0,
	}

	if err := w.dir.WriteJSON(w.hash, row); err != nil {
		w.log.Error().Err(err).Str("hash", w.hash).Msg("worker failed to write status")
	}
}

func (w *Worker) unlinkHash() {
	w.dir.Delete(w.hash)
}

func formatMB(bytes uint64) string {
	return fmt.Sprintf("%.2fM", float64(bytes)/(1024*1024))
}

func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

