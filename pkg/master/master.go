// Package master implements workerman's parent-process supervisor:
// forks workers, reaps them, revives crashed ones, and orchestrates
// stop/reload/status on signals from the controller.
package master

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/workerman/pkg/listener"
	"github.com/cuemby/workerman/pkg/log"
	"github.com/cuemby/workerman/pkg/procname"
	"github.com/cuemby/workerman/pkg/rendezvous"
	"github.com/cuemby/workerman/pkg/signalbus"
	"github.com/cuemby/workerman/pkg/types"
	"github.com/cuemby/workerman/pkg/werrors"
)

// Config wires a Master: the listener registry, process name, and
// working directory, restricted to what the master itself needs out
// of the facade's broader configuration surface.
type Config struct {
	Name      string
	Listeners []*listener.Listener
	Dir       *rendezvous.Dir
	Daemon    bool
}

// Master is the parent-process supervisor's full runtime state: the
// live worker pool, the workers known to be mid-stop-or-reload, and
// the bookkeeping that lets a reaped child be routed to the right
// dead-worker branch.
type Master struct {
	cfg Config
	dir *rendezvous.Dir
	log zerolog.Logger
	bus *signalbus.Bus

	mu                        sync.Mutex
	workers                   map[int]*types.WorkerRecord // keyed by pid
	workersPendingStop        map[int]*types.WorkerRecord
	nextID                    int
	run                       bool
	shutdownDisabled          bool
	expectDeadWorker          bool
	expectedDeadWorkerHandler types.DeadWorkerHandler
	daemon                    bool
	startTime                 time.Time
	hash                      string

	reap chan reapEvent

	reloadStarted time.Time

	// spawnFn is the real spawn by default; tests substitute a stub so
	// revive/forkWorker can be exercised without actually re-exec'ing
	// the test binary.
	spawnFn func(l *listener.Listener, id int, hash string, restartCount int) error
}

type reapEvent struct {
	pid    int
	status int
}

// New constructs a Master ready to run.
func New(cfg Config) *Master {
	m := &Master{
		cfg:                cfg,
		dir:                cfg.Dir,
		log:                log.WithComponent("master"),
		workers:            make(map[int]*types.WorkerRecord),
		workersPendingStop: make(map[int]*types.WorkerRecord),
		reap:               make(chan reapEvent, 16),
		daemon:             cfg.Daemon,
		hash:               types.NewHash(),
		nextID:             1,
	}
	m.spawnFn = m.spawn
	return m
}

// Start performs master startup: writes process.pid, binds listeners,
// forks the initial worker pool, installs the control-signal handler,
// and enters the monitor loop. It blocks until the monitor loop exits.
func (m *Master) Start() error {
	if m.dir.Exists(rendezvous.ProcessPID) {
		return werrors.NewLifecycleError("Cannot start workerman, workerman already running.")
	}
	m.dir.CleanWellKnown()

	for _, l := range m.cfg.Listeners {
		if err := l.Build(); err != nil {
			return err
		}
	}

	m.startTime = time.Now()
	if err := m.dir.WritePID(rendezvous.ProcessPID, os.Getpid()); err != nil {
		return err
	}

	procname.Set(fmt.Sprintf("%s master", nameOr(m.cfg.Name, "Workerman")))

	m.bus = signalbus.New(
		syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGTSTP,
		syscall.SIGQUIT, syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGIOT,
	)

	defer m.atExit()

	m.run = true
	for _, l := range m.cfg.Listeners {
		for i := 0; i < l.Config.WorkerCount; i++ {
			if err := m.forkWorker(l); err != nil {
				m.log.Error().Err(err).Msg("initial fork failed")
			}
		}
	}

	m.monitorLoop()
	return nil
}

func nameOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}

// monitorLoop alternates draining the signal queue with reaping
// children. The original drives this with a blocking
// waitpid(-1, WUNTRACED) call; Go has no equivalent that waits on an
// arbitrary child, so this selects between a dedicated signal-wait
// goroutine and the reap channel every exec.Cmd.Wait goroutine feeds
// instead. Exactly one signal-wait goroutine is ever in flight: it is
// re-armed only after its batch is consumed, rather than spawned fresh
// every loop turn, so a slow reap doesn't pile up abandoned waiters.
func (m *Master) monitorLoop() {
	sigCh := make(chan []os.Signal, 1)
	go m.pumpSignals(sigCh)

	for m.run {
		select {
		case sigs := <-sigCh:
			for _, sig := range sigs {
				m.handleControlSignal(sig.(syscall.Signal))
			}
			go m.pumpSignals(sigCh)
		case ev := <-m.reap:
			m.handleDeadWorker(ev)
		}
	}
}

func (m *Master) pumpSignals(ch chan<- []os.Signal) {
	ch <- m.bus.Wait()
}

func (m *Master) listenersJSON() string {
	cfgs := make([]*types.ListenerConfig, len(m.cfg.Listeners))
	for i, l := range m.cfg.Listeners {
		cfgs[i] = l.Config
	}
	data, _ := json.Marshal(cfgs)
	return string(data)
}

func (m *Master) listenerIndex(l *listener.Listener) int {
	for i, candidate := range m.cfg.Listeners {
		if candidate == l {
			return i
		}
	}
	return -1
}

func (m *Master) statusRow() types.StatusRow {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	m.mu.Lock()
	count := len(m.workers)
	m.mu.Unlock()

	return types.StatusRow{
		ID:          "M",
		Listen:      "N/A",
		Name:        nameOr(m.cfg.Name, "Workerman"),
		Memory:      fmt.Sprintf("%.2fM", float64(mem.Alloc)/(1024*1024)),
		PeakMemory:  fmt.Sprintf("%.2fM", float64(mem.Sys)/(1024*1024)),
		StartTime:   fmt.Sprintf("(0) %s", time.Since(m.startTime).Round(time.Second)),
		Connections: fmt.Sprintf("-/%d", count),
		Timers:      0,
	}
}
