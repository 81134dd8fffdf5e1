// Package workerman is the top-level facade: it wires a listener set,
// process identity, output sinks, and an optional metrics endpoint
// into a Controller, and exposes the four operator commands as plain
// Go methods for cmd/workerman to call.
package workerman

import (
	"context"

	"github.com/cuemby/workerman/pkg/config"
	"github.com/cuemby/workerman/pkg/controller"
	"github.com/cuemby/workerman/pkg/metrics"
	"github.com/cuemby/workerman/pkg/output"
	"github.com/cuemby/workerman/pkg/rendezvous"
	"github.com/cuemby/workerman/pkg/types"
)

// Config is the facade's programmatic entry point: everything needed
// to run workerman without a workerman.yaml on disk.
type Config struct {
	Name        string
	WorkingDir  string
	StdErrPath  string
	MetricsAddr string
	Daemon      bool
	Listeners   []*types.ListenerConfig

	OutputSinks        []output.Sink
	PostDaemonizeSinks []output.Sink
}

// FromFile builds a Config from a parsed workerman.yaml, applying its
// working directory as the rendezvous root.
func FromFile(f *config.File) Config {
	return Config{
		Name:        f.Name,
		WorkingDir:  f.WorkingDirectory,
		StdErrPath:  f.StdErrorPath,
		MetricsAddr: f.MetricsAddr,
		Listeners:   f.ListenerConfigs(),
	}
}

// Workerman is the constructed facade: a Controller bound to its
// rendezvous directory, plus the listener specs a start operation
// needs to hand to the master.
type Workerman struct {
	cfg  Config
	dir  *rendezvous.Dir
	ctrl *controller.Controller

	cancelMetrics context.CancelFunc
}

// New constructs a Workerman from cfg, opening (and creating if
// necessary) its working directory.
func New(cfg Config) (*Workerman, error) {
	dir, err := rendezvous.New(workingDirOr(cfg.WorkingDir))
	if err != nil {
		return nil, err
	}

	generalSinks, daemonSinks := cfg.OutputSinks, cfg.PostDaemonizeSinks
	if len(generalSinks) == 0 {
		generalSinks = []output.Sink{output.LogSink{}}
	}
	if len(daemonSinks) == 0 {
		daemonSinks = []output.Sink{output.LogSink{}}
	}
	out := output.New(generalSinks, daemonSinks)

	return &Workerman{
		cfg:  cfg,
		dir:  dir,
		ctrl: controller.New(dir, out),
	}, nil
}

func workingDirOr(dir string) string {
	if dir == "" {
		return "."
	}
	return dir
}

func (w *Workerman) listenerSpecs() []config.ListenerSpec {
	specs := make([]config.ListenerSpec, len(w.cfg.Listeners))
	for i, l := range w.cfg.Listeners {
		specs[i] = config.ListenerSpec{
			Name:        l.Name,
			Transport:   string(l.Transport),
			Address:     l.Address,
			Protocol:    string(l.Protocol),
			WorkerCount: l.WorkerCount,
			ReusePort:   l.ReusePort,
			Backlog:     l.Backlog,
		}
	}
	return specs
}

// Start runs the master, optionally detaching (cfg.Daemon), and
// starts the debug metrics endpoint when cfg.MetricsAddr is set.
func (w *Workerman) Start() error {
	if w.cfg.MetricsAddr != "" {
		ctx, cancel := context.WithCancel(context.Background())
		w.cancelMetrics = cancel
		go metrics.Serve(ctx, w.cfg.MetricsAddr)
	}

	return w.ctrl.Start(controller.Config{
		Name:       w.cfg.Name,
		WorkingDir: w.cfg.WorkingDir,
		StdErrPath: w.cfg.StdErrPath,
		Daemon:     w.cfg.Daemon,
		Listeners:  w.listenerSpecs(),
	})
}

// Stop signals the running master to stop. See controller.Controller.Stop.
func (w *Workerman) Stop(graceful bool) error {
	if w.cancelMetrics != nil {
		defer w.cancelMetrics()
	}
	return w.ctrl.Stop(graceful)
}

// Restart signals the running master to reload its worker pool. See
// controller.Controller.Restart.
func (w *Workerman) Restart(graceful bool) error {
	return w.ctrl.Restart(graceful)
}

// Status reports on the running master and its workers, or prints the
// column legend when info is true. See controller.Controller.Status.
// A successful live sample also feeds pkg/metrics' gauges, the same
// way the debug metrics endpoint would have learned of it from the
// master directly.
func (w *Workerman) Status(info bool) ([]types.StatusRow, error) {
	rows, err := w.ctrl.Status(info)
	if err == nil && !info {
		metrics.SampleStatus(rows)
	}
	return rows, err
}
