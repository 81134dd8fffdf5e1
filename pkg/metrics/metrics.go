// Package metrics exposes workerman's supervisor-level counters as
// Prometheus metrics, following the collector/gauge pattern used
// elsewhere in this codebase. None of this is required for
// correctness — every invariant is enforced by pkg/master and
// pkg/worker directly — it is an optional debug surface the facade
// can expose.
package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	WorkersTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "workerman",
		Name:      "workers_total",
		Help:      "Number of worker processes currently tracked by the master.",
	})

	ConnectionsTotal = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "workerman",
		Name:      "connections_total",
		Help:      "Active connections per worker id, from the most recent status sample.",
	}, []string{"worker_id"})

	RestartsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "workerman",
		Name:      "restarts_total",
		Help:      "Cumulative count of worker revives due to unexpected exit.",
	})

	ReloadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "workerman",
		Name:      "reload_duration_seconds",
		Help:      "Wall-clock time from reload signal to restart.workerman being written.",
		Buckets:   prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(WorkersTotal, ConnectionsTotal, RestartsTotal, ReloadDuration)
}

// Timer measures an operation's duration and records it into a
// histogram on Stop.
type Timer struct {
	start time.Time
	obs   prometheus.Observer
}

// NewTimer starts a Timer against obs.
func NewTimer(obs prometheus.Observer) *Timer {
	return &Timer{start: time.Now(), obs: obs}
}

// Stop records the elapsed duration.
func (t *Timer) Stop() {
	t.obs.Observe(time.Since(t.start).Seconds())
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve starts a debug HTTP listener exposing /metrics on addr and
// blocks until ctx is cancelled. Intended to run in its own goroutine
// from the facade when a metrics address is configured.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
