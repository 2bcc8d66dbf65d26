// Package metrics exposes Prometheus counters for bot activity.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use through a nil pointer; every recorder becomes a
// no-op.
type Metrics struct {
	registry     *prometheus.Registry
	events       *prometheus.CounterVec
	workflows    *prometheus.CounterVec
	transactions *prometheus.CounterVec
	confirmWait  *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "walletbot",
			Subsystem: "bot",
			Name:      "events_total",
			Help:      "Inbound chat events by kind.",
		}, []string{"kind"}),
		workflows: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "walletbot",
			Subsystem: "bot",
			Name:      "workflows_total",
			Help:      "Finished workflows by name and outcome.",
		}, []string{"workflow", "outcome"}),
		transactions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "walletbot",
			Subsystem: "execution",
			Name:      "transactions_total",
			Help:      "Submitted transactions by chain and outcome.",
		}, []string{"chain", "outcome"}),
		confirmWait: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "walletbot",
			Subsystem: "execution",
			Name:      "confirmation_seconds",
			Help:      "Time from broadcast to receipt.",
			Buckets:   []float64{1, 2, 5, 10, 30, 60, 120, 180},
		}, []string{"chain"}),
	}
}

func (m *Metrics) Event(kind string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind).Inc()
}

func (m *Metrics) Workflow(name, outcome string) {
	if m == nil {
		return
	}
	m.workflows.WithLabelValues(name, outcome).Inc()
}

func (m *Metrics) Transaction(chain, outcome string) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(chain, outcome).Inc()
}

func (m *Metrics) ConfirmationWait(chain string, d time.Duration) {
	if m == nil {
		return
	}
	m.confirmWait.WithLabelValues(chain).Observe(d.Seconds())
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, m *Metrics) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
