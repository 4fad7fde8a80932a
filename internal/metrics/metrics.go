// Package metrics exposes pipeline step timings and run outcomes to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const namespace = "marketdigest"

// Step statuses.
const (
	StatusOK      = "ok"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Metrics owns a private registry so several instances can coexist in tests.
// A nil *Metrics is a valid no-op.
type Metrics struct {
	registry        *prometheus.Registry
	stepDuration    *prometheus.HistogramVec
	stepTotal       *prometheus.CounterVec
	runsTotal       *prometheus.CounterVec
	budgetRemaining prometheus.Gauge
	serviceInfo     *prometheus.GaugeVec
}

func New(version, commit string) *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.stepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Pipeline step duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 180},
		},
		[]string{"step"},
	)
	m.stepTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Pipeline steps by outcome",
		},
		[]string{"step", "status"},
	)
	m.runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Hourly runs by delivery result",
		},
		[]string{"result"},
	)
	m.budgetRemaining = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "budget_remaining_seconds",
			Help:      "Time budget left when the last run finished",
		},
	)
	m.serviceInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "service_info",
			Help:      "Service information",
		},
		[]string{"version", "commit"},
	)

	m.registry.MustRegister(
		m.stepDuration,
		m.stepTotal,
		m.runsTotal,
		m.budgetRemaining,
		m.serviceInfo,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.serviceInfo.WithLabelValues(version, commit).Set(1)
	return m
}

// ObserveStep records one step execution.
func (m *Metrics) ObserveStep(step, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(step).Observe(d.Seconds())
	m.stepTotal.WithLabelValues(step, status).Inc()
}

// ObserveRun records the final result of a run.
func (m *Metrics) ObserveRun(result string, remaining time.Duration) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(result).Inc()
	m.budgetRemaining.Set(remaining.Seconds())
}

// Handler serves the private registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("metrics listener started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
