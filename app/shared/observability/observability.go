// Package observability bundles the logger, metrics registry and tracer that
// get threaded through every module.
package observability

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Config selects the observability surface. An empty MetricsAddress disables
// the metrics endpoint.
type Config struct {
	ServiceName    string
	Environment    string
	MetricsAddress string
	Debug          bool
}

// Obs carries the initialized providers.
type Obs struct {
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Tracer   trace.Tracer
	Metrics  *Metrics

	metricsServer *http.Server
}

// Init builds the logger, registry and tracer. The tracer comes from the
// global otel provider, so it is a no-op unless the host process installed an
// SDK.
func Init(ctx context.Context, cfg Config) (*Obs, error) {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})).
		With(slog.String("service", cfg.ServiceName), slog.String("env", cfg.Environment))

	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	obs := &Obs{
		Logger:   logger,
		Registry: registry,
		Tracer:   otel.Tracer(cfg.ServiceName),
		Metrics:  metrics,
	}

	if cfg.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		obs.metricsServer = &http.Server{Addr: cfg.MetricsAddress, Handler: mux}
		go func() {
			if err := obs.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server stopped", slog.Any("error", err))
			}
		}()
	}

	return obs, nil
}

// Shutdown stops the metrics endpoint.
func (o *Obs) Shutdown(ctx context.Context) error {
	if o.metricsServer != nil {
		return o.metricsServer.Shutdown(ctx)
	}
	return nil
}

// Metrics is the concrete prometheus-backed recorder. Modules depend on the
// narrow interfaces they declare locally; this type satisfies all of them.
type Metrics struct {
	operationAttempts  *prometheus.CounterVec
	operationFailures  *prometheus.CounterVec
	operationDurations *prometheus.HistogramVec
	buzzOutcomes       *prometheus.CounterVec
	hostMigrations     prometheus.Counter
	feedEvents         *prometheus.CounterVec
}

// NewMetrics registers the collectors on registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		operationAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blindtest_operation_attempts_total",
			Help: "Attempted service operations by name.",
		}, []string{"operation"}),
		operationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blindtest_operation_failures_total",
			Help: "Failed service operations by name.",
		}, []string{"operation"}),
		operationDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "blindtest_operation_duration_seconds",
			Help:    "Service operation latency by name.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		buzzOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blindtest_buzz_outcomes_total",
			Help: "Buzz attempts by outcome (won, lost, rejected, error).",
		}, []string{"outcome"}),
		hostMigrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blindtest_host_migrations_total",
			Help: "Completed host failovers.",
		}),
		feedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blindtest_feed_events_total",
			Help: "Decoded change-feed events by kind.",
		}, []string{"kind"}),
	}
	registry.MustRegister(
		m.operationAttempts,
		m.operationFailures,
		m.operationDurations,
		m.buzzOutcomes,
		m.hostMigrations,
		m.feedEvents,
	)
	return m
}

func (m *Metrics) RecordOperationAttempt(ctx context.Context, operation string) {
	m.operationAttempts.WithLabelValues(operation).Inc()
}

func (m *Metrics) RecordOperationFailure(ctx context.Context, operation string) {
	m.operationFailures.WithLabelValues(operation).Inc()
}

func (m *Metrics) RecordOperationDuration(ctx context.Context, operation string, d time.Duration) {
	m.operationDurations.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *Metrics) RecordBuzzOutcome(ctx context.Context, outcome string) {
	m.buzzOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordHostMigration(ctx context.Context) {
	m.hostMigrations.Inc()
}

func (m *Metrics) RecordFeedEvent(ctx context.Context, kind string) {
	m.feedEvents.WithLabelValues(kind).Inc()
}
