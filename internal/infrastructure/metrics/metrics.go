// Package metrics exposes reconciliation measurements to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"storeledger/internal/core/apperror"
	"storeledger/internal/core/entity"
	"storeledger/internal/core/retry"
	"storeledger/internal/domain/inventorycount"
	"storeledger/internal/domain/movement"
	"storeledger/internal/infrastructure/events"
	"storeledger/internal/infrastructure/sequence"
)

const namespace = "storeledger"

// Metrics holds every collector of the service.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	CommitsTotal     *prometheus.CounterVec
	CommitDuration   *prometheus.HistogramVec
	StockDeltaUnits  *prometheus.CounterVec
	RetriesTotal     *prometheus.CounterVec
	CountOpsTotal    *prometheus.CounterVec
	SequenceTotal    *prometheus.CounterVec
	SequenceDuration *prometheus.HistogramVec
	OutboxDeliveries *prometheus.CounterVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: registry}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)
	m.HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		},
	)

	m.CommitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "movement_commits_total",
			Help:      "Commit attempts by movement kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
	m.CommitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "movement_commit_duration_seconds",
			Help:      "Commit attempt duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"kind"},
	)
	m.StockDeltaUnits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_delta_units_total",
			Help:      "Absolute stock units moved by committed deltas",
		},
		[]string{"kind", "direction"},
	)
	m.RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflict_retries_total",
			Help:      "Operations retried after a transaction conflict",
		},
		[]string{"operation"},
	)
	m.CountOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_count_operations_total",
			Help:      "Inventory count start, fix and unfix attempts by outcome",
		},
		[]string{"operation", "outcome"},
	)
	m.SequenceTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sequence_allocations_total",
			Help:      "Sequence allocations by counter and outcome",
		},
		[]string{"counter", "outcome"},
	)
	m.SequenceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sequence_allocation_duration_seconds",
			Help:      "Sequence allocation duration in seconds",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25},
		},
		[]string{"counter"},
	)
	m.OutboxDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_deliveries_total",
			Help:      "Outbox delivery attempts by event type and outcome",
		},
		[]string{"event_type", "outcome"},
	)

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.CommitsTotal,
		m.CommitDuration,
		m.StockDeltaUnits,
		m.RetriesTotal,
		m.CountOpsTotal,
		m.SequenceTotal,
		m.SequenceDuration,
		m.OutboxDeliveries,
	)
	return m
}

// Handler returns the /metrics handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records one finished request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// CommitObserved implements movement.Recorder.
func (m *Metrics) CommitObserved(kind entity.MovementKind, err error, d time.Duration) {
	m.CommitsTotal.WithLabelValues(string(kind), outcome(err)).Inc()
	m.CommitDuration.WithLabelValues(string(kind)).Observe(d.Seconds())
}

// DeltaApplied implements movement.Recorder.
func (m *Metrics) DeltaApplied(kind entity.MovementKind, delta int64) {
	switch {
	case delta > 0:
		m.StockDeltaUnits.WithLabelValues(string(kind), "in").Add(float64(delta))
	case delta < 0:
		m.StockDeltaUnits.WithLabelValues(string(kind), "out").Add(float64(-delta))
	}
}

// RetryObserved implements retry.Observer.
func (m *Metrics) RetryObserved(operation string) {
	m.RetriesTotal.WithLabelValues(operation).Inc()
}

// CountObserved implements inventorycount.Recorder.
func (m *Metrics) CountObserved(op string, err error) {
	m.CountOpsTotal.WithLabelValues(op, outcome(err)).Inc()
}

// SequenceObserved implements sequence.Observer.
func (m *Metrics) SequenceObserved(counter string, err error, d time.Duration) {
	m.SequenceTotal.WithLabelValues(counter, outcome(err)).Inc()
	m.SequenceDuration.WithLabelValues(counter).Observe(d.Seconds())
}

// RelayObserved implements events.Observer.
func (m *Metrics) RelayObserved(eventType string, err error) {
	m.OutboxDeliveries.WithLabelValues(eventType, outcome(err)).Inc()
}

// outcome is "ok" or the lower-case application error code.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if appErr, ok := apperror.AsAppError(err); ok {
		return strings.ToLower(appErr.Code)
	}
	return "error"
}

var (
	_ movement.Recorder       = (*Metrics)(nil)
	_ inventorycount.Recorder = (*Metrics)(nil)
	_ retry.Observer          = (*Metrics)(nil)
	_ sequence.Observer       = (*Metrics)(nil)
	_ events.Observer         = (*Metrics)(nil)
)
