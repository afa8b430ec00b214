// Package metrics exposes Prometheus instrumentation for the dispatcher and
// host ABI, grounded on internal/escrow/metrics.go's promauto registration
// idiom.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the runtime reports.
type Metrics struct {
	ComputationUsedPercent *prometheus.HistogramVec
	ExecutionDuration      *prometheus.HistogramVec
	ExecutionResult        *prometheus.CounterVec

	DispatcherQueueDepth prometheus.Gauge
	DispatcherDropped    *prometheus.CounterVec

	StorageDenied *prometheus.CounterVec
	StorageBytes  *prometheus.GaugeVec

	LogbacksGranted *prometheus.CounterVec
	LogbacksDenied  *prometheus.CounterVec
}

// New creates and registers every collector.
func New() *Metrics {
	return &Metrics{
		ComputationUsedPercent: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "plaid_computation_used_percent",
				Help:    "Fraction of a module's computation limit consumed by one invocation",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 0.75, 0.9, 1.0},
			},
			[]string{"module"},
		),
		ExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "plaid_execution_duration_seconds",
				Help:    "Wall-clock duration of a single module invocation",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"module", "logtype"},
		),
		ExecutionResult: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plaid_execution_result_total",
				Help: "Total invocations by outcome",
			},
			[]string{"module", "result"}, // result: zero, nonzero, trap
		),
		DispatcherQueueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "plaid_dispatcher_queue_depth",
				Help: "Current number of messages waiting in the dispatch queue",
			},
		),
		DispatcherDropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plaid_dispatcher_dropped_total",
				Help: "Messages dropped by the dispatcher",
			},
			[]string{"reason"}, // reason: queue_full, no_target
		),
		StorageDenied: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plaid_storage_quota_denied_total",
				Help: "Storage writes refused for exceeding a module's quota",
			},
			[]string{"module"},
		),
		StorageBytes: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "plaid_storage_bytes_used",
				Help: "Bytes currently stored in a module's persistent storage namespace",
			},
			[]string{"module"},
		),
		LogbacksGranted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plaid_logbacks_granted_total",
				Help: "Logback requests granted against the caller's budget",
			},
			[]string{"module"},
		),
		LogbacksDenied: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plaid_logbacks_denied_total",
				Help: "Logback requests refused for exceeding the caller's budget",
			},
			[]string{"module"},
		),
	}
}

// RecordExecution updates the duration/result/computation-used collectors
// for one completed invocation.
func (m *Metrics) RecordExecution(module, logtype, result string, duration float64, computationUsedPercent float64) {
	m.ExecutionDuration.WithLabelValues(module, logtype).Observe(duration)
	m.ExecutionResult.WithLabelValues(module, result).Inc()
	m.ComputationUsedPercent.WithLabelValues(module).Observe(computationUsedPercent)
}

// RecordStorageDenied increments the quota-denial counter for a module.
func (m *Metrics) RecordStorageDenied(module string) {
	m.StorageDenied.WithLabelValues(module).Inc()
}

// RecordStorageBytes sets the current usage gauge for a module.
func (m *Metrics) RecordStorageBytes(module string, bytes float64) {
	m.StorageBytes.WithLabelValues(module).Set(bytes)
}

// RecordLogback increments the granted or denied counter for a module.
func (m *Metrics) RecordLogback(module string, granted bool) {
	if granted {
		m.LogbacksGranted.WithLabelValues(module).Inc()
		return
	}
	m.LogbacksDenied.WithLabelValues(module).Inc()
}

// RecordDrop increments the dispatcher drop counter for reason.
func (m *Metrics) RecordDrop(reason string) {
	m.DispatcherDropped.WithLabelValues(reason).Inc()
}
