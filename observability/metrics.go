package observability

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	queueMetricsOnce sync.Once
	queueRegistry    *QueueMetrics

	ledgerMetricsOnce sync.Once
	ledgerRegistry    *LedgerMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record query
// endpoint activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "pegcore",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total query requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "pegcore",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total query errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "pegcore",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for query handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "pegcore",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of query requests rejected by the rate limiter.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a query request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit".
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// QueueMetrics tracks submissions, per-operation outcomes and batch health of
// the operation queue.
type QueueMetrics struct {
	submitted    *prometheus.CounterVec
	outcomes     *prometheus.CounterVec
	pending      prometheus.Gauge
	batchSize    prometheus.Histogram
	batchLatency prometheus.Histogram
	execFees     prometheus.Counter
}

// Queue returns the singleton queue metrics registry.
func Queue() *QueueMetrics {
	queueMetricsOnce.Do(func() {
		queueRegistry = &QueueMetrics{
			submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "pegcore",
				Subsystem: "queue",
				Name:      "submitted_total",
				Help:      "Operations accepted into the queue segmented by type.",
			}, []string{"type"}),
			outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "pegcore",
				Subsystem: "queue",
				Name:      "operations_total",
				Help:      "Executed operations segmented by type, outcome and failure name.",
			}, []string{"type", "outcome", "failure"}),
			pending: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "pegcore",
				Subsystem: "queue",
				Name:      "pending",
				Help:      "Operations waiting for execution.",
			}),
			batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "pegcore",
				Subsystem: "queue",
				Name:      "batch_size",
				Help:      "Number of operations attempted per batch.",
				Buckets:   prometheus.LinearBuckets(0, 5, 10),
			}),
			batchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "pegcore",
				Subsystem: "queue",
				Name:      "batch_duration_seconds",
				Help:      "Latency distribution for batch execution.",
				Buckets:   prometheus.DefBuckets,
			}),
			execFees: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "pegcore",
				Subsystem: "queue",
				Name:      "exec_fees_paid",
				Help:      "Execution fees paid to executors in collateral units.",
			}),
		}
		prometheus.MustRegister(
			queueRegistry.submitted,
			queueRegistry.outcomes,
			queueRegistry.pending,
			queueRegistry.batchSize,
			queueRegistry.batchLatency,
			queueRegistry.execFees,
		)
	})
	return queueRegistry
}

// RecordSubmission counts an accepted submission.
func (m *QueueMetrics) RecordSubmission(operType string) {
	if m == nil {
		return
	}
	m.submitted.WithLabelValues(normaliseLabel(operType)).Inc()
}

// RecordOutcome counts a processed operation. failure is empty on success.
func (m *QueueMetrics) RecordOutcome(operType string, failure string) {
	if m == nil {
		return
	}
	outcome := "executed"
	if failure != "" {
		outcome = "failed"
	}
	m.outcomes.WithLabelValues(normaliseLabel(operType), outcome, failure).Inc()
}

// SetPending publishes the pending operation count.
func (m *QueueMetrics) SetPending(count uint64) {
	if m == nil {
		return
	}
	m.pending.Set(float64(count))
}

// ObserveBatch records the size and latency of a batch together with the
// execution fees paid, expressed in whole collateral units.
func (m *QueueMetrics) ObserveBatch(attempted int, duration time.Duration, fees float64) {
	if m == nil {
		return
	}
	m.batchSize.Observe(float64(attempted))
	m.batchLatency.Observe(duration.Seconds())
	if fees > 0 {
		m.execFees.Add(fees)
	}
}

// LedgerMetrics exposes the protocol health gauges derived from the buckets.
type LedgerMetrics struct {
	coverage   prometheus.Gauge
	tcPrice    prometheus.Gauge
	collateral prometheus.Gauge
	liquidated prometheus.Gauge
	paused     prometheus.Gauge
}

// Ledger returns the singleton ledger metrics registry.
func Ledger() *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			coverage: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "pegcore",
				Subsystem: "ledger",
				Name:      "coverage_ratio",
				Help:      "Global coverage ratio. Unbounded coverage is reported as +Inf.",
			}),
			tcPrice: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "pegcore",
				Subsystem: "ledger",
				Name:      "tc_price",
				Help:      "Collateral token price in collateral units.",
			}),
			collateral: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "pegcore",
				Subsystem: "ledger",
				Name:      "collateral",
				Help:      "Collateral held by the pool in whole units.",
			}),
			liquidated: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "pegcore",
				Subsystem: "ledger",
				Name:      "liquidated",
				Help:      "Set to 1 once the protocol is liquidated.",
			}),
			paused: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "pegcore",
				Subsystem: "ledger",
				Name:      "paused",
				Help:      "Set to 1 while mutating operations are paused.",
			}),
		}
		prometheus.MustRegister(
			ledgerRegistry.coverage,
			ledgerRegistry.tcPrice,
			ledgerRegistry.collateral,
			ledgerRegistry.liquidated,
			ledgerRegistry.paused,
		)
	})
	return ledgerRegistry
}

// LedgerSnapshot is the set of health values published after each batch.
type LedgerSnapshot struct {
	Coverage   float64
	TCPrice    float64
	Collateral float64
	Liquidated bool
	Paused     bool
}

// Publish updates every ledger gauge.
func (m *LedgerMetrics) Publish(s LedgerSnapshot) {
	if m == nil {
		return
	}
	m.coverage.Set(s.Coverage)
	m.tcPrice.Set(s.TCPrice)
	m.collateral.Set(s.Collateral)
	m.liquidated.Set(boolGauge(s.Liquidated))
	m.paused.Set(boolGauge(s.Paused))
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

func normaliseLabel(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return v
}
