package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// AMMMetrics captures metrics for desk quote and settlement flows.
type AMMMetrics struct {
	requests   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	errors     *prometheus.CounterVec
	strategies prometheus.Gauge
	reserves   *prometheus.GaugeVec
}

var (
	ammMetricsOnce sync.Once
	ammRegistry    *AMMMetrics
)

// AMM returns the singleton metrics registry for desk operations.
func AMM() *AMMMetrics {
	ammMetricsOnce.Do(func() {
		ammRegistry = &AMMMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "pooldesk",
				Subsystem: "amm",
				Name:      "requests_total",
				Help:      "Count of desk operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "pooldesk",
				Subsystem: "amm",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for desk operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "pooldesk",
				Subsystem: "amm",
				Name:      "errors_total",
				Help:      "Count of desk failures segmented by operation and reason.",
			}, []string{"operation", "reason"}),
			strategies: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "pooldesk",
				Subsystem: "amm",
				Name:      "strategies",
				Help:      "Number of registered strategy instances.",
			}),
			reserves: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "pooldesk",
				Subsystem: "amm",
				Name:      "virtual_reserve",
				Help:      "Committed virtual reserve per strategy leg in integer token units.",
			}, []string{"strategy", "token"}),
		}
		prometheus.MustRegister(
			ammRegistry.requests,
			ammRegistry.latency,
			ammRegistry.errors,
			ammRegistry.strategies,
			ammRegistry.reserves,
		)
	})
	return ammRegistry
}

// Observe records the execution metrics for one desk operation.
func (m *AMMMetrics) Observe(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
		reason := strings.TrimSpace(err.Error())
		if reason == "" {
			reason = "unknown"
		}
		m.errors.WithLabelValues(op, reason).Inc()
	}
	m.requests.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// SetStrategyCount reports the current size of the strategy registry.
func (m *AMMMetrics) SetStrategyCount(n int) {
	if m == nil {
		return
	}
	m.strategies.Set(float64(n))
}

// SetReserve reports a committed virtual reserve. Values beyond float64
// precision lose accuracy; the gauge is for dashboards, not accounting.
func (m *AMMMetrics) SetReserve(strategyID, token string, units float64) {
	if m == nil {
		return
	}
	m.reserves.WithLabelValues(strategyID, strings.ToUpper(strings.TrimSpace(token))).Set(units)
}
