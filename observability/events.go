package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	engineEvents *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking structured engine events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			engineEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "pooldesk",
				Subsystem: "events",
				Name:      "engine_total",
				Help:      "Count of engine events segmented by event type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.engineEvents)
	})
	return eventRegistry
}

// RecordEngineEvent increments the counter for the supplied event type.
func (m *eventMetrics) RecordEngineEvent(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(eventType)
	if normalized == "" {
		normalized = "unknown"
	}
	m.engineEvents.WithLabelValues(normalized).Inc()
}
