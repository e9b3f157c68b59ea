package observability

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"stylustx/core/events"
)

// EventMetrics counts emitted relay events by type. It is an events.Emitter
// so it can sit behind a MultiEmitter next to the event log.
type EventMetrics struct {
	emitted *prometheus.CounterVec
}

// NewEventMetrics registers the event counter on reg.
func NewEventMetrics(reg prometheus.Registerer) *EventMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &EventMetrics{
		emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stylustx",
			Subsystem: "events",
			Name:      "emitted_total",
			Help:      "Count of relay events segmented by type.",
		}, []string{"type"}),
	}
	reg.MustRegister(m.emitted)
	return m
}

// Emit increments the counter for the event's type.
func (m *EventMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	normalized := strings.TrimSpace(evt.EventType())
	if normalized == "" {
		normalized = "unknown"
	}
	m.emitted.WithLabelValues(normalized).Inc()
}
