package observability

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymasterMetrics records relay execution outcomes. It satisfies the
// engine's metrics sink.
type PaymasterMetrics struct {
	executions *prometheus.CounterVec
	rejections *prometheus.CounterVec
}

// NewPaymasterMetrics registers the relay counters on reg. A nil registerer
// falls back to the default prometheus registry.
func NewPaymasterMetrics(reg prometheus.Registerer) *PaymasterMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &PaymasterMetrics{
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stylustx",
			Subsystem: "paymaster",
			Name:      "executions_total",
			Help:      "Meta-transactions that reached the forwarded call, segmented by outcome.",
		}, []string{"outcome"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stylustx",
			Subsystem: "paymaster",
			Name:      "rejections_total",
			Help:      "Meta-transactions rejected before forwarding, segmented by error kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.executions, m.rejections)
	return m
}

// RecordExecution counts a forwarded call.
func (m *PaymasterMetrics) RecordExecution(success bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "call_failed"
	}
	m.executions.WithLabelValues(outcome).Inc()
}

// RecordRejection counts a request refused before the call was made.
func (m *PaymasterMetrics) RecordRejection(kind string) {
	if m == nil {
		return
	}
	if strings.TrimSpace(kind) == "" {
		kind = "Unknown"
	}
	m.rejections.WithLabelValues(kind).Inc()
}
