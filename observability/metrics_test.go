package observability

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"stylustx/core/events"
)

func TestPaymasterMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPaymasterMetrics(reg)

	m.RecordExecution(true)
	m.RecordExecution(true)
	m.RecordExecution(false)
	m.RecordRejection("InvalidNonce")
	m.RecordRejection("")

	require.Equal(t, float64(2), testutil.ToFloat64(m.executions.WithLabelValues("success")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.executions.WithLabelValues("call_failed")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.rejections.WithLabelValues("InvalidNonce")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.rejections.WithLabelValues("Unknown")))

	var nilMetrics *PaymasterMetrics
	nilMetrics.RecordExecution(true)
}

func TestEventMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewEventMetrics(reg)

	m.Emit(events.PausedStateChanged{Paused: true})
	m.Emit(events.TargetUpdated{Old: common.Address{}, New: common.Address{0x01}})
	m.Emit(events.PausedStateChanged{Paused: false})

	require.Equal(t, float64(2), testutil.ToFloat64(m.emitted.WithLabelValues(events.TypePausedStateChanged)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.emitted.WithLabelValues(events.TypeTargetUpdated)))
}
