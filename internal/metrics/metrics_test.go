package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, g.Write(m))
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

func TestMetricsLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SessionStarted()
	m.SessionStarted()
	require.Equal(t, 2.0, gaugeValue(t, m.SessionsActive))

	m.SessionEnded()
	require.Equal(t, 1.0, gaugeValue(t, m.SessionsActive))

	m.TunnelEstablished()
	require.Equal(t, 1.0, counterValue(t, m.TunnelsEstablished))

	m.Fallback()
	require.Equal(t, 1.0, counterValue(t, m.Fallbacks))

	m.Error("resolve")
	m.Error("resolve")
	m.Error("connect")
	require.Equal(t, 2.0, counterValue(t, m.SessionErrors.WithLabelValues("resolve")))
	require.Equal(t, 1.0, counterValue(t, m.SessionErrors.WithLabelValues("connect")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.SessionStarted()
		m.SessionEnded()
		m.TunnelEstablished()
		m.Fallback()
		m.Error("dial")
	})
}
