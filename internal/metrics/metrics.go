// Package metrics holds the process-wide Prometheus collectors shared by
// internal/core and internal/session.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the set of counters/gauges a session or the server reports
// against. A nil *Metrics is safe to use everywhere below — tests that
// don't care about metrics can simply not construct one.
type Metrics struct {
	SessionsActive     prometheus.Gauge
	TunnelsEstablished prometheus.Counter
	Fallbacks          prometheus.Counter
	SessionErrors      *prometheus.CounterVec
}

// New creates and registers the collectors against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trojan_sessions_active",
			Help: "Number of sessions currently in progress.",
		}),
		TunnelsEstablished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trojan_tunnels_established_total",
			Help: "Tunnels established to a client-requested target.",
		}),
		Fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trojan_fallbacks_total",
			Help: "Sessions that fell back to the configured origin.",
		}),
		SessionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trojan_session_errors_total",
			Help: "Session teardowns by error kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.SessionsActive, m.TunnelsEstablished, m.Fallbacks, m.SessionErrors)
	return m
}

// SessionStarted records a new accepted connection. Safe to call on a nil
// *Metrics.
func (m *Metrics) SessionStarted() {
	if m != nil {
		m.SessionsActive.Inc()
	}
}

// SessionEnded records a torn-down session. Safe to call on a nil *Metrics.
func (m *Metrics) SessionEnded() {
	if m != nil {
		m.SessionsActive.Dec()
	}
}

// TunnelEstablished records a successful client-requested tunnel.
func (m *Metrics) TunnelEstablished() {
	if m != nil {
		m.TunnelsEstablished.Inc()
	}
}

// Fallback records a session that relayed to the fallback origin instead.
func (m *Metrics) Fallback() {
	if m != nil {
		m.Fallbacks.Inc()
	}
}

// Error records a session teardown of the given kind. The session records
// dial failures as "resolve", "connect" or "dial".
func (m *Metrics) Error(kind string) {
	if m != nil {
		m.SessionErrors.WithLabelValues(kind).Inc()
	}
}
