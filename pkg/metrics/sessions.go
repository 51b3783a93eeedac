package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SessionMetrics records sign-in/sign-out activity and inactivity-guard events.
type SessionMetrics struct {
	signIns        *prometheus.CounterVec
	signOuts       *prometheus.CounterVec
	activityEvents *prometheus.CounterVec
	warnings       prometheus.Counter
	activeSession  prometheus.Gauge
}

// NewSessionMetrics registers the session metrics on the provided registerer.
func NewSessionMetrics(reg prometheus.Registerer) *SessionMetrics {
	if reg == nil {
		return &SessionMetrics{}
	}
	signIns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "session_sign_ins_total",
		Help: "Successful sign-ins by method (password, restore, signup).",
	}, []string{"method"})
	signOuts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "session_sign_outs_total",
		Help: "Sign-outs by reason (manual, inactivity).",
	}, []string{"reason"})
	activityEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "session_activity_events_total",
		Help: "Interaction events observed by the inactivity guard.",
	}, []string{"kind"})
	warnings := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "session_inactivity_warnings_total",
		Help: "Inactivity warnings fired before forced logout.",
	})
	activeSession := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "session_active",
		Help: "Whether an authenticated session is currently held (0 or 1).",
	})
	reg.MustRegister(signIns, signOuts, activityEvents, warnings, activeSession)
	return &SessionMetrics{
		signIns:        signIns,
		signOuts:       signOuts,
		activityEvents: activityEvents,
		warnings:       warnings,
		activeSession:  activeSession,
	}
}

// IncSignIn increments the sign-in counter for the given method.
func (m *SessionMetrics) IncSignIn(method string) {
	if m == nil || m.signIns == nil {
		return
	}
	m.signIns.WithLabelValues(normalizeLabel(method)).Inc()
}

// IncSignOut increments the sign-out counter for the given reason.
func (m *SessionMetrics) IncSignOut(reason string) {
	if m == nil || m.signOuts == nil {
		return
	}
	m.signOuts.WithLabelValues(normalizeLabel(reason)).Inc()
}

// IncActivity increments the interaction-event counter for the given kind.
func (m *SessionMetrics) IncActivity(kind string) {
	if m == nil || m.activityEvents == nil {
		return
	}
	m.activityEvents.WithLabelValues(normalizeLabel(kind)).Inc()
}

// IncWarning increments the inactivity-warning counter.
func (m *SessionMetrics) IncWarning() {
	if m == nil || m.warnings == nil {
		return
	}
	m.warnings.Inc()
}

// SetSessionActive flips the active-session gauge.
func (m *SessionMetrics) SetSessionActive(active bool) {
	if m == nil || m.activeSession == nil {
		return
	}
	if active {
		m.activeSession.Set(1)
		return
	}
	m.activeSession.Set(0)
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
