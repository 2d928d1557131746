// Package metrics holds the Prometheus collectors for authentication outcomes.
package metrics

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Auth counts authentication outcomes by flow and result.
type Auth struct {
	registry *prometheus.Registry
	events   *prometheus.CounterVec
	lockouts prometheus.Counter
}

// NewAuth registers the auth collectors on a fresh registry.
func NewAuth() *Auth {
	reg := prometheus.NewRegistry()
	m := &Auth{
		registry: reg,
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleet",
			Subsystem: "auth",
			Name:      "events_total",
			Help:      "Authentication flow outcomes.",
		}, []string{"flow", "result"}),
		lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fleet",
			Subsystem: "auth",
			Name:      "lockouts_total",
			Help:      "Accounts locked after repeated failed logins.",
		}),
	}
	reg.MustRegister(m.events, m.lockouts)
	return m
}

// Observe records one flow outcome.  A nil receiver is a no-op.
func (m *Auth) Observe(flow, result string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(flow, result).Inc()
}

// Lockout records an account entering lockout.
func (m *Auth) Lockout() {
	if m == nil {
		return
	}
	m.lockouts.Inc()
}

// Registry exposes the registry for tests.
func (m *Auth) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Auth) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
