// Package observability holds the Prometheus collectors of the daemon.
// Collectors are registered on an injected registry, never on the global
// default, so tests can build as many instances as they like.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups every collector the freeze core updates.
type Metrics struct {
	TabsBlocked *prometheus.CounterVec
	Toggles     *prometheus.CounterVec
	HostErrors  *prometheus.CounterVec
	Events      *prometheus.CounterVec
	ForceOpens  prometheus.Counter
	Frozen      prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// uses a private registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		TabsBlocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabfreeze_tabs_blocked_total", Help: "New tabs closed because their opener is on a frozen domain",
		}, []string{"domain"}),
		Toggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabfreeze_toggles_total", Help: "Action clicks by resulting state",
		}, []string{"state"}),
		HostErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabfreeze_host_errors_total", Help: "Host API calls that failed, by operation",
		}, []string{"op"}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabfreeze_events_total", Help: "Host events handled, by kind",
		}, []string{"kind"}),
		ForceOpens: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tabfreeze_force_opens_total", Help: "Links opened through the override menu item",
		}),
		Frozen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tabfreeze_frozen_domains", Help: "Domains currently frozen",
		}),
	}
	reg.MustRegister(m.TabsBlocked, m.Toggles, m.HostErrors, m.Events, m.ForceOpens, m.Frozen)
	return m
}
