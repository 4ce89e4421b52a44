// Package metrics holds the Prometheus collectors of the tracker.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector on a dedicated registry.
type Metrics struct {
	registry *prometheus.Registry

	Recomputes       prometheus.Counter
	PhaseTransitions *prometheus.CounterVec
	Compounding      *prometheus.CounterVec
	LedgerWarnings   prometheus.Counter
	Transactions     *prometheus.CounterVec
	PriceFetches     *prometheus.CounterVec
	TrackedPositions prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Recomputes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "infbuy_recompute_total",
				Help: "Valuation pipeline runs.",
			},
		),
		PhaseTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "infbuy_phase_transitions_total",
				Help: "Phase transitions by target phase.",
			},
			[]string{"to"},
		),
		Compounding: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "infbuy_compounding_total",
				Help: "Capital compounding events (kind=apply|revert).",
			},
			[]string{"kind"},
		),
		LedgerWarnings: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "infbuy_ledger_warnings_total",
				Help: "Deleted compounding sells without a ledger entry.",
			},
		),
		Transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "infbuy_transactions_total",
				Help: "Recorded transactions by type.",
			},
			[]string{"type"},
		),
		PriceFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "infbuy_price_fetch_total",
				Help: "Price history fetches by source and result (hit|miss|error|stale).",
			},
			[]string{"source", "result"},
		),
		TrackedPositions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "infbuy_tracked_positions",
				Help: "Positions known to the tracker.",
			},
		),
	}

	m.registry.MustRegister(m.Recomputes, m.PhaseTransitions, m.Compounding, m.LedgerWarnings)
	m.registry.MustRegister(m.Transactions, m.PriceFetches, m.TrackedPositions)
	m.registry.MustRegister(collectors.NewGoCollector())

	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
