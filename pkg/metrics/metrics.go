// Package metrics registers the Prometheus series the pipeline and
// dashboard emit as package-level vars, registered once via sync.Once.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Decisions counts every pipeline outcome, labeled by the decision
	// the state machine reached: forward, throttle, block, ban_hit.
	Decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskgate",
			Name:      "decisions_total",
			Help:      "Total pipeline decisions, labeled by outcome.",
		},
		[]string{"decision"},
	)

	RiskScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "riskgate",
			Name:      "risk_score",
			Help:      "Distribution of computed risk scores.",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	BansTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "riskgate",
			Name:      "bans_total",
			Help:      "Total bans issued.",
		},
	)

	UpstreamErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "riskgate",
			Name:      "upstream_errors_total",
			Help:      "Total upstream forwarding failures (502s).",
		},
	)

	ActiveClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "riskgate",
			Name:      "active_clients",
			Help:      "Number of distinct client fingerprints currently tracked.",
		},
	)

	registerOnce sync.Once
)

// Register wires every series above into reg exactly once.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(Decisions)
		reg.MustRegister(RiskScore)
		reg.MustRegister(BansTotal)
		reg.MustRegister(UpstreamErrors)
		reg.MustRegister(ActiveClients)
	})
}
