// Package metrics holds the Prometheus collectors updated by the mirror core.
//
//   - mirror_fills_total{decision}        fill events by dispatcher decision
//   - mirror_orders_total{target,kind}    orders submitted per target (flatten|entry|bracket)
//   - mirror_target_failures_total{class} per-target failures by error class
//   - mirror_desync_alerts_total{kind}    desync alerts raised by the reconciler
//   - mirror_targets_active               targets active after resolution
//
// Collectors are registered in init() and served by the health module at /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Fills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirror_fills_total",
			Help: "Fill events seen by the dispatcher, by decision",
		},
		[]string{"decision"},
	)

	Orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirror_orders_total",
			Help: "Mirror orders submitted, by target and kind",
		},
		[]string{"target", "kind"},
	)

	TargetFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirror_target_failures_total",
			Help: "Per-target mirror failures, by error class",
		},
		[]string{"class"},
	)

	DesyncAlerts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirror_desync_alerts_total",
			Help: "Desync alerts raised by the position reconciler",
		},
		[]string{"kind"},
	)

	ActiveTargets = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mirror_targets_active",
			Help: "Mirror targets active after handle resolution",
		},
	)
)

func init() {
	prometheus.MustRegister(Fills, Orders, TargetFailures, DesyncAlerts, ActiveTargets)
}
