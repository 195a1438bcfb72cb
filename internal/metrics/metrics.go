package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	Iterations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bbbot_iterations_total",
			Help: "Loop iterations by outcome (ok, skipped).",
		},
		[]string{"outcome"},
	)

	Actions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bbbot_actions_total",
			Help: "Strategy actions by type.",
		},
		[]string{"action"},
	)

	Orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bbbot_orders_total",
			Help: "Orders submitted to the terminal by purpose and result.",
		},
		[]string{"purpose", "result"},
	)

	EquityGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bbbot_equity",
			Help: "Account equity reported by the terminal.",
		},
	)

	Bands = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bbbot_bollinger",
			Help: "Latest price and Bollinger values.",
		},
		[]string{"series"},
	)
)

func init() {
	prometheus.MustRegister(Iterations, Actions, Orders, EquityGauge, Bands)
}
