package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	OrdersPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dcabot_orders_placed_total",
			Help: "Total number of orders accepted by the exchange.",
		},
		[]string{"symbol", "side", "type"},
	)

	OrdersFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dcabot_orders_failed_total",
			Help: "Total number of order submissions that failed.",
		},
		[]string{"symbol", "transient"},
	)

	LadderLevels = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dcabot_ladder_levels_total",
			Help: "DCA ladder levels by outcome.",
		},
		[]string{"symbol", "status"},
	)

	ExitTriggers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dcabot_exit_triggers_total",
			Help: "Take-profit / stop-loss triggers.",
		},
		[]string{"symbol", "kind"},
	)

	ReadFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dcabot_read_failures_total",
			Help: "Failed exchange read queries (degraded to empty results).",
		},
		[]string{"op"},
	)

	WatchedBots = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dcabot_watched_bots",
			Help: "Bots currently polled by the exit watcher.",
		},
	)
)

func init() {
	prometheus.MustRegister(OrdersPlaced, OrdersFailed, LadderLevels, ExitTriggers, ReadFailures, WatchedBots)
}
