// Package metrics holds the Prometheus series updated by the supervisors.
//
//   - supervisor_orders_total{symbol,action}  placed|amended|canceled|filled|rejected|dropped
//   - supervisor_cycle_errors_total{symbol}   failed duty cycles
//   - supervisor_position_corrections_total{symbol}
//   - supervisor_desired_orders{symbol}       size of the desired set
//   - supervisor_position_size{symbol}        tracked target position
//
// The series are registered in init() and served at /metrics by the fiber app.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	ActionPlaced   = "placed"
	ActionAmended  = "amended"
	ActionCanceled = "canceled"
	ActionFilled   = "filled"
	ActionRejected = "rejected"
	ActionDropped  = "dropped" // liquidation-price rejection on placement
)

var (
	Orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supervisor_orders_total",
			Help: "Order actions taken by the supervisor",
		},
		[]string{"symbol", "action"},
	)

	CycleErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supervisor_cycle_errors_total",
			Help: "Duty cycles that ended with an error",
		},
		[]string{"symbol"},
	)

	PositionCorrections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supervisor_position_corrections_total",
			Help: "Market orders sent to bring the position back to target",
		},
		[]string{"symbol"},
	)

	DesiredOrders = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "supervisor_desired_orders",
			Help: "Orders currently in the desired set",
		},
		[]string{"symbol"},
	)

	PositionSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "supervisor_position_size",
			Help: "Target position size tracked by the supervisor",
		},
		[]string{"symbol"},
	)
)

func init() {
	prometheus.MustRegister(Orders, CycleErrors, PositionCorrections, DesiredOrders, PositionSize)
}

func OrderAction(symbol string, action string, n int) {
	Orders.WithLabelValues(symbol, action).Add(float64(n))
}
