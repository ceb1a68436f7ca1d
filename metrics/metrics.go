package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SignalsDetected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "godec_signals_detected_total",
			Help: "Entry signals detected (by rule set).",
		},
		[]string{"strategy"},
	)

	OrdersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "godec_orders_submitted_total",
			Help: "Orders submitted to the gateway (by rule set).",
		},
		[]string{"strategy"},
	)

	OrdersRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "godec_orders_rejected_total",
			Help: "Orders dropped before or at submission (by reason).",
		},
		[]string{"reason"},
	)

	PositionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "godec_positions_open",
			Help: "Current number of open scalp positions.",
		},
	)

	EquityGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "godec_equity",
			Help: "Last synced account equity.",
		},
	)

	RealizedPnl = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "godec_realized_pnl",
			Help: "Cumulative realized pnl of closed positions.",
		},
	)

	ScansSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "godec_scans_skipped_total",
			Help: "Task ticks skipped because the previous run was still active.",
		},
		[]string{"task"},
	)

	ExchangeErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "godec_exchange_errors_total",
			Help: "Transient exchange I/O failures.",
		},
	)

	Connected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "godec_exchange_connected",
			Help: "1 when the last exchange call succeeded, 0 when unreachable.",
		},
	)

	CurrentRegime = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "godec_market_regime",
			Help: "Current market regime (1 for the active label).",
		},
		[]string{"regime"},
	)
)

func init() {
	prometheus.MustRegister(
		SignalsDetected, OrdersSubmitted, OrdersRejected,
		PositionsOpen, EquityGauge, RealizedPnl,
		ScansSkipped, ExchangeErrors, Connected, CurrentRegime,
	)
}

// SetRegime flips the regime gauge so exactly one label reads 1.
func SetRegime(regime string) {
	CurrentRegime.Reset()
	CurrentRegime.WithLabelValues(regime).Set(1)
}
