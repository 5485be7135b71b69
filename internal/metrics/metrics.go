package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DepositsConfirmed counts provider callbacks that credited a wallet.
	DepositsConfirmed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gamezone_deposits_confirmed_total",
		Help: "Deposits confirmed through the payment provider callback.",
	})

	// Withdrawals counts confirmed withdrawal entries.
	Withdrawals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gamezone_withdrawals_total",
		Help: "Withdrawals debited from user wallets.",
	})

	// GamesCreated counts lobbies opened.
	GamesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gamezone_games_created_total",
		Help: "Game lobbies created.",
	})

	// GamesSettled counts sessions that reached a terminal payout.
	GamesSettled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gamezone_games_settled_total",
		Help: "Game sessions settled with a winner.",
	})

	// Forfeits counts settlements triggered by turn timeouts.
	Forfeits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gamezone_forfeits_total",
		Help: "Games forfeited because the turn owner exceeded the move timeout.",
	})

	// ActiveSessions tracks sessions currently in the active state.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gamezone_active_sessions",
		Help: "Game sessions currently being played.",
	})

	// SettlementDuration observes how long a settlement takes end to end.
	SettlementDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gamezone_settlement_duration_seconds",
		Help:    "Wall-clock duration of pot settlement.",
		Buckets: prometheus.DefBuckets,
	})
)
