package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	PaymentsInitiated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_initiated_total",
			Help: "Payments created, by method.",
		},
		[]string{"method"},
	)

	PaymentsSettled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_settled_total",
			Help: "Terminal transitions applied, by method, status and delivery path.",
		},
		[]string{"method", "status", "source"},
	)

	PaymentAmounts = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_amounts_rwf",
			Help:    "Distribution of initiated payment amounts in RWF.",
			Buckets: prometheus.ExponentialBuckets(500, 2, 12),
		},
		[]string{"method"},
	)

	ProviderErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_errors_total",
			Help: "Failed calls to payment rails, by provider and operation.",
		},
		[]string{"provider", "op"},
	)

	TokenRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_token_refreshes_total",
			Help: "Token exchanges performed, by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	CallbacksReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_callbacks_total",
			Help: "Provider callbacks received, by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	LedgerEntries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_ledger_entries_total",
			Help: "Wallet ledger entries written, by type.",
		},
		[]string{"type"},
	)

	TransitionsLost = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payment_transitions_lost_total",
			Help: "Status updates that lost a race and were treated as no-ops.",
		},
	)
)

var registerOnce sync.Once

// RegisterMetrics registers all collectors with the default registry. Safe to
// call more than once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			PaymentsInitiated,
			PaymentsSettled,
			PaymentAmounts,
			ProviderErrors,
			TokenRefreshes,
			CallbacksReceived,
			LedgerEntries,
			TransitionsLost,
		)
	})
}
