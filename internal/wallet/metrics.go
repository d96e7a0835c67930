package wallet

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	paymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wallet",
			Name:      "payments_total",
			Help:      "Payment attempts by outcome method.",
		},
		[]string{"method"}, // deposit, credit, deposit_and_credit, insufficient_funds
	)

	ledgerOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wallet",
			Name:      "ledger_ops_total",
			Help:      "Journal rows written by transaction type.",
		},
		[]string{"type"},
	)
)
