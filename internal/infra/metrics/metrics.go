// Package metrics exposes Prometheus instrumentation for the FanCoin core.
// Counters are registered once via promauto and shared by the services.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EntriesApplied counts ledger entries by kind.
	EntriesApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fancoin_ledger_entries_total",
		Help: "Ledger entries applied, by kind.",
	}, []string{"kind"})

	// DuplicateEntries counts idempotency-key hits (retried upstream events).
	DuplicateEntries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fancoin_ledger_duplicates_total",
		Help: "Entry applications resolved by returning the stored entry.",
	})

	// InsufficientFunds counts rejected debits.
	InsufficientFunds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fancoin_ledger_insufficient_funds_total",
		Help: "Debits rejected because the available balance was too low.",
	})

	// PaymentsProcessed counts completed payment events by purpose.
	PaymentsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fancoin_payments_processed_total",
		Help: "Payment-completed events processed, by purpose.",
	}, []string{"purpose"})

	// EnrichmentFailures counts isolated enrichment errors by component.
	// An enrichment failure never rolls back the canonical credit.
	EnrichmentFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fancoin_enrichment_failures_total",
		Help: "Best-effort enrichment steps that failed, by component.",
	}, []string{"component"})

	// CommissionsCredited counts affiliate commissions by cascade level.
	CommissionsCredited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fancoin_commissions_credited_total",
		Help: "Affiliate commissions credited, by level.",
	}, []string{"level"})

	// TreasurySkims counts applied guild treasury contributions.
	TreasurySkims = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fancoin_treasury_skims_total",
		Help: "Guild treasury contributions applied.",
	})

	// TreasuryCoinsSkimmed totals the coins redirected to guild treasuries.
	TreasuryCoinsSkimmed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fancoin_treasury_coins_total",
		Help: "FanCoins redirected into guild treasuries.",
	})

	// BonusCoinsUnlocked totals the coins moved to the withdrawable split.
	BonusCoinsUnlocked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fancoin_bonus_coins_unlocked_total",
		Help: "Bonus coins unlocked by vesting, by rule.",
	}, []string{"rule"})

	// CommitmentsByOutcome counts commitment terminations.
	CommitmentsByOutcome = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fancoin_commitments_total",
		Help: "Commitment transitions, by outcome.",
	}, []string{"outcome"})

	// CoinsBurned totals coins removed from circulation by early-withdrawal
	// penalties.
	CoinsBurned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fancoin_coins_burned_total",
		Help: "FanCoins burned by early-withdrawal penalties.",
	})
)
