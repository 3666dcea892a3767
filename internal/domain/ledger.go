// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of clean architecture — it depends on nothing.
package domain

import "time"

// ─── Account Types ──────────────────────────────────────────────────────────

// AccountType distinguishes user wallets from guild treasuries and the
// platform revenue account.
type AccountType string

const (
	AccountWallet   AccountType = "wallet"
	AccountTreasury AccountType = "treasury"
	AccountPlatform AccountType = "platform"
)

// PlatformAccountID is the singleton account that collects platform fees.
const PlatformAccountID = "platform"

// Account is the current-balance projection over the ledger.
// Balance only changes through a LedgerEntry and never goes negative.
type Account struct {
	ID          string      `json:"id"`
	Type        AccountType `json:"type"`
	Balance     int64       `json:"balance"`
	TotalEarned int64       `json:"total_earned"`
	TotalSpent  int64       `json:"total_spent"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// ─── Ledger Entry Types ─────────────────────────────────────────────────────

// EntryKind is the business reason for a ledger entry.
type EntryKind string

const (
	KindPurchase             EntryKind = "purchase"
	KindTip                  EntryKind = "tip"
	KindPPV                  EntryKind = "ppv"
	KindSubscription         EntryKind = "subscription"
	KindCommission           EntryKind = "commission"
	KindTreasuryContribution EntryKind = "treasury_contribution"
	KindBonusGrant           EntryKind = "bonus_grant"
	KindBonusUnlock          EntryKind = "bonus_unlock"
	KindCommitmentLock       EntryKind = "commitment_lock"
	KindCommitmentUnlock     EntryKind = "commitment_unlock"
	KindCommitmentPenalty    EntryKind = "commitment_penalty"
	KindPlatformFee          EntryKind = "platform_fee"
	KindWithdrawal           EntryKind = "withdrawal"
)

// AllowsLockedBonus reports whether a debit of this kind may consume bonus
// coins that have not vested. Platform-internal spends may; a cash
// withdrawal never may.
func (k EntryKind) AllowsLockedBonus() bool {
	switch k {
	case KindTip, KindPPV, KindSubscription, KindPurchase, KindCommitmentLock, KindTreasuryContribution:
		return true
	}
	return false
}

// LedgerEntry is a single immutable row in the FanCoin ledger.
// The tuple (AccountID, ReferenceID, Kind) is unique — it is the idempotency
// key that makes retried upstream events safe.
type LedgerEntry struct {
	ID           string    `json:"id"`
	AccountID    string    `json:"account_id"`
	Amount       int64     `json:"amount"` // Signed: credit > 0, debit < 0
	Kind         EntryKind `json:"kind"`
	ReferenceID  string    `json:"reference_id"`
	BalanceAfter int64     `json:"balance_after"`
	Description  string    `json:"description,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// AppliedEntry is the result of applying an entry to the ledger.
// Duplicate is true when the idempotency key already existed and the stored
// entry was returned instead of a new one.
type AppliedEntry struct {
	Entry     LedgerEntry `json:"entry"`
	Duplicate bool        `json:"duplicate"`
}

// WalletView is the read model exposed to the rest of the platform.
type WalletView struct {
	UserID            string `json:"user_id"`
	Balance           int64  `json:"balance"`
	TotalEarned       int64  `json:"total_earned"`
	TotalSpent        int64  `json:"total_spent"`
	WithdrawableBonus int64  `json:"withdrawable_bonus"`
	LockedBonus       int64  `json:"locked_bonus"`
}

// Withdrawable returns how many coins may leave the platform as cash:
// everything in the balance except bonus coins that have not vested.
func (w WalletView) Withdrawable() int64 {
	avail := w.Balance - w.LockedBonus
	if avail < 0 {
		return 0
	}
	return avail
}
