// Package ledger is the wallet-facing service over the FanCoin ledger.
//
// Every balance change goes through here or through one of the sibling
// services; nothing else writes ledger entries. The service:
//  1. Validates amounts and participants
//  2. Applies paired debit/credit movements atomically
//  3. Splits the platform fee out of coin earnings (tips, PPV)
//  4. Exposes the wallet read model and transaction history
package ledger

import (
	"errors"
	"fmt"

	"github.com/fandreams/fancoin/internal/domain"
	"github.com/fandreams/fancoin/internal/infra/metrics"
	"github.com/fandreams/fancoin/internal/infra/sqlite"
)

// Service mediates wallet operations on the ledger.
type Service struct {
	db      *sqlite.DB
	economy domain.Economy
}

// New creates a ledger service with the given economy parameters.
func New(db *sqlite.DB, economy domain.Economy) *Service {
	return &Service{db: db, economy: economy}
}

// Wallet returns the read model for a user's wallet: balance, lifetime
// totals and the withdrawable/locked bonus split.
func (s *Service) Wallet(userID string) (domain.WalletView, error) {
	return s.db.Wallet(userID)
}

// History returns a wallet's most recent ledger entries, newest first.
func (s *Service) History(userID string, limit int) ([]domain.LedgerEntry, error) {
	return s.db.History(userID, limit)
}

// TransferResult describes a completed spend: the debit on the sender, the
// credit on the receiver and the platform fee taken in between.
type TransferResult struct {
	Debit       domain.LedgerEntry `json:"debit"`
	Credit      domain.LedgerEntry `json:"credit"`
	PlatformFee int64              `json:"platform_fee"`
	Duplicate   bool               `json:"duplicate"`
}

// Transfer moves coins from one wallet to another for an on-platform spend
// (tip, PPV unlock, subscription). The platform fee is split off the gross
// and credited to the platform account; the receiver gets the net. All
// three movements share the reference id and commit atomically.
//
// The debit may consume the sender's locked bonus coins. Retrying with the
// same (from, reference, kind) returns the stored result with
// Duplicate=true.
func (s *Service) Transfer(fromUserID, toUserID string, amount int64, kind domain.EntryKind, referenceID, description string) (TransferResult, error) {
	var res TransferResult
	if amount <= 0 {
		return res, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidArgument)
	}
	if fromUserID == toUserID {
		return res, fmt.Errorf("%w: sender and receiver are the same wallet", domain.ErrInvalidArgument)
	}
	switch kind {
	case domain.KindTip, domain.KindPPV, domain.KindSubscription:
	default:
		return res, fmt.Errorf("%w: kind %q is not a wallet-to-wallet spend", domain.ErrInvalidArgument, kind)
	}

	fee := s.economy.PlatformFee(amount)
	net := amount - fee

	reqs := []sqlite.EntryRequest{
		{
			AccountID:   fromUserID,
			AccountType: domain.AccountWallet,
			Amount:      -amount,
			Kind:        kind,
			ReferenceID: referenceID,
			Description: description,
		},
		{
			AccountID:   toUserID,
			AccountType: domain.AccountWallet,
			Amount:      net,
			Kind:        kind,
			ReferenceID: referenceID,
			Description: description,
		},
	}
	if fee > 0 {
		reqs = append(reqs, sqlite.EntryRequest{
			AccountID:   domain.PlatformAccountID,
			AccountType: domain.AccountPlatform,
			Amount:      fee,
			Kind:        domain.KindPlatformFee,
			ReferenceID: referenceID,
			Description: fmt.Sprintf("platform fee on %s", kind),
		})
	}

	applied, err := s.db.ApplyEntries(reqs...)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			metrics.InsufficientFunds.Inc()
		}
		return res, fmt.Errorf("transfer %s: %w", kind, err)
	}

	res.Debit = applied[0].Entry
	res.Credit = applied[1].Entry
	res.PlatformFee = fee
	res.Duplicate = applied[0].Duplicate
	if !res.Duplicate {
		metrics.EntriesApplied.WithLabelValues(string(kind)).Add(2)
	} else {
		metrics.DuplicateEntries.Inc()
	}
	return res, nil
}

// CreditPurchase credits a wallet for a fiat coin purchase. The coin amount
// is derived from the paid centavos at the current rate. Idempotent on the
// payment id.
func (s *Service) CreditPurchase(userID, paymentID string, amountCentavos int64) (domain.AppliedEntry, error) {
	coins := s.economy.CoinsFromCentavos(amountCentavos)
	if coins <= 0 {
		return domain.AppliedEntry{}, fmt.Errorf("%w: purchase of %d centavos yields no coins",
			domain.ErrInvalidArgument, amountCentavos)
	}
	applied, err := s.db.ApplyEntry(sqlite.EntryRequest{
		AccountID:   userID,
		AccountType: domain.AccountWallet,
		Amount:      coins,
		Kind:        domain.KindPurchase,
		ReferenceID: paymentID,
		Description: fmt.Sprintf("coin purchase, %d centavos", amountCentavos),
	})
	if err != nil {
		return applied, fmt.Errorf("credit purchase: %w", err)
	}
	if applied.Duplicate {
		metrics.DuplicateEntries.Inc()
	} else {
		metrics.EntriesApplied.WithLabelValues(string(domain.KindPurchase)).Inc()
	}
	return applied, nil
}

// Withdraw debits a wallet for a cash-out. Locked bonus coins never leave
// the platform: the debit fails with ErrInsufficientFunds when the amount
// exceeds the withdrawable balance. Idempotent on the withdrawal id.
func (s *Service) Withdraw(userID, withdrawalID string, amount int64) (domain.AppliedEntry, error) {
	if amount <= 0 {
		return domain.AppliedEntry{}, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidArgument)
	}
	applied, err := s.db.ApplyEntry(sqlite.EntryRequest{
		AccountID:   userID,
		AccountType: domain.AccountWallet,
		Amount:      -amount,
		Kind:        domain.KindWithdrawal,
		ReferenceID: withdrawalID,
		Description: "cash withdrawal",
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			metrics.InsufficientFunds.Inc()
		}
		return applied, fmt.Errorf("withdraw: %w", err)
	}
	if applied.Duplicate {
		metrics.DuplicateEntries.Inc()
	} else {
		metrics.EntriesApplied.WithLabelValues(string(domain.KindWithdrawal)).Inc()
	}
	return applied, nil
}
