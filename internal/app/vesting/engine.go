// Package vesting manages bonus grants and their unlock lifecycle.
//
// A grant credits coins that are spendable on-platform immediately but only
// withdrawable as cash once its vesting rule unlocks them. The engine:
//  1. Issues grants with rule-specific parameter validation
//  2. Advances revenue-vesting grants when the holder earns
//  3. Unlocks time-vesting grants on a periodic tick
//  4. Completes condition-vesting grants on an external signal
package vesting

import (
	"fmt"
	"log"
	"math"
	"time"

	"github.com/fandreams/fancoin/internal/domain"
	"github.com/fandreams/fancoin/internal/infra/metrics"
	"github.com/fandreams/fancoin/internal/infra/sqlite"
)

// Engine issues and advances bonus grants.
type Engine struct {
	db *sqlite.DB
}

// New creates a vesting engine.
func New(db *sqlite.DB) *Engine {
	return &Engine{db: db}
}

// GrantRequest is the input to Grant. Rule-specific fields are validated
// against the chosen vesting rule.
type GrantRequest struct {
	UserID      string             `json:"user_id"`
	Type        domain.GrantType   `json:"type"`
	Amount      int64              `json:"amount"`
	VestingRule domain.VestingRule `json:"vesting_rule"`

	// VestingRate applies to revenue grants: coins unlocked per BRL of
	// revenue the holder earns.
	VestingRate float64 `json:"vesting_rate,omitempty"`
	// VestingUnlockAt applies to time grants.
	VestingUnlockAt *time.Time `json:"vesting_unlock_at,omitempty"`
	// VestingCondition applies to condition grants.
	VestingCondition string `json:"vesting_condition,omitempty"`

	ReferenceID string `json:"reference_id,omitempty"`
	Description string `json:"description,omitempty"`
}

// Grant issues a bonus grant and credits the coins to the holder's wallet
// in one transaction.
func (e *Engine) Grant(req GrantRequest) (domain.BonusGrant, error) {
	var zero domain.BonusGrant
	if req.UserID == "" {
		return zero, fmt.Errorf("%w: user id required", domain.ErrInvalidArgument)
	}
	if req.Amount <= 0 {
		return zero, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidArgument)
	}

	grant := domain.BonusGrant{
		UserID:      req.UserID,
		Type:        req.Type,
		TotalAmount: req.Amount,
		VestingRule: req.VestingRule,
		Status:      domain.GrantActive,
		ReferenceID: req.ReferenceID,
		Description: req.Description,
	}

	switch req.VestingRule {
	case domain.VestNever:
		// Spend-only forever; no parameters.
	case domain.VestRevenue:
		if req.VestingRate <= 0 {
			return zero, fmt.Errorf("%w: revenue vesting requires a positive rate", domain.ErrInvalidArgument)
		}
		grant.VestingRate = req.VestingRate
		// Centavos of revenue needed to unlock the full amount,
		// rounded up to a whole BRL.
		grant.VestingRevenueRequired = int64(math.Ceil(float64(req.Amount)/req.VestingRate)) * 100
	case domain.VestTime:
		if req.VestingUnlockAt == nil {
			return zero, fmt.Errorf("%w: time vesting requires an unlock instant", domain.ErrInvalidArgument)
		}
		t := req.VestingUnlockAt.UTC()
		grant.VestingUnlockAt = &t
	case domain.VestCondition:
		if req.VestingCondition == "" {
			return zero, fmt.Errorf("%w: condition vesting requires a condition", domain.ErrInvalidArgument)
		}
		grant.VestingCondition = req.VestingCondition
	default:
		return zero, fmt.Errorf("%w: unknown vesting rule %q", domain.ErrInvalidArgument, req.VestingRule)
	}

	created, err := e.db.InsertGrant(grant)
	if err != nil {
		return zero, fmt.Errorf("grant bonus: %w", err)
	}
	metrics.EntriesApplied.WithLabelValues(string(domain.KindBonusGrant)).Inc()
	log.Printf("[vesting] granted %d coins to %s (type=%s rule=%s grant=%s)",
		created.TotalAmount, created.UserID, created.Type, created.VestingRule, created.ID)
	return created, nil
}

// RecordRevenue advances every active revenue-vesting grant of a user after
// a qualifying earning. Unlocks are monotonic; replays of the same revenue
// total never relock coins.
func (e *Engine) RecordRevenue(userID string, revenueCentavos int64) ([]sqlite.VestingUnlock, error) {
	if revenueCentavos <= 0 {
		return nil, nil
	}
	unlocks, err := e.db.AccrueRevenue(userID, revenueCentavos)
	if err != nil {
		return nil, fmt.Errorf("accrue revenue: %w", err)
	}
	for _, u := range unlocks {
		metrics.BonusCoinsUnlocked.WithLabelValues(string(domain.VestRevenue)).Add(float64(u.Unlocked))
		if u.Complete {
			log.Printf("[vesting] grant %s fully vested for %s", u.GrantID, u.UserID)
		}
	}
	return unlocks, nil
}

// Tick unlocks every time-vesting grant whose instant has passed. Safe to
// run concurrently; each grant is claimed at most once.
func (e *Engine) Tick(now time.Time) (int, error) {
	unlocks, err := e.db.UnlockTimeGrants(now)
	if err != nil {
		return 0, fmt.Errorf("unlock time grants: %w", err)
	}
	for _, u := range unlocks {
		metrics.BonusCoinsUnlocked.WithLabelValues(string(domain.VestTime)).Add(float64(u.Unlocked))
		log.Printf("[vesting] time grant %s unlocked %d coins for %s", u.GrantID, u.Unlocked, u.UserID)
	}
	return len(unlocks), nil
}

// CompleteCondition unlocks a condition-vesting grant in full.
func (e *Engine) CompleteCondition(grantID string) (domain.BonusGrant, error) {
	grant, err := e.db.CompleteConditionGrant(grantID)
	if err != nil {
		return grant, fmt.Errorf("complete condition grant: %w", err)
	}
	metrics.BonusCoinsUnlocked.WithLabelValues(string(domain.VestCondition)).Add(float64(grant.UnlockedAmount))
	log.Printf("[vesting] condition grant %s completed for %s", grant.ID, grant.UserID)
	return grant, nil
}

// Grants lists a user's grants, newest first.
func (e *Engine) Grants(userID string) ([]domain.BonusGrant, error) {
	return e.db.ListGrants(userID)
}
