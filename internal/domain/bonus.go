package domain

import "time"

// ─── Bonus Grant Types ──────────────────────────────────────────────────────
// A bonus grant is a non-fungible credit layered on top of a wallet's
// fungible balance. Its coins are spendable on-platform immediately but only
// become withdrawable as cash once the grant's vesting rule unlocks them.

// GrantType is the business reason a bonus was granted.
type GrantType string

const (
	GrantPurchase        GrantType = "purchase"
	GrantCreatorWelcome  GrantType = "creator_welcome"
	GrantEngagement      GrantType = "engagement"
	GrantCampaignPrize   GrantType = "campaign_prize"
	GrantReferral        GrantType = "referral"
	GrantCommitmentBonus GrantType = "commitment_bonus"
)

// VestingRule determines how a grant's coins become withdrawable.
type VestingRule string

const (
	// VestNever: coins are spend-only forever. Tips, PPV and purchases may
	// consume them; a cash withdrawal never can.
	VestNever VestingRule = "never"
	// VestRevenue: coins unlock proportionally to revenue the holder earns.
	VestRevenue VestingRule = "revenue"
	// VestTime: coins unlock in full at a fixed instant.
	VestTime VestingRule = "time"
	// VestCondition: coins unlock in full when an external signal fires.
	VestCondition VestingRule = "condition"
)

// GrantStatus is the grant lifecycle state.
type GrantStatus string

const (
	GrantActive      GrantStatus = "active"
	GrantFullyVested GrantStatus = "fully_vested"
	GrantFullySpent  GrantStatus = "fully_spent"
	GrantExpired     GrantStatus = "expired"
)

// BonusGrant tracks one non-fungible credit and its vesting progress.
// Invariant: UnlockedAmount + SpentAmount <= TotalAmount.
type BonusGrant struct {
	ID             string      `json:"id"`
	UserID         string      `json:"user_id"`
	Type           GrantType   `json:"type"`
	TotalAmount    int64       `json:"total_amount"`
	UnlockedAmount int64       `json:"unlocked_amount"`
	SpentAmount    int64       `json:"spent_amount"`
	VestingRule    VestingRule `json:"vesting_rule"`

	// Rule-specific parameters. Revenue amounts are BRL centavos.
	VestingRate               float64    `json:"vesting_rate,omitempty"`                // revenue: coins unlocked per BRL of revenue
	VestingRevenueRequired    int64      `json:"vesting_revenue_required,omitempty"`    // revenue: centavos needed to fully vest
	VestingRevenueAccumulated int64      `json:"vesting_revenue_accumulated,omitempty"` // revenue: centavos accumulated so far
	VestingUnlockAt           *time.Time `json:"vesting_unlock_at,omitempty"`           // time: unlock instant
	VestingCondition          string     `json:"vesting_condition,omitempty"`           // condition: human-readable condition

	Status      GrantStatus `json:"status"`
	ReferenceID string      `json:"reference_id,omitempty"`
	Description string      `json:"description,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// LockedRemaining returns the coins of this grant still in the wallet that
// have neither vested nor been spent. These are excluded from the
// withdrawable total.
func (g *BonusGrant) LockedRemaining() int64 {
	rem := g.TotalAmount - g.UnlockedAmount - g.SpentAmount
	if rem < 0 {
		return 0
	}
	return rem
}

// RevenueUnlockTarget computes the cumulative unlocked amount a revenue
// grant should be at after accumulating the given revenue (BRL centavos).
// The result is clamped so it never exceeds the unspent total and, applied
// monotonically by the caller, never decreases.
func (g *BonusGrant) RevenueUnlockTarget(accumulatedCentavos int64) int64 {
	target := int64(float64(accumulatedCentavos) / 100 * g.VestingRate)
	if max := g.TotalAmount - g.SpentAmount; target > max {
		target = max
	}
	if target < 0 {
		return 0
	}
	return target
}

// Terminal reports whether the grant can no longer change.
func (g *BonusGrant) Terminal() bool {
	return g.Status == GrantFullyVested || g.Status == GrantFullySpent || g.Status == GrantExpired
}
