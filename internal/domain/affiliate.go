package domain

import "time"

// ─── Affiliate Types ────────────────────────────────────────────────────────
// A referral is captured once per (referredUser, creator) pair and fixes the
// level-1 and level-2 affiliate at signup time; it is immutable thereafter.
// Commission percents are snapshotted into each commission record at
// creation time — later rate changes never rewrite historical payouts.

// AffiliateProgram is a creator's commission program.
type AffiliateProgram struct {
	CreatorID string    `json:"creator_id"`
	IsActive  bool      `json:"is_active"`
	MaxLevels int       `json:"max_levels"` // 1 or 2
	UpdatedAt time.Time `json:"updated_at"`
}

// AffiliateLevel is the commission percent for one cascade level.
type AffiliateLevel struct {
	CreatorID         string  `json:"creator_id"`
	Level             int     `json:"level"` // 1 or 2
	CommissionPercent float64 `json:"commission_percent"`
}

// Commission percent bounds enforced when a program is configured.
const (
	MinCommissionPercent = 1.0
	MaxCommissionPercent = 50.0
	MaxAffiliateLevels   = 2
)

// AffiliateLink is a trackable signup link owned by an affiliate.
type AffiliateLink struct {
	ID              string    `json:"id"`
	AffiliateUserID string    `json:"affiliate_user_id"`
	CreatorID       string    `json:"creator_id"`
	Code            string    `json:"code"`
	Clicks          int64     `json:"clicks"`
	Conversions     int64     `json:"conversions"`
	CreatedAt       time.Time `json:"created_at"`
}

// AffiliateReferral binds a referred user to a creator's program.
// L2AffiliateID is the referrer of the level-1 affiliate, empty when the
// level-1 affiliate was not themselves referred.
type AffiliateReferral struct {
	ID             string    `json:"id"`
	ReferredUserID string    `json:"referred_user_id"`
	CreatorID      string    `json:"creator_id"`
	L1AffiliateID  string    `json:"l1_affiliate_id"`
	L2AffiliateID  string    `json:"l2_affiliate_id,omitempty"`
	LinkID         string    `json:"link_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// AffiliateCommission records one affiliate payout for one payment.
// (PaymentID, AffiliateUserID, Level) is unique — the cascade's idempotency
// guard.
type AffiliateCommission struct {
	ID                string    `json:"id"`
	AffiliateUserID   string    `json:"affiliate_user_id"`
	CreatorID         string    `json:"creator_id"`
	PaymentID         string    `json:"payment_id"`
	Level             int       `json:"level"`
	CommissionPercent float64   `json:"commission_percent"` // snapshot
	AmountCentavos    int64     `json:"amount_centavos"`
	CoinsCredited     int64     `json:"coins_credited"`
	CreatedAt         time.Time `json:"created_at"`
}

// CommissionCentavos computes a level's commission on a gross amount,
// rounded down to whole centavos.
func CommissionCentavos(grossCentavos int64, percent float64) int64 {
	c := int64(float64(grossCentavos) * percent / 100)
	if c < 0 {
		return 0
	}
	return c
}
