package domain

import (
	"fmt"
	"time"
)

// ─── Fan Commitment Types ───────────────────────────────────────────────────
// A commitment is a fan's voluntary time-locked stake of FanCoins in a
// creator. Completing the full term yields a spend-only bonus; leaving early
// forfeits a penalty that is burned from circulation.

// Commitment configuration, fixed platform-wide.
const (
	CommitmentMinAmount = 100
	CommitmentMaxAmount = 1_000_000
	// CompletionBonusPct of the locked amount, granted as a never-vesting
	// bonus at maturity.
	CompletionBonusPct = 5
	// EarlyWithdrawalPenaltyPct of the locked amount, burned on early exit.
	EarlyWithdrawalPenaltyPct = 10
)

// CommitmentDurations are the allowed lock durations in days.
var CommitmentDurations = []int{30, 60, 90}

// CommitmentStatus is the commitment lifecycle state.
// none → active → {completed | withdrawn_early}; both ends are terminal.
type CommitmentStatus string

const (
	CommitmentActive         CommitmentStatus = "active"
	CommitmentCompleted      CommitmentStatus = "completed"
	CommitmentWithdrawnEarly CommitmentStatus = "withdrawn_early"
)

// FanCommitment is a fan's locked stake in a creator.
// At most one active commitment exists per (FanID, CreatorID) pair.
type FanCommitment struct {
	ID           string           `json:"id"`
	FanID        string           `json:"fan_id"`
	CreatorID    string           `json:"creator_id"`
	Amount       int64            `json:"amount"`
	DurationDays int              `json:"duration_days"`
	Status       CommitmentStatus `json:"status"`
	StartedAt    time.Time        `json:"started_at"`
	EndsAt       time.Time        `json:"ends_at"`
	WithdrawnAt  *time.Time       `json:"withdrawn_at,omitempty"`
	BonusGranted int64            `json:"bonus_granted"`
	CreatedAt    time.Time        `json:"created_at"`
}

// Matured reports whether the commitment has reached its full term.
func (c *FanCommitment) Matured(now time.Time) bool {
	return !now.Before(c.EndsAt)
}

// CompletionBonus is the never-vesting bonus granted at maturity.
func (c *FanCommitment) CompletionBonus() int64 {
	return c.Amount * CompletionBonusPct / 100
}

// EarlyRefund is the amount returned on early withdrawal. The difference
// from the locked amount is burned, not credited to any account.
func (c *FanCommitment) EarlyRefund() int64 {
	return c.Amount - c.Amount*EarlyWithdrawalPenaltyPct/100
}

// ValidateCommitment checks the creation parameters.
func ValidateCommitment(fanID, creatorID string, amount int64, durationDays int) error {
	if fanID == creatorID {
		return fmt.Errorf("%w: cannot commit to yourself", ErrInvalidArgument)
	}
	if amount < CommitmentMinAmount || amount > CommitmentMaxAmount {
		return fmt.Errorf("%w: amount must be between %d and %d coins",
			ErrInvalidArgument, CommitmentMinAmount, CommitmentMaxAmount)
	}
	for _, d := range CommitmentDurations {
		if durationDays == d {
			return nil
		}
	}
	return fmt.Errorf("%w: duration must be one of %v days", ErrInvalidArgument, CommitmentDurations)
}
