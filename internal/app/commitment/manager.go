// Package commitment manages fan commitments: voluntary time-locked stakes
// of FanCoins in a creator.
//
// Locking debits the fan's wallet for the full term. Maturity returns the
// stake plus a spend-only completion bonus; an early exit returns the stake
// minus a penalty that is burned from circulation. A periodic sweep
// completes matured commitments; the sweep and an in-flight early
// withdrawal race on an optimistic status claim, so exactly one wins.
package commitment

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/fandreams/fancoin/internal/domain"
	"github.com/fandreams/fancoin/internal/infra/metrics"
	"github.com/fandreams/fancoin/internal/infra/sqlite"
)

// Manager drives the commitment lifecycle.
type Manager struct {
	db *sqlite.DB
}

// New creates a commitment manager.
func New(db *sqlite.DB) *Manager {
	return &Manager{db: db}
}

// Create locks a fan's coins in a new commitment. Validates the amount and
// duration, enforces one active commitment per (fan, creator), and debits
// the wallet. Locked bonus coins count toward the stake.
func (m *Manager) Create(fanID, creatorID string, amount int64, durationDays int) (domain.FanCommitment, error) {
	var zero domain.FanCommitment
	if err := domain.ValidateCommitment(fanID, creatorID, amount, durationDays); err != nil {
		return zero, err
	}
	c, err := m.db.InsertCommitment(fanID, creatorID, amount, durationDays, time.Now())
	if err != nil {
		return zero, fmt.Errorf("create commitment: %w", err)
	}
	metrics.EntriesApplied.WithLabelValues(string(domain.KindCommitmentLock)).Inc()
	log.Printf("[commitment] %s locked %d coins on %s for %d days (ends %s)",
		fanID, amount, creatorID, durationDays, c.EndsAt.Format(time.RFC3339))
	return c, nil
}

// Get returns one commitment by id.
func (m *Manager) Get(id string) (domain.FanCommitment, error) {
	return m.db.GetCommitment(id)
}

// List returns a fan's commitments, newest first.
func (m *Manager) List(fanID string) ([]domain.FanCommitment, error) {
	return m.db.ListCommitments(fanID)
}

// WithdrawEarly breaks an active commitment before maturity. The fan gets
// the stake minus the penalty back; the penalty is burned, credited to no
// account. Loses to a concurrent sweep completion with ErrInvalidState.
func (m *Manager) WithdrawEarly(id string) (domain.FanCommitment, error) {
	c, err := m.db.WithdrawCommitmentEarly(id, time.Now())
	if err != nil {
		return c, err
	}
	burned := c.Amount - c.EarlyRefund()
	metrics.CommitmentsByOutcome.WithLabelValues(string(domain.CommitmentWithdrawnEarly)).Inc()
	metrics.CoinsBurned.Add(float64(burned))
	log.Printf("[commitment] %s withdrew %s early: refunded %d, burned %d",
		c.FanID, c.ID, c.EarlyRefund(), burned)
	return c, nil
}

// MaturitySweep completes every commitment whose term has elapsed: returns
// the stake and grants the never-vesting completion bonus. Each commitment
// is claimed optimistically, so a concurrent withdrawal or second sweep
// skips it rather than double-paying. Returns the number completed.
func (m *Manager) MaturitySweep(now time.Time) (int, error) {
	due, err := m.db.DueCommitments(now)
	if err != nil {
		return 0, fmt.Errorf("list due commitments: %w", err)
	}

	completed := 0
	for _, c := range due {
		grant, err := m.db.CompleteCommitment(c, now)
		if errors.Is(err, domain.ErrInvalidState) {
			// Lost the claim to a concurrent withdrawal or sweep.
			continue
		}
		if err != nil {
			return completed, fmt.Errorf("complete commitment %s: %w", c.ID, err)
		}
		completed++
		metrics.CommitmentsByOutcome.WithLabelValues(string(domain.CommitmentCompleted)).Inc()
		log.Printf("[commitment] %s completed: returned %d, bonus grant %s for %d",
			c.ID, c.Amount, grant.ID, grant.TotalAmount)
	}
	return completed, nil
}
