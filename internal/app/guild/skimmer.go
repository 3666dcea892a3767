// Package guild manages creator guilds and the treasury skim.
//
// When a guild member earns, a configured percent of the net earning moves
// from the member's wallet into the guild treasury account. The skim is a
// best-effort enrichment: it is idempotent per earning, degrades to the
// available balance under concurrent spends, and never blocks the earning
// itself.
package guild

import (
	"errors"
	"fmt"
	"log"

	"github.com/fandreams/fancoin/internal/domain"
	"github.com/fandreams/fancoin/internal/infra/metrics"
	"github.com/fandreams/fancoin/internal/infra/sqlite"
)

// Skimmer applies treasury contributions on member earnings.
type Skimmer struct {
	db *sqlite.DB
}

// New creates a guild skimmer.
func New(db *sqlite.DB) *Skimmer {
	return &Skimmer{db: db}
}

// Create registers a guild with the given leader as its first member.
// A zero contribution percent gets the platform default.
func (s *Skimmer) Create(name, slug, leaderID string, contributionPercent float64) (domain.Guild, error) {
	var zero domain.Guild
	if name == "" || slug == "" || leaderID == "" {
		return zero, fmt.Errorf("%w: name, slug and leader required", domain.ErrInvalidArgument)
	}
	if contributionPercent < 0 || contributionPercent > domain.MaxTreasuryContributionPct {
		return zero, fmt.Errorf("%w: contribution percent must be between 0 and %.0f",
			domain.ErrInvalidArgument, domain.MaxTreasuryContributionPct)
	}
	return s.db.InsertGuild(domain.Guild{
		Name:                        name,
		Slug:                        slug,
		LeaderID:                    leaderID,
		TreasuryContributionPercent: contributionPercent,
		IsActive:                    true,
	})
}

// Join adds a creator to a guild. Membership is exclusive and capped.
func (s *Skimmer) Join(guildID, userID string) error {
	return s.db.AddMember(guildID, userID)
}

// ForMember returns the guild a creator belongs to, or
// ErrConfigurationMissing when they belong to none.
func (s *Skimmer) ForMember(userID string) (domain.Guild, error) {
	return s.db.GuildForMember(userID)
}

// Skim applies the treasury contribution for one net earning of a member.
//
// Returns (zero, nil) when the earner belongs to no guild, the guild is
// inactive, or the computed contribution rounds to zero. The contribution
// is clamped to the member's balance when a concurrent spend drained the
// wallet between the earning and the skim. Idempotent per reference id.
func (s *Skimmer) Skim(userID string, netEarningCoins int64, referenceID string) (sqlite.SkimResult, error) {
	var zero sqlite.SkimResult
	guild, err := s.db.GuildForMember(userID)
	if errors.Is(err, domain.ErrConfigurationMissing) {
		return zero, nil
	}
	if err != nil {
		return zero, fmt.Errorf("resolve guild: %w", err)
	}
	if !guild.IsActive {
		return zero, nil
	}

	contribution := guild.ContributionFor(netEarningCoins)
	if contribution <= 0 {
		return zero, nil
	}

	res, err := s.db.ApplySkim(guild, userID, contribution, referenceID)
	if err != nil {
		return res, fmt.Errorf("apply skim: %w", err)
	}
	if res.Contribution > 0 && !res.Duplicate {
		metrics.TreasurySkims.Inc()
		metrics.TreasuryCoinsSkimmed.Add(float64(res.Contribution))
		log.Printf("[guild] skimmed %d coins from %s into guild %s (treasury=%d)",
			res.Contribution, userID, res.GuildID, res.TreasuryBalance)
	}
	return res, nil
}

// TreasuryHistory lists a guild's treasury movements, newest first.
func (s *Skimmer) TreasuryHistory(guildID string, limit int) ([]domain.GuildTreasuryTransaction, error) {
	return s.db.TreasuryHistory(guildID, limit)
}
