package domain

import "time"

// ─── Guild Types ────────────────────────────────────────────────────────────
// A guild owns one treasury account. Membership is exclusive — a user
// belongs to at most one guild at a time, enforced at the join operation.

// Guild configuration bounds, fixed platform-wide.
const (
	GuildMaxMembers                = 20
	DefaultTreasuryContributionPct = 3.0
	MaxTreasuryContributionPct     = 10.0
)

// Guild is a creator collective with a shared treasury.
type Guild struct {
	ID                          string    `json:"id"`
	Name                        string    `json:"name"`
	Slug                        string    `json:"slug"`
	LeaderID                    string    `json:"leader_id"`
	TreasuryContributionPercent float64   `json:"treasury_contribution_percent"`
	IsActive                    bool      `json:"is_active"`
	TotalMembers                int       `json:"total_members"`
	CreatedAt                   time.Time `json:"created_at"`
	UpdatedAt                   time.Time `json:"updated_at"`
}

// TreasuryAccountID returns the ledger account that holds this guild's
// treasury.
func (g *Guild) TreasuryAccountID() string {
	return "guild:" + g.ID
}

// ContributionFor computes the treasury skim on a member's net earning.
func (g *Guild) ContributionFor(netEarningCoins int64) int64 {
	c := int64(float64(netEarningCoins) * g.TreasuryContributionPercent / 100)
	if c < 0 {
		return 0
	}
	return c
}

// GuildMember is a creator's membership in a guild.
type GuildMember struct {
	GuildID          string    `json:"guild_id"`
	UserID           string    `json:"user_id"`
	Role             string    `json:"role"` // "leader" or "member"
	TotalContributed int64     `json:"total_contributed"`
	JoinedAt         time.Time `json:"joined_at"`
}

// GuildTreasuryTransaction is the audit record for one treasury movement.
// BalanceAfter is snapshotted at creation for audit replay.
type GuildTreasuryTransaction struct {
	ID           string    `json:"id"`
	GuildID      string    `json:"guild_id"`
	UserID       string    `json:"user_id"`
	Type         string    `json:"type"` // "contribution"
	Amount       int64     `json:"amount"`
	BalanceAfter int64     `json:"balance_after"`
	ReferenceID  string    `json:"reference_id,omitempty"`
	Description  string    `json:"description,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
