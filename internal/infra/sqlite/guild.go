// Guild schema and treasury operations.
// Each guild owns one treasury account in the ledger; the skim debits a
// member's wallet and credits the treasury as one atomic pair.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fandreams/fancoin/internal/domain"
)

// ─── Guild Schema ───────────────────────────────────────────────────────────

// GuildMigrations returns the guild schema statements.
func GuildMigrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS guilds (
			id                            TEXT PRIMARY KEY,
			name                          TEXT NOT NULL,
			slug                          TEXT NOT NULL UNIQUE,
			leader_id                     TEXT NOT NULL,
			treasury_contribution_percent REAL NOT NULL,
			is_active                     INTEGER NOT NULL DEFAULT 1,
			total_members                 INTEGER NOT NULL DEFAULT 0,
			created_at                    TEXT NOT NULL,
			updated_at                    TEXT NOT NULL
		)`,

		// One guild per user: user_id is the primary key.
		`CREATE TABLE IF NOT EXISTS guild_members (
			user_id           TEXT PRIMARY KEY,
			guild_id          TEXT NOT NULL,
			role              TEXT NOT NULL DEFAULT 'member',
			total_contributed INTEGER NOT NULL DEFAULT 0,
			joined_at         TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_guild_members_guild ON guild_members(guild_id)`,

		`CREATE TABLE IF NOT EXISTS guild_treasury_transactions (
			id            TEXT PRIMARY KEY,
			guild_id      TEXT NOT NULL,
			user_id       TEXT NOT NULL,
			type          TEXT NOT NULL,
			amount        INTEGER NOT NULL,
			balance_after INTEGER NOT NULL,
			reference_id  TEXT NOT NULL DEFAULT '',
			description   TEXT NOT NULL DEFAULT '',
			created_at    TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_treasury_guild ON guild_treasury_transactions(guild_id, created_at DESC)`,
	}
}

// ─── Guild Operations ───────────────────────────────────────────────────────

// InsertGuild creates a guild with its leader as the first member.
func (db *DB) InsertGuild(g domain.Guild) (domain.Guild, error) {
	if g.TreasuryContributionPercent <= 0 {
		g.TreasuryContributionPercent = domain.DefaultTreasuryContributionPct
	}
	if g.TreasuryContributionPercent > domain.MaxTreasuryContributionPct {
		return g, fmt.Errorf("%w: treasury contribution above %.0f%%", domain.ErrInvalidArgument, domain.MaxTreasuryContributionPct)
	}

	tx, err := db.db.Begin()
	if err != nil {
		return g, err
	}
	defer tx.Rollback()

	now := time.Now()
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	g.IsActive = true
	g.TotalMembers = 1
	g.CreatedAt = now
	g.UpdatedAt = now
	if _, err := tx.Exec(`
		INSERT INTO guilds (id, name, slug, leader_id, treasury_contribution_percent, is_active, total_members, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, 1, ?, ?)
	`, g.ID, g.Name, g.Slug, g.LeaderID, g.TreasuryContributionPercent, fmtTime(now), fmtTime(now)); err != nil {
		return g, err
	}
	if _, err := tx.Exec(`
		INSERT INTO guild_members (user_id, guild_id, role, joined_at) VALUES (?, ?, 'leader', ?)
	`, g.LeaderID, g.ID, fmtTime(now)); err != nil {
		return g, fmt.Errorf("%w: leader already belongs to a guild", domain.ErrAlreadyExists)
	}
	return g, tx.Commit()
}

// AddMember adds a creator to a guild. Membership is exclusive — the
// primary key on user_id rejects a second guild.
func (db *DB) AddMember(guildID, userID string) error {
	tx, err := db.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var members int
	err = tx.QueryRow(`SELECT total_members FROM guilds WHERE id = ? AND is_active = 1`, guildID).Scan(&members)
	if err == sql.ErrNoRows {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	if members >= domain.GuildMaxMembers {
		return fmt.Errorf("%w: guild is full", domain.ErrInvalidState)
	}

	if _, err := tx.Exec(`
		INSERT INTO guild_members (user_id, guild_id, role, joined_at) VALUES (?, ?, 'member', ?)
	`, userID, guildID, fmtTime(time.Now())); err != nil {
		return fmt.Errorf("%w: user already belongs to a guild", domain.ErrAlreadyExists)
	}
	if _, err := tx.Exec(`
		UPDATE guilds SET total_members = total_members + 1, updated_at = ? WHERE id = ?
	`, fmtTime(time.Now()), guildID); err != nil {
		return err
	}
	return tx.Commit()
}

// GetGuild retrieves a guild by id.
func (db *DB) GetGuild(guildID string) (domain.Guild, error) {
	return db.scanGuild(db.db.QueryRow(guildSelect+` WHERE id = ?`, guildID))
}

// GuildForMember returns the active guild a user belongs to, or
// ErrConfigurationMissing when they belong to none.
func (db *DB) GuildForMember(userID string) (domain.Guild, error) {
	g, err := db.scanGuild(db.db.QueryRow(guildSelect+`
		JOIN guild_members m ON m.guild_id = guilds.id
		WHERE m.user_id = ? AND guilds.is_active = 1
	`, userID))
	if err == domain.ErrNotFound {
		return g, domain.ErrConfigurationMissing
	}
	return g, err
}

const guildSelect = `
	SELECT guilds.id, guilds.name, guilds.slug, guilds.leader_id, guilds.treasury_contribution_percent,
		guilds.is_active, guilds.total_members, guilds.created_at, guilds.updated_at
	FROM guilds`

func (db *DB) scanGuild(row *sql.Row) (domain.Guild, error) {
	var g domain.Guild
	var active int
	var createdAt, updatedAt string
	err := row.Scan(&g.ID, &g.Name, &g.Slug, &g.LeaderID, &g.TreasuryContributionPercent,
		&active, &g.TotalMembers, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return g, domain.ErrNotFound
	}
	if err != nil {
		return g, err
	}
	g.IsActive = active == 1
	g.CreatedAt = parseTime(createdAt)
	g.UpdatedAt = parseTime(updatedAt)
	return g, nil
}

// ─── Treasury Skim ──────────────────────────────────────────────────────────

// SkimResult reports one applied treasury contribution.
type SkimResult struct {
	GuildID         string
	Contribution    int64
	TreasuryBalance int64
	Duplicate       bool
}

// ApplySkim debits a member's wallet and credits the guild treasury as a
// single atomic pair sharing the reference id, then records the audit
// transaction with the treasury's post-credit balance. Called right after
// the member's earning credit, so the debit cannot overdraw; if a concurrent
// spend raced the earning away, the contribution clamps to what is left
// rather than failing.
func (db *DB) ApplySkim(guild domain.Guild, userID string, contribution int64, referenceID string) (SkimResult, error) {
	tx, err := db.db.Begin()
	if err != nil {
		return SkimResult{}, err
	}
	defer tx.Rollback()

	now := time.Now()
	res := SkimResult{GuildID: guild.ID}

	// Idempotent re-delivery: the treasury credit is keyed on the
	// reference, so a second skim for the same payment is a no-op.
	if _, ok, err := findEntryTx(tx, guild.TreasuryAccountID(), referenceID, domain.KindTreasuryContribution); err != nil {
		return res, err
	} else if ok {
		acct, err := getAccountTx(tx, guild.TreasuryAccountID())
		if err != nil {
			return res, err
		}
		res.Duplicate = true
		res.TreasuryBalance = acct.Balance
		return res, tx.Commit()
	}

	acct, err := getAccountTx(tx, userID)
	if err == domain.ErrAccountNotFound {
		return res, tx.Commit()
	}
	if err != nil {
		return res, err
	}
	if contribution > acct.Balance {
		contribution = acct.Balance
	}
	if contribution <= 0 {
		return res, tx.Commit()
	}
	res.Contribution = contribution

	if _, err := applyEntryTx(tx, EntryRequest{
		AccountID:   userID,
		Amount:      -contribution,
		Kind:        domain.KindTreasuryContribution,
		ReferenceID: referenceID,
		Description: fmt.Sprintf("treasury contribution to %s (%.1f%%)", guild.Name, guild.TreasuryContributionPercent),
	}, now); err != nil {
		return res, err
	}

	applied, err := applyEntryTx(tx, EntryRequest{
		AccountID:   guild.TreasuryAccountID(),
		AccountType: domain.AccountTreasury,
		Amount:      contribution,
		Kind:        domain.KindTreasuryContribution,
		ReferenceID: referenceID,
		Description: fmt.Sprintf("contribution from member %s", userID),
	}, now)
	if err != nil {
		return res, err
	}
	res.TreasuryBalance = applied.Entry.BalanceAfter

	if _, err := tx.Exec(`
		INSERT INTO guild_treasury_transactions (id, guild_id, user_id, type, amount, balance_after, reference_id, description, created_at)
		VALUES (?, ?, ?, 'contribution', ?, ?, ?, ?, ?)
	`, uuid.NewString(), guild.ID, userID, contribution, res.TreasuryBalance, referenceID,
		fmt.Sprintf("automatic contribution (%.1f%%)", guild.TreasuryContributionPercent), fmtTime(now)); err != nil {
		return res, err
	}

	if _, err := tx.Exec(`
		UPDATE guild_members SET total_contributed = total_contributed + ? WHERE user_id = ?
	`, contribution, userID); err != nil {
		return res, err
	}

	return res, tx.Commit()
}

// TreasuryHistory returns a guild's treasury transactions, newest first.
func (db *DB) TreasuryHistory(guildID string, limit int) ([]domain.GuildTreasuryTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.db.Query(`
		SELECT id, guild_id, user_id, type, amount, balance_after, reference_id, description, created_at
		FROM guild_treasury_transactions WHERE guild_id = ?
		ORDER BY created_at DESC LIMIT ?
	`, guildID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []domain.GuildTreasuryTransaction
	for rows.Next() {
		var t domain.GuildTreasuryTransaction
		var createdAt string
		if err := rows.Scan(&t.ID, &t.GuildID, &t.UserID, &t.Type, &t.Amount, &t.BalanceAfter,
			&t.ReferenceID, &t.Description, &createdAt); err != nil {
			return nil, err
		}
		t.CreatedAt = parseTime(createdAt)
		txs = append(txs, t)
	}
	return txs, rows.Err()
}
