// Affiliate schema and operations.
// Referrals are immutable once captured; commission rows are unique per
// (payment, affiliate, level) and snapshot the percent in force at creation.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fandreams/fancoin/internal/domain"
)

// ─── Affiliate Schema ───────────────────────────────────────────────────────

// AffiliateMigrations returns the affiliate schema statements.
func AffiliateMigrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS affiliate_programs (
			creator_id TEXT PRIMARY KEY,
			is_active  INTEGER NOT NULL DEFAULT 1,
			max_levels INTEGER NOT NULL DEFAULT 1,
			updated_at TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS affiliate_levels (
			creator_id         TEXT NOT NULL,
			level              INTEGER NOT NULL,
			commission_percent REAL NOT NULL,
			PRIMARY KEY (creator_id, level)
		)`,

		`CREATE TABLE IF NOT EXISTS affiliate_links (
			id                TEXT PRIMARY KEY,
			affiliate_user_id TEXT NOT NULL,
			creator_id        TEXT NOT NULL,
			code              TEXT NOT NULL UNIQUE,
			clicks            INTEGER NOT NULL DEFAULT 0,
			conversions       INTEGER NOT NULL DEFAULT 0,
			created_at        TEXT NOT NULL,
			UNIQUE(affiliate_user_id, creator_id)
		)`,

		`CREATE TABLE IF NOT EXISTS affiliate_referrals (
			id               TEXT PRIMARY KEY,
			referred_user_id TEXT NOT NULL,
			creator_id       TEXT NOT NULL,
			l1_affiliate_id  TEXT NOT NULL,
			l2_affiliate_id  TEXT NOT NULL DEFAULT '',
			link_id          TEXT NOT NULL DEFAULT '',
			created_at       TEXT NOT NULL,
			UNIQUE(referred_user_id, creator_id)
		)`,

		`CREATE TABLE IF NOT EXISTS affiliate_commissions (
			id                 TEXT PRIMARY KEY,
			affiliate_user_id  TEXT NOT NULL,
			creator_id         TEXT NOT NULL,
			payment_id         TEXT NOT NULL,
			level              INTEGER NOT NULL,
			commission_percent REAL NOT NULL,
			amount_centavos    INTEGER NOT NULL,
			coins_credited     INTEGER NOT NULL,
			created_at         TEXT NOT NULL,
			UNIQUE(payment_id, affiliate_user_id, level)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_commissions_affiliate ON affiliate_commissions(affiliate_user_id, created_at DESC)`,
	}
}

// ─── Program Operations ─────────────────────────────────────────────────────

// UpsertProgram configures a creator's affiliate program and its levels.
// Existing levels are replaced; historical commission rows keep their
// snapshotted percents.
func (db *DB) UpsertProgram(program domain.AffiliateProgram, levels []domain.AffiliateLevel) error {
	if program.MaxLevels < 1 || program.MaxLevels > domain.MaxAffiliateLevels {
		return fmt.Errorf("%w: max_levels must be 1 or 2", domain.ErrInvalidArgument)
	}
	for _, l := range levels {
		if l.CommissionPercent < domain.MinCommissionPercent || l.CommissionPercent > domain.MaxCommissionPercent {
			return fmt.Errorf("%w: commission percent must be between %.0f and %.0f",
				domain.ErrInvalidArgument, domain.MinCommissionPercent, domain.MaxCommissionPercent)
		}
	}

	tx, err := db.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	active := 0
	if program.IsActive {
		active = 1
	}
	if _, err := tx.Exec(`
		INSERT INTO affiliate_programs (creator_id, is_active, max_levels, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(creator_id) DO UPDATE SET
			is_active  = excluded.is_active,
			max_levels = excluded.max_levels,
			updated_at = excluded.updated_at
	`, program.CreatorID, active, program.MaxLevels, fmtTime(time.Now())); err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM affiliate_levels WHERE creator_id = ?`, program.CreatorID); err != nil {
		return err
	}
	for _, l := range levels {
		if _, err := tx.Exec(`
			INSERT INTO affiliate_levels (creator_id, level, commission_percent) VALUES (?, ?, ?)
		`, program.CreatorID, l.Level, l.CommissionPercent); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetProgram returns a creator's program and levels, or
// ErrConfigurationMissing when none is configured.
func (db *DB) GetProgram(creatorID string) (domain.AffiliateProgram, []domain.AffiliateLevel, error) {
	var p domain.AffiliateProgram
	var active int
	var updatedAt string
	err := db.db.QueryRow(`
		SELECT creator_id, is_active, max_levels, updated_at FROM affiliate_programs WHERE creator_id = ?
	`, creatorID).Scan(&p.CreatorID, &active, &p.MaxLevels, &updatedAt)
	if err == sql.ErrNoRows {
		return p, nil, domain.ErrConfigurationMissing
	}
	if err != nil {
		return p, nil, err
	}
	p.IsActive = active == 1
	p.UpdatedAt = parseTime(updatedAt)

	rows, err := db.db.Query(`
		SELECT creator_id, level, commission_percent FROM affiliate_levels
		WHERE creator_id = ? ORDER BY level
	`, creatorID)
	if err != nil {
		return p, nil, err
	}
	defer rows.Close()

	var levels []domain.AffiliateLevel
	for rows.Next() {
		var l domain.AffiliateLevel
		if err := rows.Scan(&l.CreatorID, &l.Level, &l.CommissionPercent); err != nil {
			return p, nil, err
		}
		levels = append(levels, l)
	}
	return p, levels, rows.Err()
}

// ─── Link Operations ────────────────────────────────────────────────────────

// InsertLink creates an affiliate link; on a (affiliate, creator) conflict
// the existing link is returned.
func (db *DB) InsertLink(link domain.AffiliateLink) (domain.AffiliateLink, error) {
	if link.ID == "" {
		link.ID = uuid.NewString()
	}
	link.CreatedAt = time.Now()
	res, err := db.db.Exec(`
		INSERT OR IGNORE INTO affiliate_links (id, affiliate_user_id, creator_id, code, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, link.ID, link.AffiliateUserID, link.CreatorID, link.Code, fmtTime(link.CreatedAt))
	if err != nil {
		return link, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return db.getLinkByPair(link.AffiliateUserID, link.CreatorID)
	}
	return link, nil
}

func (db *DB) getLinkByPair(affiliateUserID, creatorID string) (domain.AffiliateLink, error) {
	return db.scanLink(db.db.QueryRow(linkSelect+` WHERE affiliate_user_id = ? AND creator_id = ?`, affiliateUserID, creatorID))
}

// GetLinkByCode resolves a signup code to its link.
func (db *DB) GetLinkByCode(code string) (domain.AffiliateLink, error) {
	return db.scanLink(db.db.QueryRow(linkSelect+` WHERE code = ?`, code))
}

const linkSelect = `
	SELECT id, affiliate_user_id, creator_id, code, clicks, conversions, created_at
	FROM affiliate_links`

func (db *DB) scanLink(row *sql.Row) (domain.AffiliateLink, error) {
	var l domain.AffiliateLink
	var createdAt string
	err := row.Scan(&l.ID, &l.AffiliateUserID, &l.CreatorID, &l.Code, &l.Clicks, &l.Conversions, &createdAt)
	if err == sql.ErrNoRows {
		return l, domain.ErrNotFound
	}
	if err != nil {
		return l, err
	}
	l.CreatedAt = parseTime(createdAt)
	return l, nil
}

// RecordLinkClick increments a link's click counter.
func (db *DB) RecordLinkClick(code string) error {
	_, err := db.db.Exec(`UPDATE affiliate_links SET clicks = clicks + 1 WHERE code = ?`, code)
	return err
}

// ─── Referral Operations ────────────────────────────────────────────────────

// InsertReferral captures a referral once per (referredUser, creator) pair
// and bumps the originating link's conversion counter. A second capture for
// the same pair is a no-op returning the existing referral.
func (db *DB) InsertReferral(ref domain.AffiliateReferral) (domain.AffiliateReferral, bool, error) {
	tx, err := db.db.Begin()
	if err != nil {
		return ref, false, err
	}
	defer tx.Rollback()

	if ref.ID == "" {
		ref.ID = uuid.NewString()
	}
	ref.CreatedAt = time.Now()
	res, err := tx.Exec(`
		INSERT OR IGNORE INTO affiliate_referrals
			(id, referred_user_id, creator_id, l1_affiliate_id, l2_affiliate_id, link_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ref.ID, ref.ReferredUserID, ref.CreatorID, ref.L1AffiliateID, ref.L2AffiliateID, ref.LinkID, fmtTime(ref.CreatedAt))
	if err != nil {
		return ref, false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		existing, err := db.findReferralTx(tx, ref.ReferredUserID, ref.CreatorID)
		if err != nil {
			return ref, false, err
		}
		return existing, false, tx.Commit()
	}

	if ref.LinkID != "" {
		if _, err := tx.Exec(`
			UPDATE affiliate_links SET conversions = conversions + 1 WHERE id = ?
		`, ref.LinkID); err != nil {
			return ref, false, err
		}
	}
	return ref, true, tx.Commit()
}

// FindReferral returns the referral binding a payer to a creator, if any.
func (db *DB) FindReferral(referredUserID, creatorID string) (domain.AffiliateReferral, error) {
	tx, err := db.db.Begin()
	if err != nil {
		return domain.AffiliateReferral{}, err
	}
	defer tx.Rollback()
	return db.findReferralTx(tx, referredUserID, creatorID)
}

func (db *DB) findReferralTx(tx *sql.Tx, referredUserID, creatorID string) (domain.AffiliateReferral, error) {
	var r domain.AffiliateReferral
	var createdAt string
	err := tx.QueryRow(`
		SELECT id, referred_user_id, creator_id, l1_affiliate_id, l2_affiliate_id, link_id, created_at
		FROM affiliate_referrals WHERE referred_user_id = ? AND creator_id = ?
	`, referredUserID, creatorID).Scan(&r.ID, &r.ReferredUserID, &r.CreatorID,
		&r.L1AffiliateID, &r.L2AffiliateID, &r.LinkID, &createdAt)
	if err == sql.ErrNoRows {
		return r, domain.ErrNotFound
	}
	if err != nil {
		return r, err
	}
	r.CreatedAt = parseTime(createdAt)
	return r, nil
}

// ─── Commission Operations ──────────────────────────────────────────────────

// CreditCommission inserts a commission record and credits the affiliate's
// wallet in one transaction. Both the commission row ((payment, affiliate,
// level) unique) and the ledger entry are idempotency-guarded, so
// re-resolving the same payment is safe. Returns false when the commission
// already existed.
func (db *DB) CreditCommission(c domain.AffiliateCommission) (bool, error) {
	tx, err := db.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now()
	res, err := tx.Exec(`
		INSERT OR IGNORE INTO affiliate_commissions
			(id, affiliate_user_id, creator_id, payment_id, level, commission_percent, amount_centavos, coins_credited, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.AffiliateUserID, c.CreatorID, c.PaymentID, c.Level, c.CommissionPercent,
		c.AmountCentavos, c.CoinsCredited, fmtTime(now))
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, tx.Commit()
	}

	if _, err := applyEntryTx(tx, EntryRequest{
		AccountID:   c.AffiliateUserID,
		Amount:      c.CoinsCredited,
		Kind:        domain.KindCommission,
		ReferenceID: c.PaymentID,
		Description: fmt.Sprintf("level %d affiliate commission (%.1f%%)", c.Level, c.CommissionPercent),
	}, now); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// ListCommissions returns an affiliate's commission history, newest first.
func (db *DB) ListCommissions(affiliateUserID string, limit int) ([]domain.AffiliateCommission, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.db.Query(`
		SELECT id, affiliate_user_id, creator_id, payment_id, level, commission_percent, amount_centavos, coins_credited, created_at
		FROM affiliate_commissions WHERE affiliate_user_id = ?
		ORDER BY created_at DESC LIMIT ?
	`, affiliateUserID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var commissions []domain.AffiliateCommission
	for rows.Next() {
		var c domain.AffiliateCommission
		var createdAt string
		if err := rows.Scan(&c.ID, &c.AffiliateUserID, &c.CreatorID, &c.PaymentID, &c.Level,
			&c.CommissionPercent, &c.AmountCentavos, &c.CoinsCredited, &createdAt); err != nil {
			return nil, err
		}
		c.CreatedAt = parseTime(createdAt)
		commissions = append(commissions, c)
	}
	return commissions, rows.Err()
}
