// Fan commitment schema and state transitions.
// A commitment moves through active → {completed | withdrawn_early}; both
// transitions claim the row with an optimistic status check so the maturity
// sweep and a manual withdrawal racing on the same row cannot both win.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fandreams/fancoin/internal/domain"
)

// ─── Commitment Schema ──────────────────────────────────────────────────────

// CommitmentMigrations returns the fan commitment schema statements.
func CommitmentMigrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS fan_commitments (
			id            TEXT PRIMARY KEY,
			fan_id        TEXT NOT NULL,
			creator_id    TEXT NOT NULL,
			amount        INTEGER NOT NULL,
			duration_days INTEGER NOT NULL,
			status        TEXT NOT NULL DEFAULT 'active',
			started_at    TEXT NOT NULL,
			ends_at       TEXT NOT NULL,
			withdrawn_at  TEXT,
			bonus_granted INTEGER NOT NULL DEFAULT 0,
			created_at    TEXT NOT NULL
		)`,
		// At most one active commitment per (fan, creator) pair.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_commitment_active
			ON fan_commitments(fan_id, creator_id) WHERE status = 'active'`,
		`CREATE INDEX IF NOT EXISTS idx_commitment_due ON fan_commitments(status, ends_at)`,
	}
}

// ─── Commitment Operations ──────────────────────────────────────────────────

// InsertCommitment locks the stake out of the fan's wallet and creates the
// commitment row in one transaction. The debit carries kind commitment_lock
// with the commitment id as reference.
func (db *DB) InsertCommitment(fanID, creatorID string, amount int64, durationDays int, now time.Time) (domain.FanCommitment, error) {
	tx, err := db.db.Begin()
	if err != nil {
		return domain.FanCommitment{}, err
	}
	defer tx.Rollback()

	c := domain.FanCommitment{
		ID:           uuid.NewString(),
		FanID:        fanID,
		CreatorID:    creatorID,
		Amount:       amount,
		DurationDays: durationDays,
		Status:       domain.CommitmentActive,
		StartedAt:    now,
		EndsAt:       now.AddDate(0, 0, durationDays),
		CreatedAt:    now,
	}

	// The partial unique index rejects a second active commitment for the
	// pair; insert first so the debit never happens for a rejected row.
	if _, err := tx.Exec(`
		INSERT INTO fan_commitments (id, fan_id, creator_id, amount, duration_days, status, started_at, ends_at, created_at)
		VALUES (?, ?, ?, ?, ?, 'active', ?, ?, ?)
	`, c.ID, c.FanID, c.CreatorID, c.Amount, c.DurationDays, fmtTime(c.StartedAt), fmtTime(c.EndsAt), fmtTime(now)); err != nil {
		return c, fmt.Errorf("%w: active commitment already exists for this creator", domain.ErrAlreadyExists)
	}

	if _, err := applyEntryTx(tx, EntryRequest{
		AccountID:   fanID,
		Amount:      -amount,
		Kind:        domain.KindCommitmentLock,
		ReferenceID: c.ID,
		Description: fmt.Sprintf("locked %d coins for %d days", amount, durationDays),
	}, now); err != nil {
		return c, err
	}

	if err := tx.Commit(); err != nil {
		return c, err
	}
	return c, nil
}

// GetCommitment retrieves one commitment.
func (db *DB) GetCommitment(id string) (domain.FanCommitment, error) {
	row := db.db.QueryRow(commitmentSelect+` WHERE id = ?`, id)
	c, err := scanCommitment(row)
	if err == sql.ErrNoRows {
		return c, domain.ErrNotFound
	}
	return c, err
}

// ListCommitments returns a fan's commitments, newest first.
func (db *DB) ListCommitments(fanID string) ([]domain.FanCommitment, error) {
	rows, err := db.db.Query(commitmentSelect+` WHERE fan_id = ? ORDER BY created_at DESC`, fanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var commitments []domain.FanCommitment
	for rows.Next() {
		c, err := scanCommitment(rows)
		if err != nil {
			return nil, err
		}
		commitments = append(commitments, c)
	}
	return commitments, rows.Err()
}

// DueCommitments returns active commitments whose term has ended.
func (db *DB) DueCommitments(now time.Time) ([]domain.FanCommitment, error) {
	rows, err := db.db.Query(commitmentSelect+`
		WHERE status = 'active' AND ends_at <= ? ORDER BY ends_at ASC
	`, fmtTime(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []domain.FanCommitment
	for rows.Next() {
		c, err := scanCommitment(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, c)
	}
	return due, rows.Err()
}

const commitmentSelect = `
	SELECT id, fan_id, creator_id, amount, duration_days, status, started_at, ends_at, withdrawn_at, bonus_granted, created_at
	FROM fan_commitments`

func scanCommitment(row rowScanner) (domain.FanCommitment, error) {
	var c domain.FanCommitment
	var status, startedAt, endsAt, createdAt string
	var withdrawnAt sql.NullString
	err := row.Scan(&c.ID, &c.FanID, &c.CreatorID, &c.Amount, &c.DurationDays, &status,
		&startedAt, &endsAt, &withdrawnAt, &c.BonusGranted, &createdAt)
	if err != nil {
		return c, err
	}
	c.Status = domain.CommitmentStatus(status)
	c.StartedAt = parseTime(startedAt)
	c.EndsAt = parseTime(endsAt)
	c.WithdrawnAt = parseTimePtr(withdrawnAt)
	c.CreatedAt = parseTime(createdAt)
	return c, nil
}

// ─── State Transitions ──────────────────────────────────────────────────────

// CompleteCommitment transitions a matured commitment to completed: the
// stake returns to the fan's wallet and the never-vesting completion bonus
// is granted. The status claim makes a racing early withdrawal lose with
// InvalidState.
func (db *DB) CompleteCommitment(c domain.FanCommitment, now time.Time) (domain.BonusGrant, error) {
	if !c.Matured(now) {
		return domain.BonusGrant{}, fmt.Errorf("%w: commitment %s has not matured", domain.ErrInvalidState, c.ID)
	}

	tx, err := db.db.Begin()
	if err != nil {
		return domain.BonusGrant{}, err
	}
	defer tx.Rollback()

	bonus := c.CompletionBonus()
	res, err := tx.Exec(`
		UPDATE fan_commitments SET status = 'completed', bonus_granted = ?
		WHERE id = ? AND status = 'active'
	`, bonus, c.ID)
	if err != nil {
		return domain.BonusGrant{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.BonusGrant{}, fmt.Errorf("%w: commitment %s is no longer active", domain.ErrInvalidState, c.ID)
	}

	if _, err := applyEntryTx(tx, EntryRequest{
		AccountID:   c.FanID,
		Amount:      c.Amount,
		Kind:        domain.KindCommitmentUnlock,
		ReferenceID: c.ID,
		Description: fmt.Sprintf("commitment completed, %d coins returned", c.Amount),
	}, now); err != nil {
		return domain.BonusGrant{}, err
	}

	grant := domain.BonusGrant{
		ID:          uuid.NewString(),
		UserID:      c.FanID,
		Type:        domain.GrantCommitmentBonus,
		TotalAmount: bonus,
		VestingRule: domain.VestNever,
		Status:      domain.GrantActive,
		ReferenceID: c.ID,
		Description: fmt.Sprintf("commitment completion bonus (%d%%)", domain.CompletionBonusPct),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if bonus > 0 {
		if _, err := tx.Exec(`
			INSERT INTO bonus_grants (id, user_id, type, total_amount, vesting_rule, status, reference_id, description, created_at, updated_at)
			VALUES (?, ?, ?, ?, 'never', 'active', ?, ?, ?, ?)
		`, grant.ID, grant.UserID, string(grant.Type), grant.TotalAmount, grant.ReferenceID,
			grant.Description, fmtTime(now), fmtTime(now)); err != nil {
			return domain.BonusGrant{}, err
		}
		if _, err := applyEntryTx(tx, EntryRequest{
			AccountID:   c.FanID,
			Amount:      bonus,
			Kind:        domain.KindBonusGrant,
			ReferenceID: grant.ID,
			Description: grant.Description,
		}, now); err != nil {
			return domain.BonusGrant{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.BonusGrant{}, err
	}
	return grant, nil
}

// WithdrawCommitmentEarly transitions an active, unmatured commitment to
// withdrawn_early. The fan receives the stake minus the penalty; the
// penalty is burned from circulation, credited to no account.
func (db *DB) WithdrawCommitmentEarly(id string, now time.Time) (domain.FanCommitment, error) {
	tx, err := db.db.Begin()
	if err != nil {
		return domain.FanCommitment{}, err
	}
	defer tx.Rollback()

	row := tx.QueryRow(commitmentSelect+` WHERE id = ?`, id)
	c, err := scanCommitment(row)
	if err == sql.ErrNoRows {
		return c, domain.ErrNotFound
	}
	if err != nil {
		return c, err
	}
	if c.Status != domain.CommitmentActive {
		return c, fmt.Errorf("%w: commitment %s is %s", domain.ErrInvalidState, c.ID, c.Status)
	}
	if c.Matured(now) {
		return c, fmt.Errorf("%w: commitment %s already matured, awaiting sweep", domain.ErrInvalidState, c.ID)
	}

	res, err := tx.Exec(`
		UPDATE fan_commitments SET status = 'withdrawn_early', withdrawn_at = ?
		WHERE id = ? AND status = 'active'
	`, fmtTime(now), id)
	if err != nil {
		return c, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return c, fmt.Errorf("%w: commitment %s is no longer active", domain.ErrInvalidState, id)
	}

	refund := c.EarlyRefund()
	if _, err := applyEntryTx(tx, EntryRequest{
		AccountID:   c.FanID,
		Amount:      refund,
		Kind:        domain.KindCommitmentPenalty,
		ReferenceID: c.ID,
		Description: fmt.Sprintf("early withdrawal, %d coins returned (%d%% penalty burned)", refund, domain.EarlyWithdrawalPenaltyPct),
	}, now); err != nil {
		return c, err
	}

	c.Status = domain.CommitmentWithdrawnEarly
	withdrawn := now
	c.WithdrawnAt = &withdrawn
	if err := tx.Commit(); err != nil {
		return c, err
	}
	return c, nil
}
