// Bonus grant schema and vesting operations.
// Grants are non-fungible credits layered on a wallet. Their coins live in
// the wallet balance from the moment of the grant; vesting only moves them
// from the locked to the withdrawable side of the split.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fandreams/fancoin/internal/domain"
)

// ─── Bonus Schema ───────────────────────────────────────────────────────────

// BonusMigrations returns the bonus grant schema statements.
func BonusMigrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS bonus_grants (
			id                          TEXT PRIMARY KEY,
			user_id                     TEXT NOT NULL,
			type                        TEXT NOT NULL,
			total_amount                INTEGER NOT NULL CHECK(total_amount > 0),
			unlocked_amount             INTEGER NOT NULL DEFAULT 0,
			spent_amount                INTEGER NOT NULL DEFAULT 0,
			vesting_rule                TEXT NOT NULL,
			vesting_rate                REAL NOT NULL DEFAULT 0,
			vesting_revenue_required    INTEGER NOT NULL DEFAULT 0,
			vesting_revenue_accumulated INTEGER NOT NULL DEFAULT 0,
			vesting_unlock_at           TEXT,
			vesting_condition           TEXT NOT NULL DEFAULT '',
			status                      TEXT NOT NULL DEFAULT 'active',
			reference_id                TEXT NOT NULL DEFAULT '',
			description                 TEXT NOT NULL DEFAULT '',
			created_at                  TEXT NOT NULL,
			updated_at                  TEXT NOT NULL,
			CHECK(unlocked_amount + spent_amount <= total_amount)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_grants_user ON bonus_grants(user_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_grants_rule ON bonus_grants(vesting_rule, status)`,
	}
}

// ─── Grant Creation ─────────────────────────────────────────────────────────

// InsertGrant creates a grant row and credits the holder's wallet in one
// transaction. The wallet credit is keyed (user, grantID, bonus_grant), so
// re-running a grant-producing event cannot double-credit.
func (db *DB) InsertGrant(grant domain.BonusGrant) (domain.BonusGrant, error) {
	tx, err := db.db.Begin()
	if err != nil {
		return domain.BonusGrant{}, err
	}
	defer tx.Rollback()

	now := time.Now()
	if grant.ID == "" {
		grant.ID = uuid.NewString()
	}
	if grant.Status == "" {
		grant.Status = domain.GrantActive
	}
	grant.CreatedAt = now
	grant.UpdatedAt = now

	var unlockAt any
	if grant.VestingUnlockAt != nil {
		unlockAt = fmtTime(*grant.VestingUnlockAt)
	}
	if _, err := tx.Exec(`
		INSERT INTO bonus_grants (id, user_id, type, total_amount, unlocked_amount, spent_amount,
			vesting_rule, vesting_rate, vesting_revenue_required, vesting_revenue_accumulated,
			vesting_unlock_at, vesting_condition, status, reference_id, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, grant.ID, grant.UserID, string(grant.Type), grant.TotalAmount, grant.UnlockedAmount, grant.SpentAmount,
		string(grant.VestingRule), grant.VestingRate, grant.VestingRevenueRequired, grant.VestingRevenueAccumulated,
		unlockAt, grant.VestingCondition, string(grant.Status), grant.ReferenceID, grant.Description,
		fmtTime(now), fmtTime(now)); err != nil {
		return domain.BonusGrant{}, err
	}

	if _, err := applyEntryTx(tx, EntryRequest{
		AccountID:   grant.UserID,
		Amount:      grant.TotalAmount,
		Kind:        domain.KindBonusGrant,
		ReferenceID: grant.ID,
		Description: grant.Description,
	}, now); err != nil {
		return domain.BonusGrant{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.BonusGrant{}, err
	}
	return grant, nil
}

// GetGrant retrieves one grant.
func (db *DB) GetGrant(grantID string) (domain.BonusGrant, error) {
	row := db.db.QueryRow(grantSelect+` WHERE id = ?`, grantID)
	g, err := scanGrant(row)
	if err == sql.ErrNoRows {
		return g, domain.ErrNotFound
	}
	return g, err
}

// ListGrants returns a user's grants, newest first.
func (db *DB) ListGrants(userID string) ([]domain.BonusGrant, error) {
	rows, err := db.db.Query(grantSelect+` WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []domain.BonusGrant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

const grantSelect = `
	SELECT id, user_id, type, total_amount, unlocked_amount, spent_amount,
		vesting_rule, vesting_rate, vesting_revenue_required, vesting_revenue_accumulated,
		vesting_unlock_at, vesting_condition, status, reference_id, description, created_at, updated_at
	FROM bonus_grants`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGrant(row rowScanner) (domain.BonusGrant, error) {
	var g domain.BonusGrant
	var grantType, rule, status, createdAt, updatedAt string
	var unlockAt sql.NullString
	err := row.Scan(&g.ID, &g.UserID, &grantType, &g.TotalAmount, &g.UnlockedAmount, &g.SpentAmount,
		&rule, &g.VestingRate, &g.VestingRevenueRequired, &g.VestingRevenueAccumulated,
		&unlockAt, &g.VestingCondition, &status, &g.ReferenceID, &g.Description, &createdAt, &updatedAt)
	if err != nil {
		return g, err
	}
	g.Type = domain.GrantType(grantType)
	g.VestingRule = domain.VestingRule(rule)
	g.Status = domain.GrantStatus(status)
	g.VestingUnlockAt = parseTimePtr(unlockAt)
	g.CreatedAt = parseTime(createdAt)
	g.UpdatedAt = parseTime(updatedAt)
	return g, nil
}

// ─── Wallet Split Helpers ───────────────────────────────────────────────────

// lockedBonusTx sums the coins across a user's active grants that have
// neither vested nor been spent. These are excluded from cash withdrawals.
func lockedBonusTx(tx *sql.Tx, userID string) (int64, error) {
	var locked sql.NullInt64
	err := tx.QueryRow(`
		SELECT SUM(total_amount - unlocked_amount - spent_amount)
		FROM bonus_grants WHERE user_id = ? AND status = 'active'
	`, userID).Scan(&locked)
	return locked.Int64, err
}

func unlockedBonusTx(tx *sql.Tx, userID string) (int64, error) {
	var unlocked sql.NullInt64
	err := tx.QueryRow(`
		SELECT SUM(unlocked_amount)
		FROM bonus_grants WHERE user_id = ? AND status IN ('active', 'fully_vested')
	`, userID).Scan(&unlocked)
	return unlocked.Int64, err
}

// consumeGrantsTx draws a platform-internal spend against locked bonus coins
// first, oldest grant first. Unlocked coins already count as ordinary
// balance; only the locked remainder is tracked per grant.
func consumeGrantsTx(tx *sql.Tx, userID string, need int64, now time.Time) error {
	rows, err := tx.Query(`
		SELECT id, total_amount, unlocked_amount, spent_amount
		FROM bonus_grants
		WHERE user_id = ? AND status = 'active'
			AND total_amount - unlocked_amount - spent_amount > 0
		ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return err
	}
	type slice struct {
		id                     string
		total, unlocked, spent int64
	}
	var candidates []slice
	for rows.Next() {
		var s slice
		if err := rows.Scan(&s.id, &s.total, &s.unlocked, &s.spent); err != nil {
			rows.Close()
			return err
		}
		candidates = append(candidates, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, s := range candidates {
		if need <= 0 {
			break
		}
		lockedRem := s.total - s.unlocked - s.spent
		take := lockedRem
		if take > need {
			take = need
		}
		newSpent := s.spent + take
		status := domain.GrantActive
		if s.unlocked+newSpent >= s.total {
			// Nothing locked remains. Without any unlocked coins the
			// grant was consumed outright.
			if s.unlocked == 0 {
				status = domain.GrantFullySpent
			} else {
				status = domain.GrantFullyVested
			}
		}
		if _, err := tx.Exec(`
			UPDATE bonus_grants SET spent_amount = ?, status = ?, updated_at = ?
			WHERE id = ? AND status = 'active'
		`, newSpent, string(status), fmtTime(now), s.id); err != nil {
			return err
		}
		need -= take
	}
	// Any remainder draws on ordinary balance; the caller already verified
	// the total available.
	return nil
}

// ─── Vesting Progression ────────────────────────────────────────────────────

// VestingUnlock describes one grant's unlock step.
type VestingUnlock struct {
	GrantID  string
	UserID   string
	Unlocked int64
	Complete bool
}

// AccrueRevenue advances every active revenue-vesting grant of a user after
// a qualifying earning. The unlocked amount is recomputed from the
// accumulated revenue and clamped so it never decreases.
func (db *DB) AccrueRevenue(userID string, revenueCentavos int64) ([]VestingUnlock, error) {
	if revenueCentavos <= 0 {
		return nil, nil
	}
	tx, err := db.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.Query(grantSelect+`
		WHERE user_id = ? AND vesting_rule = 'revenue' AND status = 'active'
		ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	var grants []domain.BonusGrant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		grants = append(grants, g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	now := time.Now()
	var unlocks []VestingUnlock
	for _, g := range grants {
		accumulated := g.VestingRevenueAccumulated + revenueCentavos
		target := g.RevenueUnlockTarget(accumulated)
		unlocked := g.UnlockedAmount
		if target > unlocked {
			unlocked = target
		}
		complete := unlocked+g.SpentAmount >= g.TotalAmount
		status := domain.GrantActive
		if complete {
			status = domain.GrantFullyVested
		}
		if _, err := tx.Exec(`
			UPDATE bonus_grants
			SET unlocked_amount = ?, vesting_revenue_accumulated = ?, status = ?, updated_at = ?
			WHERE id = ? AND status = 'active'
		`, unlocked, accumulated, string(status), fmtTime(now), g.ID); err != nil {
			return nil, err
		}
		if unlocked > g.UnlockedAmount {
			step := VestingUnlock{GrantID: g.ID, UserID: g.UserID, Unlocked: unlocked - g.UnlockedAmount, Complete: complete}
			unlocks = append(unlocks, step)
		}
		if complete {
			if err := recordUnlockAuditTx(tx, g.UserID, g.ID, now); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return unlocks, nil
}

// UnlockTimeGrants unlocks every matured time-vesting grant. The update
// re-checks status='active' so a concurrent tick cannot double-unlock.
func (db *DB) UnlockTimeGrants(now time.Time) ([]VestingUnlock, error) {
	tx, err := db.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.Query(grantSelect+`
		WHERE vesting_rule = 'time' AND status = 'active' AND vesting_unlock_at <= ?
	`, fmtTime(now))
	if err != nil {
		return nil, err
	}
	var grants []domain.BonusGrant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		grants = append(grants, g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var unlocks []VestingUnlock
	for _, g := range grants {
		unlocked := g.TotalAmount - g.SpentAmount
		res, err := tx.Exec(`
			UPDATE bonus_grants SET unlocked_amount = ?, status = 'fully_vested', updated_at = ?
			WHERE id = ? AND status = 'active'
		`, unlocked, fmtTime(now), g.ID)
		if err != nil {
			return nil, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue // claimed by a concurrent tick
		}
		if err := recordUnlockAuditTx(tx, g.UserID, g.ID, now); err != nil {
			return nil, err
		}
		unlocks = append(unlocks, VestingUnlock{GrantID: g.ID, UserID: g.UserID, Unlocked: unlocked - g.UnlockedAmount, Complete: true})
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return unlocks, nil
}

// CompleteConditionGrant unlocks a condition-vesting grant after its
// external signal fired. No partial unlock exists for this rule.
func (db *DB) CompleteConditionGrant(grantID string) (domain.BonusGrant, error) {
	tx, err := db.db.Begin()
	if err != nil {
		return domain.BonusGrant{}, err
	}
	defer tx.Rollback()

	row := tx.QueryRow(grantSelect+` WHERE id = ?`, grantID)
	g, err := scanGrant(row)
	if err == sql.ErrNoRows {
		return domain.BonusGrant{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.BonusGrant{}, err
	}
	if g.VestingRule != domain.VestCondition {
		return domain.BonusGrant{}, fmt.Errorf("%w: grant %s vests by %s, not condition", domain.ErrInvalidState, g.ID, g.VestingRule)
	}
	if g.Status != domain.GrantActive {
		return domain.BonusGrant{}, fmt.Errorf("%w: grant %s is %s", domain.ErrInvalidState, g.ID, g.Status)
	}

	now := time.Now()
	g.UnlockedAmount = g.TotalAmount - g.SpentAmount
	g.Status = domain.GrantFullyVested
	if _, err := tx.Exec(`
		UPDATE bonus_grants SET unlocked_amount = ?, status = 'fully_vested', updated_at = ?
		WHERE id = ? AND status = 'active'
	`, g.UnlockedAmount, fmtTime(now), g.ID); err != nil {
		return domain.BonusGrant{}, err
	}
	if err := recordUnlockAuditTx(tx, g.UserID, g.ID, now); err != nil {
		return domain.BonusGrant{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.BonusGrant{}, err
	}
	return g, nil
}

// recordUnlockAuditTx writes the zero-amount audit entry marking a grant as
// fully vested. Unlocking does not move the balance — the coins were already
// spendable — it only widens the withdrawable split, so the entry carries
// amount 0 and exists once per grant.
func recordUnlockAuditTx(tx *sql.Tx, userID, grantID string, now time.Time) error {
	_, err := applyEntryTx(tx, EntryRequest{
		AccountID:   userID,
		Amount:      0,
		Kind:        domain.KindBonusUnlock,
		ReferenceID: grantID,
		Description: "bonus fully vested",
	}, now)
	return err
}
