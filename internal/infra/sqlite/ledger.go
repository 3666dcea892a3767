// Ledger schema and operations.
// Accounts are the current-balance projection; ledger entries are the
// append-only source of truth. ApplyEntry is the only way a balance moves.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fandreams/fancoin/internal/domain"
)

// ─── Ledger Schema ──────────────────────────────────────────────────────────

// LedgerMigrations returns the account and ledger entry schema statements.
func LedgerMigrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id           TEXT PRIMARY KEY,
			type         TEXT NOT NULL DEFAULT 'wallet',
			balance      INTEGER NOT NULL DEFAULT 0 CHECK(balance >= 0),
			total_earned INTEGER NOT NULL DEFAULT 0,
			total_spent  INTEGER NOT NULL DEFAULT 0,
			created_at   TEXT NOT NULL,
			updated_at   TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id            TEXT PRIMARY KEY,
			account_id    TEXT NOT NULL,
			amount        INTEGER NOT NULL,
			kind          TEXT NOT NULL,
			reference_id  TEXT NOT NULL,
			balance_after INTEGER NOT NULL,
			description   TEXT NOT NULL DEFAULT '',
			created_at    TEXT NOT NULL,
			UNIQUE(account_id, reference_id, kind)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_account ON ledger_entries(account_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_reference ON ledger_entries(reference_id)`,
	}
}

// ─── Account Operations ─────────────────────────────────────────────────────

// ensureAccountTx creates the account row if it does not exist yet.
// Wallets, guild treasuries and the platform account are all created lazily.
func ensureAccountTx(tx *sql.Tx, accountID string, accountType domain.AccountType, now time.Time) error {
	_, err := tx.Exec(`
		INSERT INTO accounts (id, type, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, accountID, string(accountType), fmtTime(now), fmtTime(now))
	return err
}

func getAccountTx(tx *sql.Tx, accountID string) (domain.Account, error) {
	var a domain.Account
	var acctType, createdAt, updatedAt string
	err := tx.QueryRow(`
		SELECT id, type, balance, total_earned, total_spent, created_at, updated_at
		FROM accounts WHERE id = ?
	`, accountID).Scan(&a.ID, &acctType, &a.Balance, &a.TotalEarned, &a.TotalSpent, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return a, domain.ErrAccountNotFound
	}
	if err != nil {
		return a, err
	}
	a.Type = domain.AccountType(acctType)
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	return a, nil
}

// GetAccount returns an account's current projection.
func (db *DB) GetAccount(accountID string) (domain.Account, error) {
	tx, err := db.db.Begin()
	if err != nil {
		return domain.Account{}, err
	}
	defer tx.Rollback()
	return getAccountTx(tx, accountID)
}

// ─── Entry Application ──────────────────────────────────────────────────────

// EntryRequest describes one entry to apply.
type EntryRequest struct {
	AccountID   string
	AccountType domain.AccountType
	Amount      int64
	Kind        domain.EntryKind
	ReferenceID string
	Description string
}

// ApplyEntry applies a single debit or credit atomically.
//
// If the (account, reference, kind) idempotency key already exists, the
// stored entry is returned with Duplicate=true — retried webhooks are a
// no-op, not an error. Debits verify the available balance for the entry's
// spend context; platform-internal kinds may draw on locked bonus coins,
// a withdrawal may not.
func (db *DB) ApplyEntry(req EntryRequest) (domain.AppliedEntry, error) {
	tx, err := db.db.Begin()
	if err != nil {
		return domain.AppliedEntry{}, err
	}
	defer tx.Rollback()

	applied, err := applyEntryTx(tx, req, time.Now())
	if err != nil {
		return domain.AppliedEntry{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.AppliedEntry{}, err
	}
	return applied, nil
}

func applyEntryTx(tx *sql.Tx, req EntryRequest, now time.Time) (domain.AppliedEntry, error) {
	if req.AccountType == "" {
		req.AccountType = domain.AccountWallet
	}

	// Idempotent retry: return the prior entry untouched.
	if existing, ok, err := findEntryTx(tx, req.AccountID, req.ReferenceID, req.Kind); err != nil {
		return domain.AppliedEntry{}, err
	} else if ok {
		return domain.AppliedEntry{Entry: existing, Duplicate: true}, nil
	}

	if err := ensureAccountTx(tx, req.AccountID, req.AccountType, now); err != nil {
		return domain.AppliedEntry{}, err
	}
	acct, err := getAccountTx(tx, req.AccountID)
	if err != nil {
		return domain.AppliedEntry{}, err
	}

	if req.Amount < 0 {
		need := -req.Amount
		avail := acct.Balance
		if !req.Kind.AllowsLockedBonus() {
			locked, err := lockedBonusTx(tx, req.AccountID)
			if err != nil {
				return domain.AppliedEntry{}, err
			}
			avail -= locked
		}
		if avail < need {
			return domain.AppliedEntry{}, fmt.Errorf("%w: account %s needs %d, has %d available for %s",
				domain.ErrInsufficientFunds, req.AccountID, need, avail, req.Kind)
		}
		// Platform-internal spends consume locked bonus coins first —
		// they are worth less to the user because non-refundable.
		if req.Kind.AllowsLockedBonus() {
			if err := consumeGrantsTx(tx, req.AccountID, need, now); err != nil {
				return domain.AppliedEntry{}, err
			}
		}
	}

	balanceAfter := acct.Balance + req.Amount
	earned, spent := acct.TotalEarned, acct.TotalSpent
	if req.Amount >= 0 {
		earned += req.Amount
	} else {
		spent += -req.Amount
	}

	if _, err := tx.Exec(`
		UPDATE accounts SET balance = ?, total_earned = ?, total_spent = ?, updated_at = ?
		WHERE id = ?
	`, balanceAfter, earned, spent, fmtTime(now), req.AccountID); err != nil {
		return domain.AppliedEntry{}, err
	}

	entry := domain.LedgerEntry{
		ID:           uuid.NewString(),
		AccountID:    req.AccountID,
		Amount:       req.Amount,
		Kind:         req.Kind,
		ReferenceID:  req.ReferenceID,
		BalanceAfter: balanceAfter,
		Description:  req.Description,
		CreatedAt:    now,
	}
	if _, err := tx.Exec(`
		INSERT INTO ledger_entries (id, account_id, amount, kind, reference_id, balance_after, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.AccountID, entry.Amount, string(entry.Kind), entry.ReferenceID,
		entry.BalanceAfter, entry.Description, fmtTime(now)); err != nil {
		return domain.AppliedEntry{}, err
	}

	return domain.AppliedEntry{Entry: entry}, nil
}

// ApplyEntries applies several entries in one transaction. Entries whose
// idempotency key already exists are skipped; the rest apply atomically.
// Used for logically-paired movements (tip debit + credit, skim pair).
func (db *DB) ApplyEntries(reqs ...EntryRequest) ([]domain.AppliedEntry, error) {
	tx, err := db.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now()
	applied := make([]domain.AppliedEntry, 0, len(reqs))
	for _, req := range reqs {
		a, err := applyEntryTx(tx, req, now)
		if err != nil {
			return nil, err
		}
		applied = append(applied, a)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return applied, nil
}

func findEntryTx(tx *sql.Tx, accountID, referenceID string, kind domain.EntryKind) (domain.LedgerEntry, bool, error) {
	var e domain.LedgerEntry
	var kindStr, createdAt string
	err := tx.QueryRow(`
		SELECT id, account_id, amount, kind, reference_id, balance_after, description, created_at
		FROM ledger_entries
		WHERE account_id = ? AND reference_id = ? AND kind = ?
	`, accountID, referenceID, string(kind)).Scan(
		&e.ID, &e.AccountID, &e.Amount, &kindStr, &e.ReferenceID, &e.BalanceAfter, &e.Description, &createdAt)
	if err == sql.ErrNoRows {
		return e, false, nil
	}
	if err != nil {
		return e, false, err
	}
	e.Kind = domain.EntryKind(kindStr)
	e.CreatedAt = parseTime(createdAt)
	return e, true, nil
}

// ─── Read Models ────────────────────────────────────────────────────────────

// Wallet returns the read model for a user: balance, audit counters, and the
// split between withdrawable and locked bonus coins.
func (db *DB) Wallet(userID string) (domain.WalletView, error) {
	tx, err := db.db.Begin()
	if err != nil {
		return domain.WalletView{}, err
	}
	defer tx.Rollback()

	view := domain.WalletView{UserID: userID}
	acct, err := getAccountTx(tx, userID)
	if err == domain.ErrAccountNotFound {
		return view, nil
	}
	if err != nil {
		return domain.WalletView{}, err
	}
	view.Balance = acct.Balance
	view.TotalEarned = acct.TotalEarned
	view.TotalSpent = acct.TotalSpent

	locked, err := lockedBonusTx(tx, userID)
	if err != nil {
		return domain.WalletView{}, err
	}
	view.LockedBonus = locked

	unlocked, err := unlockedBonusTx(tx, userID)
	if err != nil {
		return domain.WalletView{}, err
	}
	view.WithdrawableBonus = unlocked
	return view, nil
}

// History returns a user's ledger entries, newest first.
func (db *DB) History(accountID string, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.db.Query(`
		SELECT id, account_id, amount, kind, reference_id, balance_after, description, created_at
		FROM ledger_entries WHERE account_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?
	`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var kindStr, createdAt string
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Amount, &kindStr, &e.ReferenceID,
			&e.BalanceAfter, &e.Description, &createdAt); err != nil {
			return nil, err
		}
		e.Kind = domain.EntryKind(kindStr)
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// TotalCoins returns the sum of all balances. Circulation only changes
// through mint (purchase, bonus grant) and burn (early-withdrawal penalty)
// points; transfers conserve it.
func (db *DB) TotalCoins() (int64, error) {
	var total sql.NullInt64
	err := db.db.QueryRow(`SELECT SUM(balance) FROM accounts`).Scan(&total)
	return total.Int64, err
}
