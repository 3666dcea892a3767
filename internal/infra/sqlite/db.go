// Package sqlite is the persistent FanCoin store.
// It owns atomicity: every balance-affecting operation runs inside a single
// immediate transaction scoped to the affected account rows, and the
// (account_id, reference_id, kind) uniqueness on ledger entries makes
// retried upstream events safe without external deduplication.
package sqlite

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection and exposes all store operations.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the FanCoin database under dir and applies all
// schema migrations.
func Open(dir string) (*DB, error) {
	path := filepath.Join(dir, "fancoin.db")
	return open("file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
}

// OpenMemory opens a private in-memory database. Used by tests.
func OpenMemory() (*DB, error) {
	// A unique name per open keeps parallel tests from sharing state.
	return open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
}

func open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serializes writers anyway; a single connection avoids
	// SQLITE_BUSY churn under concurrent request handlers.
	conn.SetMaxOpenConns(1)

	db := &DB{db: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error { return db.db.Close() }

// migrate applies every schema statement. Each string is a single SQL
// statement (SQLite executes one at a time).
func (db *DB) migrate() error {
	var stmts []string
	stmts = append(stmts, LedgerMigrations()...)
	stmts = append(stmts, BonusMigrations()...)
	stmts = append(stmts, AffiliateMigrations()...)
	stmts = append(stmts, GuildMigrations()...)
	stmts = append(stmts, CommitmentMigrations()...)

	for _, stmt := range stmts {
		if _, err := db.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// ─── Time helpers ───────────────────────────────────────────────────────────

// timeLayout is RFC 3339 with fixed-width nanoseconds so that stored
// strings order lexicographically the same as chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func fmtTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}
