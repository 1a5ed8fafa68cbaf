// Package sqlite provides embedded persistence for the carbon ledger.
// Accounts, the ledger-local used-project set, and the append-only event
// journal are stored in a single SQLite database file.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure-Go driver, registers as "sqlite"

	"github.com/cct-network/carbond/internal/domain"
)

// DB wraps the SQLite connection.
type DB struct {
	db *sql.DB
}

// Open creates or opens the ledger database under dir.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	path := filepath.Join(dir, "carbond.db")
	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db := &DB{db: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error { return db.db.Close() }

// ─── Schema ─────────────────────────────────────────────────────────────────

// Migrations returns the schema migration statements.
// Each string is a single SQL statement (SQLite executes one at a time).
func Migrations() []string {
	return []string{
		// Per-account carbon position
		`CREATE TABLE IF NOT EXISTS accounts (
			address    TEXT PRIMARY KEY,
			balance    INTEGER NOT NULL DEFAULT 0,
			debt       INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,

		// Ledger-local used-project set. Authoritative for double-mint
		// rejection; independent of the external Project Registry.
		`CREATE TABLE IF NOT EXISTS used_projects (
			project_id TEXT PRIMARY KEY,
			account    TEXT NOT NULL,
			used_at    TEXT NOT NULL DEFAULT (datetime('now'))
		)`,

		// Append-only audit journal of ledger state transitions
		`CREATE TABLE IF NOT EXISTS ledger_events (
			id           TEXT PRIMARY KEY,
			timestamp    TEXT NOT NULL,
			kind         TEXT NOT NULL,
			account      TEXT NOT NULL,
			counterparty TEXT,
			amount       INTEGER NOT NULL,
			old_balance  INTEGER NOT NULL,
			old_debt     INTEGER NOT NULL,
			new_balance  INTEGER NOT NULL,
			new_debt     INTEGER NOT NULL,
			provenance   TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_account ON ledger_events(account, timestamp)`,
	}
}

func (db *DB) migrate() error {
	for _, stmt := range Migrations() {
		if _, err := db.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// ─── Mutation Operations ────────────────────────────────────────────────────

// SaveMutation persists one ledger state transition atomically: the mutated
// account rows, the audit event, and (for mints) the used-project record all
// commit or none do.
func (db *DB) SaveMutation(accounts []domain.Account, ev domain.LedgerEvent, usedProjectID string) error {
	tx, err := db.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, a := range accounts {
		if _, err := tx.Exec(`
			INSERT INTO accounts (address, balance, debt, updated_at)
			VALUES (?, ?, ?, datetime('now'))
			ON CONFLICT(address) DO UPDATE SET
				balance    = excluded.balance,
				debt       = excluded.debt,
				updated_at = datetime('now')
		`, a.Address, a.Balance, a.Debt); err != nil {
			return fmt.Errorf("upsert account %s: %w", a.Address, err)
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO ledger_events
			(id, timestamp, kind, account, counterparty, amount,
			 old_balance, old_debt, new_balance, new_debt, provenance)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.Timestamp.Format(time.RFC3339Nano), string(ev.Kind), ev.Account,
		ev.Counterparty, ev.Amount, ev.OldBalance, ev.OldDebt,
		ev.NewBalance, ev.NewDebt, ev.Provenance); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	if usedProjectID != "" {
		if _, err := tx.Exec(`
			INSERT INTO used_projects (project_id, account, used_at)
			VALUES (?, ?, ?)
		`, usedProjectID, ev.Account, ev.Timestamp.Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("record used project: %w", err)
		}
	}

	return tx.Commit()
}

// ─── Load Operations ────────────────────────────────────────────────────────

// LoadAccounts returns all persisted accounts.
func (db *DB) LoadAccounts() ([]domain.Account, error) {
	rows, err := db.db.Query(`SELECT address, balance, debt FROM accounts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(&a.Address, &a.Balance, &a.Debt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// LoadUsedProjects returns the persisted used-project set (id → account).
func (db *DB) LoadUsedProjects() (map[string]string, error) {
	rows, err := db.db.Query(`SELECT project_id, account FROM used_projects`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	used := make(map[string]string)
	for rows.Next() {
		var id, account string
		if err := rows.Scan(&id, &account); err != nil {
			return nil, err
		}
		used[id] = account
	}
	return used, rows.Err()
}

// EventsForAccount returns the most recent audit events for an account,
// newest first.
func (db *DB) EventsForAccount(account string, limit int) ([]domain.LedgerEvent, error) {
	rows, err := db.db.Query(`
		SELECT id, timestamp, kind, account, counterparty, amount,
		       old_balance, old_debt, new_balance, new_debt, provenance
		FROM ledger_events WHERE account = ?
		ORDER BY timestamp DESC LIMIT ?
	`, account, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.LedgerEvent
	for rows.Next() {
		var ev domain.LedgerEvent
		var ts, kind string
		var counterparty, provenance sql.NullString
		if err := rows.Scan(&ev.ID, &ts, &kind, &ev.Account, &counterparty,
			&ev.Amount, &ev.OldBalance, &ev.OldDebt, &ev.NewBalance,
			&ev.NewDebt, &provenance); err != nil {
			return nil, err
		}
		ev.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		ev.Kind = domain.EventKind(kind)
		ev.Counterparty = counterparty.String
		ev.Provenance = provenance.String
		out = append(out, ev)
	}
	return out, rows.Err()
}

// EventCount returns the total number of journal entries.
func (db *DB) EventCount() (int64, error) {
	var n int64
	err := db.db.QueryRow(`SELECT COUNT(*) FROM ledger_events`).Scan(&n)
	return n, err
}
