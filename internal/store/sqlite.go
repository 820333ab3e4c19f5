package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists arena state in a single sqlite database. One
// connection keeps all writes serialized, which modernc's driver needs
// anyway and which gives us per-agent settlement ordering for free.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("empty sqlite database path")
	}
	if dbPath != ":memory:" {
		parent := filepath.Dir(dbPath)
		if parent != "" && parent != "." {
			if err := os.MkdirAll(parent, 0o755); err != nil {
				return nil, err
			}
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, pragma := range []string{
		`PRAGMA busy_timeout = 5000;`,
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA foreign_keys = ON;`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) CreateAgent(ctx context.Context, id, name, apiKeyHash string) error {
	now := time.Now().UTC().UnixMilli()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO agents (id, name, api_key_hash, created_at_ms)
VALUES (?, ?, ?, ?)
`, id, name, apiKeyHash, now); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO accounts (agent_id, balance_cc) VALUES (?, 0)
`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetAgent(ctx context.Context, id string) (*Agent, error) {
	var a Agent
	var createdMs int64
	err := s.db.QueryRowContext(ctx, `
SELECT id, name, api_key_hash, created_at_ms FROM agents WHERE id = ?
`, id).Scan(&a.ID, &a.Name, &a.APIKeyHash, &createdMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.CreatedAt = time.UnixMilli(createdMs).UTC()
	return &a, nil
}

func (s *SQLiteStore) Balance(ctx context.Context, agentID string) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx, `
SELECT balance_cc FROM accounts WHERE agent_id = ?
`, agentID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return balance, err
}

func (s *SQLiteStore) Mint(ctx context.Context, agentID string, amount int64, refID string) error {
	if amount <= 0 {
		return fmt.Errorf("mint amount must be positive, got %d", amount)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
UPDATE accounts SET balance_cc = balance_cc + ? WHERE agent_id = ?
`, amount, agentID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO ledger_entries (agent_id, delta_cc, reason, ref_id, created_at_ms)
VALUES (?, ?, 'mint', ?, ?)
`, agentID, amount, refID, time.Now().UTC().UnixMilli()); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) ApplySettlement(ctx context.Context, handID string, entries []LedgerEntry) error {
	now := time.Now().UTC().UnixMilli()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// The settlements row is the idempotency marker. Second writers for
	// the same hand id land here and back off.
	var one int
	err = tx.QueryRowContext(ctx, `
SELECT 1 FROM settlements WHERE hand_id = ?
`, handID).Scan(&one)
	if err == nil {
		return ErrAlreadySettled
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	for _, e := range entries {
		var balance int64
		err := tx.QueryRowContext(ctx, `
SELECT balance_cc FROM accounts WHERE agent_id = ?
`, e.AgentID).Scan(&balance)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("settle hand %s: agent %s: %w", handID, e.AgentID, ErrNotFound)
		}
		if err != nil {
			return err
		}
		if balance+e.Delta < 0 {
			return fmt.Errorf("settle hand %s: agent %s balance %d delta %d: %w",
				handID, e.AgentID, balance, e.Delta, ErrInsufficientFunds)
		}
		if _, err := tx.ExecContext(ctx, `
UPDATE accounts SET balance_cc = balance_cc + ? WHERE agent_id = ?
`, e.Delta, e.AgentID); err != nil {
			return err
		}
		reason := e.Reason
		if reason == "" {
			reason = "settlement"
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO ledger_entries (agent_id, delta_cc, reason, ref_id, created_at_ms)
VALUES (?, ?, ?, ?, ?)
`, e.AgentID, e.Delta, reason, handID, now); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO settlements (hand_id, settled_at_ms) VALUES (?, ?)
`, handID, now); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
UPDATE hands SET status = 'settled', ended_at_ms = ? WHERE id = ? AND status = 'open'
`, now, handID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) Entries(ctx context.Context, agentID string, limit int) ([]LedgerEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT agent_id, delta_cc, reason, ref_id, created_at_ms
FROM ledger_entries
WHERE agent_id = ?
ORDER BY id DESC
LIMIT ?
`, agentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]LedgerEntry, 0, limit)
	for rows.Next() {
		var e LedgerEntry
		var createdMs int64
		if err := rows.Scan(&e.AgentID, &e.Delta, &e.Reason, &e.RefID, &createdMs); err != nil {
			return nil, err
		}
		e.CreatedAt = time.UnixMilli(createdMs).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) OpenHand(ctx context.Context, handID, tableID string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO hands (id, table_id, status, started_at_ms) VALUES (?, ?, 'open', ?)
`, handID, tableID, time.Now().UTC().UnixMilli())
	return err
}

func (s *SQLiteStore) RecordAction(ctx context.Context, handID, agentID, action string, amount int64) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO actions (hand_id, agent_id, action, amount_cc, created_at_ms)
VALUES (?, ?, ?, ?, ?)
`, handID, agentID, action, amount, time.Now().UTC().UnixMilli())
	return err
}

func (s *SQLiteStore) VoidOpenHands(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE hands SET status = 'void', ended_at_ms = ? WHERE status = 'open'
`, time.Now().UTC().UnixMilli())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`
CREATE TABLE IF NOT EXISTS agents (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    api_key_hash TEXT NOT NULL,
    created_at_ms INTEGER NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS accounts (
    agent_id TEXT PRIMARY KEY REFERENCES agents(id),
    balance_cc INTEGER NOT NULL DEFAULT 0,
    CHECK (balance_cc >= 0)
)`,
		`
CREATE TABLE IF NOT EXISTS ledger_entries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    agent_id TEXT NOT NULL,
    delta_cc INTEGER NOT NULL,
    reason TEXT NOT NULL,
    ref_id TEXT NOT NULL DEFAULT '',
    created_at_ms INTEGER NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_entries_agent ON ledger_entries(agent_id, id DESC)`,
		`
CREATE TABLE IF NOT EXISTS settlements (
    hand_id TEXT PRIMARY KEY,
    settled_at_ms INTEGER NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS hands (
    id TEXT PRIMARY KEY,
    table_id TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'open',
    started_at_ms INTEGER NOT NULL,
    ended_at_ms INTEGER
)`,
		`CREATE INDEX IF NOT EXISTS idx_hands_status ON hands(status)`,
		`
CREATE TABLE IF NOT EXISTS actions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    hand_id TEXT NOT NULL,
    agent_id TEXT NOT NULL,
    action TEXT NOT NULL,
    amount_cc INTEGER NOT NULL DEFAULT 0,
    created_at_ms INTEGER NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_hand ON actions(hand_id, id)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
