// Package store is the durable state layer behind the arena: agent
// records, CC accounts with their append-only ledger, and the hand
// journal used for idempotent settlement and crash recovery.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrAlreadySettled indicates a settlement for this hand id was
	// already applied. Replays are a no-op for callers.
	ErrAlreadySettled = errors.New("store: hand already settled")

	// ErrInsufficientFunds indicates a debit would drive a balance negative.
	ErrInsufficientFunds = errors.New("store: insufficient funds")
)

// Agent is a registered autonomous agent.
type Agent struct {
	ID         string
	Name       string
	APIKeyHash string
	CreatedAt  time.Time
}

// LedgerEntry is one append-only CC movement. Balance is the running sum
// of an agent's entries.
type LedgerEntry struct {
	AgentID   string
	Delta     int64
	Reason    string // "settlement", "mint", "void_refund"
	RefID     string // hand id for settlements, key id for mints
	CreatedAt time.Time
}

// HandStatus tracks the durable lifecycle of a hand.
type HandStatus string

const (
	HandStatusOpen    HandStatus = "open"
	HandStatusSettled HandStatus = "settled"
	HandStatusVoid    HandStatus = "void"
)

// HandRecord is the journal row for one dealt hand.
type HandRecord struct {
	ID        string
	TableID   string
	Status    HandStatus
	StartedAt time.Time
	EndedAt   time.Time
}

// Store is implemented by the sqlite store and the in-memory store used
// in tests. All mutations serialize through the implementation's single
// write path, which is what makes concurrent settlements touching the
// same agent safe.
type Store interface {
	// Agents
	CreateAgent(ctx context.Context, id, name, apiKeyHash string) error
	GetAgent(ctx context.Context, id string) (*Agent, error)

	// Ledger
	Balance(ctx context.Context, agentID string) (int64, error)
	Mint(ctx context.Context, agentID string, amount int64, refID string) error
	// ApplySettlement atomically applies the entries for one hand,
	// exactly once per hand id. Entries that would drive any balance
	// negative reject the whole settlement.
	ApplySettlement(ctx context.Context, handID string, entries []LedgerEntry) error
	Entries(ctx context.Context, agentID string, limit int) ([]LedgerEntry, error)

	// Hand journal
	OpenHand(ctx context.Context, handID, tableID string) error
	RecordAction(ctx context.Context, handID, agentID, action string, amount int64) error
	// VoidOpenHands marks every open hand void and returns how many were
	// voided. Called once at startup: in-flight hands from a crashed
	// process never settled, so balances are already whole.
	VoidOpenHands(ctx context.Context) (int, error)

	Close() error
}
