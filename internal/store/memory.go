package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore mirrors the sqlite store's semantics behind a mutex. Used
// in tests and as the default when no database path is configured.
type MemoryStore struct {
	mu          sync.RWMutex
	agents      map[string]*Agent
	balances    map[string]int64
	entries     []LedgerEntry
	settlements map[string]time.Time
	hands       map[string]*HandRecord
	actions     map[string][]Action
}

// Action is the in-memory action journal row. The sqlite store writes
// these to the actions table.
type Action struct {
	AgentID   string
	Action    string
	Amount    int64
	CreatedAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		agents:      make(map[string]*Agent),
		balances:    make(map[string]int64),
		settlements: make(map[string]time.Time),
		hands:       make(map[string]*HandRecord),
		actions:     make(map[string][]Action),
	}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) CreateAgent(_ context.Context, id, name, apiKeyHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[id]; ok {
		return fmt.Errorf("agent %s already exists", id)
	}
	m.agents[id] = &Agent{ID: id, Name: name, APIKeyHash: apiKeyHash, CreatedAt: time.Now().UTC()}
	m.balances[id] = 0
	return nil
}

func (m *MemoryStore) GetAgent(_ context.Context, id string) (*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) Balance(_ context.Context, agentID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	balance, ok := m.balances[agentID]
	if !ok {
		return 0, ErrNotFound
	}
	return balance, nil
}

func (m *MemoryStore) Mint(_ context.Context, agentID string, amount int64, refID string) error {
	if amount <= 0 {
		return fmt.Errorf("mint amount must be positive, got %d", amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.balances[agentID]; !ok {
		return ErrNotFound
	}
	m.balances[agentID] += amount
	m.entries = append(m.entries, LedgerEntry{
		AgentID: agentID, Delta: amount, Reason: "mint", RefID: refID, CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (m *MemoryStore) ApplySettlement(_ context.Context, handID string, entries []LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.settlements[handID]; ok {
		return ErrAlreadySettled
	}
	// Validate everything before mutating anything.
	for _, e := range entries {
		balance, ok := m.balances[e.AgentID]
		if !ok {
			return fmt.Errorf("settle hand %s: agent %s: %w", handID, e.AgentID, ErrNotFound)
		}
		if balance+e.Delta < 0 {
			return fmt.Errorf("settle hand %s: agent %s balance %d delta %d: %w",
				handID, e.AgentID, balance, e.Delta, ErrInsufficientFunds)
		}
	}
	now := time.Now().UTC()
	for _, e := range entries {
		m.balances[e.AgentID] += e.Delta
		reason := e.Reason
		if reason == "" {
			reason = "settlement"
		}
		m.entries = append(m.entries, LedgerEntry{
			AgentID: e.AgentID, Delta: e.Delta, Reason: reason, RefID: handID, CreatedAt: now,
		})
	}
	m.settlements[handID] = now
	if h, ok := m.hands[handID]; ok && h.Status == HandStatusOpen {
		h.Status = HandStatusSettled
		h.EndedAt = now
	}
	return nil
}

func (m *MemoryStore) Entries(_ context.Context, agentID string, limit int) ([]LedgerEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]LedgerEntry, 0, limit)
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if m.entries[i].AgentID == agentID {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

func (m *MemoryStore) OpenHand(_ context.Context, handID, tableID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.hands[handID]; ok {
		return fmt.Errorf("hand %s already exists", handID)
	}
	m.hands[handID] = &HandRecord{
		ID: handID, TableID: tableID, Status: HandStatusOpen, StartedAt: time.Now().UTC(),
	}
	return nil
}

func (m *MemoryStore) RecordAction(_ context.Context, handID, agentID, action string, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions[handID] = append(m.actions[handID], Action{
		AgentID: agentID, Action: action, Amount: amount, CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (m *MemoryStore) VoidOpenHands(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	voided := 0
	for _, h := range m.hands {
		if h.Status == HandStatusOpen {
			h.Status = HandStatusVoid
			h.EndedAt = now
			voided++
		}
	}
	return voided, nil
}
