// Package session manages the live tables: seating, action routing,
// turn deadlines, settlement ordering and the event streams agents and
// spectators consume.
package session

import (
	"context"
	"fmt"
	rand "math/rand/v2"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/piglig/silicon-casino/internal/gameid"
	"github.com/piglig/silicon-casino/internal/ledger"
	"github.com/piglig/silicon-casino/internal/randutil"
	"github.com/piglig/silicon-casino/internal/store"
)

// Config holds the table rules every hand at this arena plays under.
type Config struct {
	SmallBlind  int64
	BigBlind    int64
	MinBuyIn    int64
	MaxBuyIn    int64
	RakeBPS     int
	TurnTimeout time.Duration
}

// TableInfo is the public listing entry for one live table.
type TableInfo struct {
	TableID    string   `json:"table_id"`
	Agents     []string `json:"agents"`
	Stacks     []int64  `json:"stacks"`
	HandNum    int      `json:"hand_num"`
	State      string   `json:"state"`
	SmallBlind int64    `json:"small_blind"`
	BigBlind   int64    `json:"big_blind"`
}

// Manager is the table registry.
type Manager struct {
	cfg        Config
	store      store.Store
	ledger     *ledger.Ledger
	clock      quartz.Clock
	logger     *log.Logger
	seed       func() int64
	spectators *Broadcaster

	mu      sync.RWMutex
	tables  map[string]*Table
	playing map[string]string // agent id -> table id
}

func NewManager(cfg Config, st store.Store, led *ledger.Ledger, clock quartz.Clock, logger *log.Logger) *Manager {
	return &Manager{
		cfg:        cfg,
		store:      st,
		ledger:     led,
		clock:      clock,
		logger:     logger.WithPrefix("session"),
		seed:       randutil.CryptoSeed,
		spectators: NewBroadcaster(),
		tables:     make(map[string]*Table),
		playing:    make(map[string]string),
	}
}

// SetSeedFunc overrides deck seeding. Tests inject fixed seeds for
// replayable hands.
func (m *Manager) SetSeedFunc(fn func() int64) { m.seed = fn }

func (m *Manager) newRand() *rand.Rand { return randutil.New(m.seed()) }

// Recover voids hands left open by a previous process. Those hands
// never settled, so every balance is already whole; voiding just closes
// the journal. Called once before the gateway starts serving.
func (m *Manager) Recover(ctx context.Context) error {
	voided, err := m.store.VoidOpenHands(ctx)
	if err != nil {
		return err
	}
	if voided > 0 {
		m.logger.Warn("voided hands left open by previous run", "count", voided)
	}
	return nil
}

// CreateTable registers an empty table and starts its loop.
func (m *Manager) CreateTable() *Table {
	t := newTable(gameid.New(gameid.KindTable), m)
	m.mu.Lock()
	m.tables[t.ID] = t
	m.mu.Unlock()
	go t.run()
	m.logger.Info("table created", "table", t.ID)
	return t
}

// CreateMatch builds a table and seats both agents. Used as the
// matchmaker's table factory; a seating failure tears the table down.
// Both agents are claimed up front: an agent holds at most one seat
// arena-wide, since a stake caps exposure per seat and a second seat
// would let total stakes exceed the balance.
func (m *Manager) CreateMatch(agentA, agentB string) (string, error) {
	t := m.CreateTable()
	if err := m.claimAgents(t.ID, agentA, agentB); err != nil {
		_ = t.do(t.close)
		return "", err
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := t.SeatAgent(ctx, agentA); err != nil {
		_ = t.do(t.close)
		m.releaseAgents(t.ID, agentA, agentB)
		return "", err
	}
	if err := t.SeatAgent(ctx, agentB); err != nil {
		_ = t.Leave(agentA)
		m.releaseAgents(t.ID, agentA, agentB)
		return "", err
	}
	return t.ID, nil
}

// AgentTable returns the table the agent currently has a seat at.
func (m *Manager) AgentTable(agentID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.playing[agentID]
	return id, ok
}

// claimAgents reserves the agents for the given table, failing when any
// of them already holds a seat elsewhere.
func (m *Manager) claimAgents(tableID string, agentIDs ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range agentIDs {
		if at, ok := m.playing[id]; ok {
			return fmt.Errorf("%w: agent %s is at table %s", ErrAgentBusy, id, at)
		}
	}
	for _, id := range agentIDs {
		m.playing[id] = tableID
	}
	return nil
}

// releaseAgents drops the agents' claims. The table id guards against
// releasing a claim that has since moved to a newer table.
func (m *Manager) releaseAgents(tableID string, agentIDs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range agentIDs {
		if m.playing[id] == tableID {
			delete(m.playing, id)
		}
	}
}

// Table looks up a live table by id.
func (m *Manager) Table(id string) (*Table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tables[id]
	if !ok {
		return nil, ErrTableNotFound
	}
	return t, nil
}

// List returns the public table listing.
func (m *Manager) List() []TableInfo {
	m.mu.RLock()
	tables := make([]*Table, 0, len(m.tables))
	for _, t := range m.tables {
		tables = append(tables, t)
	}
	m.mu.RUnlock()

	infos := make([]TableInfo, 0, len(tables))
	for _, t := range tables {
		snap, err := t.Snapshot("")
		if err != nil {
			continue // closed while listing
		}
		info := TableInfo{
			TableID:    snap.TableID,
			HandNum:    snap.HandNum,
			State:      snap.State,
			SmallBlind: snap.SmallBlind,
			BigBlind:   snap.BigBlind,
		}
		for _, s := range snap.Seats {
			info.Agents = append(info.Agents, s.AgentID)
			info.Stacks = append(info.Stacks, s.Stack)
		}
		infos = append(infos, info)
	}
	return infos
}

// SubscribeSpectator returns the redaction-pending firehose of every
// table's events. The gateway strips hole cards before serving it.
func (m *Manager) SubscribeSpectator(buffer int) (<-chan Event, func()) {
	return m.spectators.Subscribe(buffer)
}

func (m *Manager) removeTable(id string) {
	m.mu.Lock()
	delete(m.tables, id)
	m.mu.Unlock()
}

// Shutdown closes every table. In-flight hands stay open in the journal
// and are voided by Recover on the next start.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	tables := make([]*Table, 0, len(m.tables))
	for _, t := range m.tables {
		tables = append(tables, t)
	}
	m.mu.Unlock()

	for _, t := range tables {
		_ = t.do(t.close)
	}
	m.spectators.Close()
}
