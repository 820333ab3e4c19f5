package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Every implementation runs the same conformance suite.
func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore())
	})
	t.Run("sqlite", func(t *testing.T) {
		s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "arena.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		fn(t, s)
	})
}

func TestAgentLifecycle(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		require.NoError(t, s.CreateAgent(ctx, "agt_1", "alice", "hash-a"))

		a, err := s.GetAgent(ctx, "agt_1")
		require.NoError(t, err)
		assert.Equal(t, "alice", a.Name)
		assert.Equal(t, "hash-a", a.APIKeyHash)

		_, err = s.GetAgent(ctx, "agt_missing")
		assert.ErrorIs(t, err, ErrNotFound)

		// New agents start with an empty account.
		balance, err := s.Balance(ctx, "agt_1")
		require.NoError(t, err)
		assert.Equal(t, int64(0), balance)

		assert.Error(t, s.CreateAgent(ctx, "agt_1", "alice2", "hash-b"), "duplicate id must fail")
	})
}

func TestMint(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.CreateAgent(ctx, "agt_1", "alice", "h"))

		require.NoError(t, s.Mint(ctx, "agt_1", 1000, "key_1"))
		require.NoError(t, s.Mint(ctx, "agt_1", 500, "key_1"))

		balance, err := s.Balance(ctx, "agt_1")
		require.NoError(t, err)
		assert.Equal(t, int64(1500), balance)

		assert.Error(t, s.Mint(ctx, "agt_1", 0, "key_1"))
		assert.Error(t, s.Mint(ctx, "agt_1", -5, "key_1"))
		assert.ErrorIs(t, s.Mint(ctx, "agt_missing", 100, "key_1"), ErrNotFound)

		entries, err := s.Entries(ctx, "agt_1", 10)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "mint", entries[0].Reason)
		assert.Equal(t, int64(500), entries[0].Delta, "entries are newest first")
	})
}

func TestApplySettlement(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.CreateAgent(ctx, "agt_1", "alice", "h"))
		require.NoError(t, s.CreateAgent(ctx, "agt_2", "bob", "h"))
		require.NoError(t, s.CreateAgent(ctx, "agt_house", "house", "h"))
		require.NoError(t, s.Mint(ctx, "agt_1", 1000, "k"))
		require.NoError(t, s.Mint(ctx, "agt_2", 1000, "k"))

		require.NoError(t, s.OpenHand(ctx, "hand_1", "tbl_1"))

		entries := []LedgerEntry{
			{AgentID: "agt_1", Delta: 99},
			{AgentID: "agt_2", Delta: -100},
			{AgentID: "agt_house", Delta: 1, Reason: "rake"},
		}
		require.NoError(t, s.ApplySettlement(ctx, "hand_1", entries))

		b1, _ := s.Balance(ctx, "agt_1")
		b2, _ := s.Balance(ctx, "agt_2")
		bh, _ := s.Balance(ctx, "agt_house")
		assert.Equal(t, int64(1099), b1)
		assert.Equal(t, int64(900), b2)
		assert.Equal(t, int64(1), bh)
	})
}

func TestApplySettlementIdempotent(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.CreateAgent(ctx, "agt_1", "alice", "h"))
		require.NoError(t, s.CreateAgent(ctx, "agt_2", "bob", "h"))
		require.NoError(t, s.Mint(ctx, "agt_1", 1000, "k"))
		require.NoError(t, s.Mint(ctx, "agt_2", 1000, "k"))

		entries := []LedgerEntry{
			{AgentID: "agt_1", Delta: 50},
			{AgentID: "agt_2", Delta: -50},
		}
		require.NoError(t, s.ApplySettlement(ctx, "hand_1", entries))

		// Replay must not move any balance.
		err := s.ApplySettlement(ctx, "hand_1", entries)
		assert.ErrorIs(t, err, ErrAlreadySettled)

		b1, _ := s.Balance(ctx, "agt_1")
		b2, _ := s.Balance(ctx, "agt_2")
		assert.Equal(t, int64(1050), b1)
		assert.Equal(t, int64(950), b2)
	})
}

func TestApplySettlementRejectsOverdraft(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.CreateAgent(ctx, "agt_1", "alice", "h"))
		require.NoError(t, s.CreateAgent(ctx, "agt_2", "bob", "h"))
		require.NoError(t, s.Mint(ctx, "agt_1", 100, "k"))
		require.NoError(t, s.Mint(ctx, "agt_2", 30, "k"))

		entries := []LedgerEntry{
			{AgentID: "agt_1", Delta: 50},
			{AgentID: "agt_2", Delta: -50},
		}
		err := s.ApplySettlement(ctx, "hand_1", entries)
		assert.ErrorIs(t, err, ErrInsufficientFunds)

		// The whole settlement rolls back, including the winner's credit.
		b1, _ := s.Balance(ctx, "agt_1")
		b2, _ := s.Balance(ctx, "agt_2")
		assert.Equal(t, int64(100), b1)
		assert.Equal(t, int64(30), b2)

		// The hand is still open and a corrected settlement can land.
		require.NoError(t, s.ApplySettlement(ctx, "hand_1", []LedgerEntry{
			{AgentID: "agt_1", Delta: 30},
			{AgentID: "agt_2", Delta: -30},
		}))
	})
}

func TestVoidOpenHands(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.CreateAgent(ctx, "agt_1", "alice", "h"))
		require.NoError(t, s.CreateAgent(ctx, "agt_2", "bob", "h"))
		require.NoError(t, s.Mint(ctx, "agt_1", 100, "k"))
		require.NoError(t, s.Mint(ctx, "agt_2", 100, "k"))

		require.NoError(t, s.OpenHand(ctx, "hand_open", "tbl_1"))
		require.NoError(t, s.OpenHand(ctx, "hand_done", "tbl_1"))
		require.NoError(t, s.ApplySettlement(ctx, "hand_done", []LedgerEntry{
			{AgentID: "agt_1", Delta: 10},
			{AgentID: "agt_2", Delta: -10},
		}))

		voided, err := s.VoidOpenHands(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, voided, "settled hands stay settled")

		// Voiding never touches balances. The stakes were never debited,
		// so there is nothing to refund.
		b1, _ := s.Balance(ctx, "agt_1")
		assert.Equal(t, int64(110), b1)
	})
}

func TestRecordAction(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.OpenHand(ctx, "hand_1", "tbl_1"))
		require.NoError(t, s.RecordAction(ctx, "hand_1", "agt_1", "raise", 60))
		require.NoError(t, s.RecordAction(ctx, "hand_1", "agt_2", "fold", 0))
	})
}
