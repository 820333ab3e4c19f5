package ledger

import (
	"context"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piglig/silicon-casino/internal/store"
)

func newTestLedger(t *testing.T) (*Ledger, store.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	l := New(st, log.New(io.Discard))
	require.NoError(t, l.EnsureHouseAccount(context.Background()))
	return l, st
}

func TestMintAndBalance(t *testing.T) {
	l, st := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, st.CreateAgent(ctx, "agt_1", "alice", "h"))

	require.NoError(t, l.Mint(ctx, "agt_1", 1000, "key_abc"))
	balance, err := l.Balance(ctx, "agt_1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)

	assert.Error(t, l.Mint(ctx, "agt_1", 0, "key_abc"))
	assert.ErrorIs(t, l.Mint(ctx, "agt_missing", 100, "key_abc"), ErrUnknownAgent)
}

func TestSettleHand(t *testing.T) {
	l, st := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, st.CreateAgent(ctx, "agt_1", "alice", "h"))
	require.NoError(t, st.CreateAgent(ctx, "agt_2", "bob", "h"))
	require.NoError(t, l.Mint(ctx, "agt_1", 1000, "k"))
	require.NoError(t, l.Mint(ctx, "agt_2", 1000, "k"))

	deltas := []Delta{
		{AgentID: "agt_1", Amount: 99},
		{AgentID: "agt_2", Amount: -100},
	}
	require.NoError(t, l.SettleHand(ctx, "hand_1", deltas, 1))

	b1, _ := l.Balance(ctx, "agt_1")
	b2, _ := l.Balance(ctx, "agt_2")
	house, _ := l.Balance(ctx, HouseAccountID)
	assert.Equal(t, int64(1099), b1)
	assert.Equal(t, int64(900), b2)
	assert.Equal(t, int64(1), house)
}

func TestSettleHandReplayIsNoOp(t *testing.T) {
	l, st := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, st.CreateAgent(ctx, "agt_1", "alice", "h"))
	require.NoError(t, st.CreateAgent(ctx, "agt_2", "bob", "h"))
	require.NoError(t, l.Mint(ctx, "agt_1", 500, "k"))
	require.NoError(t, l.Mint(ctx, "agt_2", 500, "k"))

	deltas := []Delta{
		{AgentID: "agt_1", Amount: 40},
		{AgentID: "agt_2", Amount: -40},
	}
	require.NoError(t, l.SettleHand(ctx, "hand_1", deltas, 0))
	require.NoError(t, l.SettleHand(ctx, "hand_1", deltas, 0), "replay must succeed")

	b1, _ := l.Balance(ctx, "agt_1")
	assert.Equal(t, int64(540), b1, "replay must not move balances")
}

func TestSettleHandRejectsUnbalancedDeltas(t *testing.T) {
	l, st := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, st.CreateAgent(ctx, "agt_1", "alice", "h"))
	require.NoError(t, l.Mint(ctx, "agt_1", 500, "k"))

	err := l.SettleHand(ctx, "hand_1", []Delta{{AgentID: "agt_1", Amount: 10}}, 0)
	require.Error(t, err)

	b1, _ := l.Balance(ctx, "agt_1")
	assert.Equal(t, int64(500), b1)
}

func TestSettleHandInsufficientFunds(t *testing.T) {
	l, st := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, st.CreateAgent(ctx, "agt_1", "alice", "h"))
	require.NoError(t, st.CreateAgent(ctx, "agt_2", "bob", "h"))
	require.NoError(t, l.Mint(ctx, "agt_1", 100, "k"))
	require.NoError(t, l.Mint(ctx, "agt_2", 10, "k"))

	deltas := []Delta{
		{AgentID: "agt_1", Amount: 50},
		{AgentID: "agt_2", Amount: -50},
	}
	assert.ErrorIs(t, l.SettleHand(ctx, "hand_1", deltas, 0), ErrInsufficientFunds)
}
