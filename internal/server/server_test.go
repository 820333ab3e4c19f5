package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piglig/silicon-casino/internal/auth"
	"github.com/piglig/silicon-casino/internal/ledger"
	"github.com/piglig/silicon-casino/internal/session"
	"github.com/piglig/silicon-casino/internal/store"
)

type testEnv struct {
	t      *testing.T
	srv    *httptest.Server
	gw     *Server
	ledger *ledger.Ledger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := log.New(io.Discard)
	st := store.NewMemoryStore()
	led := ledger.New(st, logger)
	require.NoError(t, led.EnsureHouseAccount(context.Background()))
	authSvc := auth.NewService(st, logger)

	cfg := DefaultConfig()
	cfg.Server.MatchmakingTimeoutSecs = 2
	cfg.Table.BuyInMin = 500
	cfg.Table.BuyInMax = 5000

	sessions := session.NewManager(session.Config{
		SmallBlind:  cfg.Table.SmallBlind,
		BigBlind:    cfg.Table.BigBlind,
		MinBuyIn:    cfg.Table.BuyInMin,
		MaxBuyIn:    cfg.Table.BuyInMax,
		RakeBPS:     cfg.Table.RakeBPS,
		TurnTimeout: time.Duration(cfg.Server.TurnTimeoutSecs) * time.Second,
	}, st, led, quartz.NewMock(t), logger)
	sessions.SetSeedFunc(func() int64 { return 7 })
	t.Cleanup(sessions.Shutdown)

	gw := New(cfg, authSvc, led, sessions, logger)
	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(srv.Close)

	return &testEnv{t: t, srv: srv, gw: gw, ledger: led}
}

func (e *testEnv) request(method, path, token string, body any) (*http.Response, map[string]any) {
	e.t.Helper()
	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(e.t, err)
		buf = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, buf)
	require.NoError(e.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(e.t, err)

	var decoded map[string]any
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &decoded)
	}
	return resp, decoded
}

// registerAgent registers and funds an agent, returning its bearer token.
func (e *testEnv) registerAgent(name string) (agentID, token string) {
	e.t.Helper()
	resp, body := e.request(http.MethodPost, "/agents/register", "", map[string]string{"name": name})
	require.Equal(e.t, http.StatusCreated, resp.StatusCode)
	agentID = body["agent_id"].(string)
	token = agentID + "." + body["api_key"].(string)

	resp, _ = e.request(http.MethodPost, "/agents/bind_key", token,
		map[string]string{"vendor_key": "sk-test-0123456789abcdef"})
	require.Equal(e.t, http.StatusOK, resp.StatusCode)
	return agentID, token
}

// match pairs two agents through random matchmaking.
func (e *testEnv) match(tokenA, tokenB string) string {
	e.t.Helper()
	type matched struct {
		tableID string
		status  int
	}
	ch := make(chan matched, 1)
	go func() {
		resp, body := e.request(http.MethodPost, "/sessions", tokenA, map[string]string{"mode": "random"})
		id, _ := body["table_id"].(string)
		ch <- matched{tableID: id, status: resp.StatusCode}
	}()

	var tableID string
	require.Eventually(e.t, func() bool {
		resp, body := e.request(http.MethodPost, "/sessions", tokenB, map[string]string{"mode": "random"})
		if resp.StatusCode != http.StatusOK {
			return false
		}
		tableID = body["table_id"].(string)
		return true
	}, 3*time.Second, 10*time.Millisecond)

	first := <-ch
	require.Equal(e.t, http.StatusOK, first.status)
	require.Equal(e.t, first.tableID, tableID, "both agents join the same table")
	return tableID
}

func TestRegisterBindKeyAndMe(t *testing.T) {
	e := newTestEnv(t)

	resp, body := e.request(http.MethodPost, "/agents/register", "", map[string]string{"name": "gpt-shark"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	agentID := body["agent_id"].(string)
	apiKey := body["api_key"].(string)
	assert.True(t, strings.HasPrefix(agentID, "agt_"))
	assert.NotEmpty(t, apiKey)

	token := agentID + "." + apiKey
	resp, body = e.request(http.MethodPost, "/agents/bind_key", token,
		map[string]string{"vendor_key": "sk-test-0123456789abcdef"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(10000), body["balance"])

	resp, body = e.request(http.MethodGet, "/agents/me", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, agentID, body["agent_id"])
	assert.Equal(t, "gpt-shark", body["name"])
	assert.Equal(t, float64(10000), body["balance"])
}

func TestBindKeyRejectsMalformedVendorKey(t *testing.T) {
	e := newTestEnv(t)
	agentID, token := e.registerAgent("claude-fish")
	_ = agentID

	resp, body := e.request(http.MethodPost, "/agents/bind_key", token,
		map[string]string{"vendor_key": "not-a-key"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "invalid_vendor_key", errObj["code"])
}

func TestAuthRequired(t *testing.T) {
	e := newTestEnv(t)

	resp, _ := e.request(http.MethodGet, "/agents/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = e.request(http.MethodGet, "/agents/me", "agt_bogus.sc_bogus", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSessionLifecycle(t *testing.T) {
	e := newTestEnv(t)
	agentA, tokenA := e.registerAgent("gpt-shark")
	agentB, tokenB := e.registerAgent("claude-fish")

	tableID := e.match(tokenA, tokenB)

	// Snapshot redaction: each agent sees only its own hole cards.
	resp, body := e.request(http.MethodGet, "/sessions/"+tableID, tokenA, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "preflop", body["state"])
	seats := body["seats"].([]any)
	require.Len(t, seats, 2)
	for _, raw := range seats {
		seat := raw.(map[string]any)
		_, hasCards := seat["hole_cards"]
		if seat["agent_id"] == agentA {
			assert.True(t, hasCards, "own cards visible")
		} else {
			assert.False(t, hasCards, "opponent cards hidden")
		}
	}

	toAct := body["to_act"].(string)
	version := uint64(body["version"].(float64))
	actingToken := tokenA
	waitingToken := tokenB
	if toAct == agentB {
		actingToken, waitingToken = tokenB, tokenA
	}

	// Out of turn is a conflict, not a state change.
	resp, body = e.request(http.MethodPost, "/sessions/"+tableID+"/actions", waitingToken,
		map[string]any{"action": "call", "version": version})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "not_your_turn", body["error"].(map[string]any)["code"])

	// Stale version is a concurrency conflict.
	resp, body = e.request(http.MethodPost, "/sessions/"+tableID+"/actions", actingToken,
		map[string]any{"action": "call", "version": version + 10})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "concurrency_conflict", body["error"].(map[string]any)["code"])

	// A valid call against the right version succeeds.
	resp, body = e.request(http.MethodPost, "/sessions/"+tableID+"/actions", actingToken,
		map[string]any{"action": "call", "version": version})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Greater(t, body["version"].(float64), float64(version))

	// Malformed action name.
	resp, body = e.request(http.MethodPost, "/sessions/"+tableID+"/actions", actingToken,
		map[string]any{"action": "allin", "version": version})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_action", body["error"].(map[string]any)["code"])
}

func TestLeaveTearsDownTable(t *testing.T) {
	e := newTestEnv(t)
	_, tokenA := e.registerAgent("gpt-shark")
	_, tokenB := e.registerAgent("claude-fish")
	tableID := e.match(tokenA, tokenB)

	resp, _ := e.request(http.MethodPost, "/sessions/"+tableID+"/leave", tokenA, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body := e.request(http.MethodGet, "/sessions/"+tableID, tokenB, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "table_not_found", body["error"].(map[string]any)["code"])
}

func TestPublicTables(t *testing.T) {
	e := newTestEnv(t)
	_, tokenA := e.registerAgent("gpt-shark")
	_, tokenB := e.registerAgent("claude-fish")
	tableID := e.match(tokenA, tokenB)

	resp, body := e.request(http.MethodGet, "/public/tables", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tables := body["tables"].([]any)
	require.Len(t, tables, 1)
	entry := tables[0].(map[string]any)
	assert.Equal(t, tableID, entry["table_id"])
	assert.Len(t, entry["agents"], 2)
}

func TestMatchmakingTimeout(t *testing.T) {
	e := newTestEnv(t)
	_, token := e.registerAgent("gpt-shark")

	start := time.Now()
	resp, body := e.request(http.MethodPost, "/sessions", token, map[string]string{"mode": "random"})
	assert.Equal(t, http.StatusRequestTimeout, resp.StatusCode)
	assert.Equal(t, "matchmaking_timeout", body["error"].(map[string]any)["code"])
	assert.GreaterOrEqual(t, time.Since(start), 2*time.Second)
}

func TestSessionRequiresFunds(t *testing.T) {
	e := newTestEnv(t)

	// Registered but never bound a key: zero balance.
	resp, body := e.request(http.MethodPost, "/agents/register", "", map[string]string{"name": "broke-bot"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	token := body["agent_id"].(string) + "." + body["api_key"].(string)

	resp, body = e.request(http.MethodPost, "/sessions", token, map[string]string{"mode": "random"})
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, "insufficient_balance", body["error"].(map[string]any)["code"])
}

func TestSecondSessionWhileSeatedRejected(t *testing.T) {
	e := newTestEnv(t)
	_, tokenA := e.registerAgent("gpt-shark")
	_, tokenB := e.registerAgent("claude-fish")
	e.match(tokenA, tokenB)

	// A seated agent cannot queue for another table.
	resp, body := e.request(http.MethodPost, "/sessions", tokenA, map[string]string{"mode": "random"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "already_in_session", errCode(body))
}

func TestInviteFlow(t *testing.T) {
	e := newTestEnv(t)
	agentA, tokenA := e.registerAgent("gpt-shark")
	agentB, tokenB := e.registerAgent("claude-fish")

	type reply struct {
		status  int
		tableID string
	}
	ch := make(chan reply, 1)
	go func() {
		resp, body := e.request(http.MethodPost, "/sessions", tokenA,
			map[string]string{"mode": "select", "target": agentB})
		id, _ := body["table_id"].(string)
		ch <- reply{status: resp.StatusCode, tableID: id}
	}()

	// The target sees the invite once it lands.
	require.Eventually(t, func() bool {
		resp, body := e.request(http.MethodGet, "/sessions/invites", tokenB, nil)
		if resp.StatusCode != http.StatusOK {
			return false
		}
		invites := body["invites"].([]any)
		return len(invites) == 1 && invites[0] == agentA
	}, 3*time.Second, 10*time.Millisecond)

	resp, body := e.request(http.MethodPost, "/sessions/invites/accept", tokenB,
		map[string]string{"from": agentA})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tableID := body["table_id"].(string)

	inviter := <-ch
	assert.Equal(t, http.StatusOK, inviter.status)
	assert.Equal(t, tableID, inviter.tableID)
}

func TestInviteDecline(t *testing.T) {
	e := newTestEnv(t)
	agentA, tokenA := e.registerAgent("gpt-shark")
	agentB, tokenB := e.registerAgent("claude-fish")

	type reply struct {
		status int
		code   string
	}
	ch := make(chan reply, 1)
	go func() {
		resp, body := e.request(http.MethodPost, "/sessions", tokenA,
			map[string]string{"mode": "select", "target": agentB})
		ch <- reply{status: resp.StatusCode, code: errCode(body)}
	}()

	require.Eventually(t, func() bool {
		_, body := e.request(http.MethodGet, "/sessions/invites", tokenB, nil)
		invites, _ := body["invites"].([]any)
		return len(invites) == 1
	}, 3*time.Second, 10*time.Millisecond)

	resp, _ := e.request(http.MethodPost, "/sessions/invites/decline", tokenB,
		map[string]string{"from": agentA})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	inviter := <-ch
	assert.Equal(t, http.StatusConflict, inviter.status)
	assert.Equal(t, "invite_declined", inviter.code)
}

func errCode(body map[string]any) string {
	errObj, ok := body["error"].(map[string]any)
	if !ok {
		return ""
	}
	code, _ := errObj["code"].(string)
	return code
}
