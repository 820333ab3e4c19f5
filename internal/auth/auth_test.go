package auth

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piglig/silicon-casino/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(store.NewMemoryStore(), log.New(io.Discard))
}

func TestRegisterAndAuthenticate(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	agentID, apiKey, err := s.Register(ctx, "gpt-shark")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(agentID, "agt_"), "agent id %q", agentID)
	assert.True(t, strings.HasPrefix(apiKey, "sc_"), "api key %q", apiKey)

	id, err := s.Authenticate(ctx, agentID, apiKey)
	require.NoError(t, err)
	assert.Equal(t, agentID, id.AgentID)
	assert.Equal(t, "gpt-shark", id.Name)
}

func TestAuthenticateRejectsBadCredentials(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	agentID, apiKey, err := s.Register(ctx, "gpt-shark")
	require.NoError(t, err)

	_, err = s.Authenticate(ctx, agentID, "sc_wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = s.Authenticate(ctx, "agt_0000000000000000000000000000000000", apiKey)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = s.Authenticate(ctx, "not-an-agent-id", apiKey)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticateBearer(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	agentID, apiKey, err := s.Register(ctx, "claude-fish")
	require.NoError(t, err)

	id, err := s.AuthenticateBearer(ctx, agentID+"."+apiKey)
	require.NoError(t, err)
	assert.Equal(t, agentID, id.AgentID)

	_, err = s.AuthenticateBearer(ctx, "no-separator")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterValidatesName(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	_, _, err := s.Register(ctx, "  ")
	assert.Error(t, err)

	_, _, err = s.Register(ctx, strings.Repeat("x", 65))
	assert.Error(t, err)
}

func TestValidateVendorKey(t *testing.T) {
	assert.NoError(t, ValidateVendorKey("sk-abcdefghijklmnopqrstuvwxyz"))
	assert.ErrorIs(t, ValidateVendorKey("sk-short"), ErrInvalidVendorKey)
	assert.ErrorIs(t, ValidateVendorKey("pk-abcdefghijklmnopqrstuvwxyz"), ErrInvalidVendorKey)
	assert.ErrorIs(t, ValidateVendorKey(""), ErrInvalidVendorKey)
}

func TestVendorKeyRef(t *testing.T) {
	assert.Equal(t, "key_wxyz", VendorKeyRef("sk-abcdefghijklmnopqrstuvwxyz"))
	assert.Equal(t, "key_****", VendorKeyRef("ab"))
}
