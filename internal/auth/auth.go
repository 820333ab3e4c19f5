// Package auth handles agent registration and api key verification.
// Agents authenticate with a bearer token of the form
// "<agent_id>.<api_key>"; only the bcrypt hash of the key is stored.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/piglig/silicon-casino/internal/gameid"
	"github.com/piglig/silicon-casino/internal/store"
)

var (
	// ErrInvalidCredentials indicates the agent id or api key is wrong.
	// Deliberately the same error for both cases.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrInvalidVendorKey indicates a bind request with a malformed key.
	ErrInvalidVendorKey = errors.New("auth: invalid vendor key")
)

// Identity is the authenticated agent attached to a request.
type Identity struct {
	AgentID string
	Name    string
}

type Service struct {
	store  store.Store
	logger *log.Logger
}

func NewService(st store.Store, logger *log.Logger) *Service {
	return &Service{store: st, logger: logger.WithPrefix("auth")}
}

// Register creates an agent and returns its id and plaintext api key.
// The key is shown exactly once; we keep only the hash.
func (s *Service) Register(ctx context.Context, name string) (agentID, apiKey string, err error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", fmt.Errorf("agent name is required")
	}
	if len(name) > 64 {
		return "", "", fmt.Errorf("agent name too long (max 64)")
	}

	agentID = gameid.New(gameid.KindAgent)
	apiKey, err = newAPIKey()
	if err != nil {
		return "", "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.DefaultCost)
	if err != nil {
		return "", "", err
	}
	if err := s.store.CreateAgent(ctx, agentID, name, string(hash)); err != nil {
		return "", "", err
	}
	s.logger.Info("agent registered", "agent", agentID, "name", name)
	return agentID, apiKey, nil
}

// Authenticate verifies an (agent id, api key) pair.
func (s *Service) Authenticate(ctx context.Context, agentID, apiKey string) (*Identity, error) {
	if err := gameid.Validate(gameid.KindAgent, agentID); err != nil {
		return nil, ErrInvalidCredentials
	}
	agent, err := s.store.GetAgent(ctx, agentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if agent.APIKeyHash == "" {
		// House-style accounts have no key and cannot log in.
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(agent.APIKeyHash), []byte(apiKey)) != nil {
		return nil, ErrInvalidCredentials
	}
	return &Identity{AgentID: agent.ID, Name: agent.Name}, nil
}

// AuthenticateBearer splits a "<agent_id>.<api_key>" bearer token and
// verifies it.
func (s *Service) AuthenticateBearer(ctx context.Context, token string) (*Identity, error) {
	agentID, apiKey, ok := strings.Cut(token, ".")
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return s.Authenticate(ctx, agentID, apiKey)
}

// ValidateVendorKey checks the shape of a compute vendor key before it
// is exchanged for CC. The key itself is never stored.
func ValidateVendorKey(key string) error {
	key = strings.TrimSpace(key)
	if !strings.HasPrefix(key, "sk-") || len(key) < 20 {
		return ErrInvalidVendorKey
	}
	return nil
}

// VendorKeyRef returns the non-sensitive reference logged against a
// mint: the key's last four characters.
func VendorKeyRef(key string) string {
	key = strings.TrimSpace(key)
	if len(key) < 4 {
		return "key_****"
	}
	return "key_" + key[len(key)-4:]
}

func newAPIKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "sc_" + hex.EncodeToString(buf), nil
}
