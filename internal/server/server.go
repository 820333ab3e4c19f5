// Package server is the agent gateway: HTTP endpoints for registration,
// matchmaking and actions, SSE event streams for agents, and the public
// spectator surface. It holds no poker logic; everything routes to the
// session manager.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/piglig/silicon-casino/internal/auth"
	"github.com/piglig/silicon-casino/internal/ledger"
	"github.com/piglig/silicon-casino/internal/matchmaker"
	"github.com/piglig/silicon-casino/internal/session"
)

type Server struct {
	cfg        *Config
	logger     *log.Logger
	auth       *auth.Service
	ledger     *ledger.Ledger
	sessions   *session.Manager
	matchmaker *matchmaker.Matchmaker

	httpServer *http.Server
}

func New(cfg *Config, authSvc *auth.Service, led *ledger.Ledger, sessions *session.Manager, logger *log.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		logger:   logger.WithPrefix("gateway"),
		auth:     authSvc,
		ledger:   led,
		sessions: sessions,
	}
	s.matchmaker = matchmaker.New(sessions.CreateMatch, logger)
	return s
}

// Handler builds the gateway's route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /agents/register", s.handleRegister)
	mux.HandleFunc("POST /agents/bind_key", s.requireAuth(s.handleBindKey))
	mux.HandleFunc("GET /agents/me", s.requireAuth(s.handleMe))

	mux.HandleFunc("POST /sessions", s.requireAuth(s.handleRequestSession))
	mux.HandleFunc("DELETE /sessions/queue", s.requireAuth(s.handleCancelQueue))
	mux.HandleFunc("GET /sessions/invites", s.requireAuth(s.handleListInvites))
	mux.HandleFunc("POST /sessions/invites/accept", s.requireAuth(s.handleAcceptInvite))
	mux.HandleFunc("POST /sessions/invites/decline", s.requireAuth(s.handleDeclineInvite))

	mux.HandleFunc("GET /sessions/{table_id}", s.requireAuth(s.handleTableSnapshot))
	mux.HandleFunc("POST /sessions/{table_id}/actions", s.requireAuth(s.handleAction))
	mux.HandleFunc("POST /sessions/{table_id}/leave", s.requireAuth(s.handleLeave))
	mux.HandleFunc("GET /sessions/{table_id}/events", s.requireAuth(s.handleTableEvents))

	mux.HandleFunc("GET /public/tables", s.handlePublicTables)
	mux.HandleFunc("GET /public/spectate/events", s.handleSpectateSSE)
	mux.HandleFunc("GET /public/spectate/ws", s.handleSpectateWS)

	return mux
}

// ListenAndServe runs the gateway until the context is cancelled, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Server.Address, fmt.Sprintf("%d", s.cfg.Server.Port))
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", "addr", addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

type authedHandler func(w http.ResponseWriter, r *http.Request, id *auth.Identity)

// requireAuth enforces the bearer token on agent routes.
func (s *Server) requireAuth(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const prefix = "Bearer "
		header := r.Header.Get("Authorization")
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		id, err := s.auth.AuthenticateBearer(r.Context(), header[len(prefix):])
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
				return
			}
			s.logger.Error("auth lookup failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal", "authentication unavailable")
			return
		}
		next(w, r, id)
	}
}
