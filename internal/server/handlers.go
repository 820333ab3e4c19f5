package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/piglig/silicon-casino/internal/auth"
	"github.com/piglig/silicon-casino/internal/game"
	"github.com/piglig/silicon-casino/internal/matchmaker"
	"github.com/piglig/silicon-casino/internal/session"
)

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	var resp errorResponse
	resp.Error.Code = code
	resp.Error.Message = message
	writeJSON(w, status, resp)
}

// writeDomainError maps engine and session errors to wire error codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrStaleState):
		writeError(w, http.StatusConflict, "concurrency_conflict", err.Error())
	case errors.Is(err, game.ErrNotYourTurn):
		writeError(w, http.StatusConflict, "not_your_turn", err.Error())
	case errors.Is(err, game.ErrHandNotActive):
		writeError(w, http.StatusConflict, "hand_not_active", err.Error())
	case errors.Is(err, game.ErrSeatNotActive):
		writeError(w, http.StatusConflict, "seat_not_active", err.Error())
	case errors.Is(err, game.ErrInvalidAction):
		writeError(w, http.StatusBadRequest, "invalid_action", err.Error())
	case errors.Is(err, session.ErrTableNotFound), errors.Is(err, session.ErrTableClosed):
		writeError(w, http.StatusNotFound, "table_not_found", err.Error())
	case errors.Is(err, session.ErrNotSeated):
		writeError(w, http.StatusForbidden, "not_seated", err.Error())
	case errors.Is(err, session.ErrInsufficientBalance):
		writeError(w, http.StatusPaymentRequired, "insufficient_balance", err.Error())
	case errors.Is(err, session.ErrAgentBusy):
		writeError(w, http.StatusConflict, "already_in_session", err.Error())
	case errors.Is(err, matchmaker.ErrTimeout):
		writeError(w, http.StatusRequestTimeout, "matchmaking_timeout", err.Error())
	case errors.Is(err, matchmaker.ErrAlreadyQueued):
		writeError(w, http.StatusConflict, "already_queued", err.Error())
	case errors.Is(err, matchmaker.ErrNoSuchInvite):
		writeError(w, http.StatusNotFound, "no_such_invite", err.Error())
	case errors.Is(err, matchmaker.ErrDeclined):
		writeError(w, http.StatusConflict, "invite_declined", err.Error())
	case errors.Is(err, matchmaker.ErrCancelled):
		writeError(w, http.StatusConflict, "request_cancelled", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON body")
		return false
	}
	return true
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	agentID, apiKey, err := s.auth.Register(r.Context(), req.Name)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"agent_id": agentID,
		"api_key":  apiKey,
	})
}

func (s *Server) handleBindKey(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	var req struct {
		VendorKey string `json:"vendor_key"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := auth.ValidateVendorKey(req.VendorKey); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_vendor_key", "vendor key malformed")
		return
	}
	if err := s.ledger.Mint(r.Context(), id.AgentID, s.cfg.Server.MintPerKey, auth.VendorKeyRef(req.VendorKey)); err != nil {
		s.logger.Error("mint failed", "agent", id.AgentID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "mint failed")
		return
	}
	balance, err := s.ledger.Balance(r.Context(), id.AgentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "balance unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"minted":  s.cfg.Server.MintPerKey,
		"balance": balance,
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	balance, err := s.ledger.Balance(r.Context(), id.AgentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "balance unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"agent_id": id.AgentID,
		"name":     id.Name,
		"balance":  balance,
	})
}

// handleRequestSession blocks until the agent is matched or the
// matchmaking window expires.
func (s *Server) handleRequestSession(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	var req struct {
		Mode   string `json:"mode"`
		Target string `json:"target,omitempty"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	// One table per agent; refuse before queueing.
	if at, ok := s.sessions.AgentTable(id.AgentID); ok {
		writeError(w, http.StatusConflict, "already_in_session",
			fmt.Sprintf("already seated at table %s", at))
		return
	}

	// Refuse before queueing when the agent cannot cover a buy-in.
	balance, err := s.ledger.Balance(r.Context(), id.AgentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "balance unavailable")
		return
	}
	if balance < s.cfg.Table.BuyInMin {
		writeError(w, http.StatusPaymentRequired, "insufficient_balance", "balance below table minimum buy-in")
		return
	}

	timeout := time.Duration(s.cfg.Server.MatchmakingTimeoutSecs) * time.Second
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	var tableID string
	switch matchmaker.Mode(req.Mode) {
	case matchmaker.ModeRandom:
		tableID, err = s.matchmaker.RequestRandom(ctx, id.AgentID)
	case matchmaker.ModeSelect:
		if req.Target == "" {
			writeError(w, http.StatusBadRequest, "bad_request", "select mode requires a target agent id")
			return
		}
		tableID, err = s.matchmaker.Invite(ctx, id.AgentID, req.Target)
	default:
		writeError(w, http.StatusBadRequest, "bad_request", "mode must be random or select")
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"table_id": tableID})
}

func (s *Server) handleCancelQueue(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	s.matchmaker.Cancel(id.AgentID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListInvites(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	invites := s.matchmaker.Invites(id.AgentID)
	if invites == nil {
		invites = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"invites": invites})
}

func (s *Server) handleAcceptInvite(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	var req struct {
		From string `json:"from"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	tableID, err := s.matchmaker.Accept(id.AgentID, req.From)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"table_id": tableID})
}

func (s *Server) handleDeclineInvite(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	var req struct {
		From string `json:"from"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.matchmaker.Decline(id.AgentID, req.From); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTableSnapshot(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	tbl, err := s.sessions.Table(r.PathValue("table_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	snap, err := tbl.Snapshot(id.AgentID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	var req struct {
		Action  string `json:"action"`
		Amount  int64  `json:"amount,omitempty"`
		Version uint64 `json:"version"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	action, ok := game.ParseAction(req.Action)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_action", "action must be fold, check, call or raise")
		return
	}

	tbl, err := s.sessions.Table(r.PathValue("table_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	snap, err := tbl.SubmitAction(id.AgentID, action, req.Amount, req.Version)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	tbl, err := s.sessions.Table(r.PathValue("table_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := tbl.Leave(id.AgentID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePublicTables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tables": s.sessions.List()})
}
