package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/piglig/silicon-casino/internal/auth"
	"github.com/piglig/silicon-casino/internal/session"
)

const (
	streamBuffer      = 256
	heartbeatInterval = 15 * time.Second

	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Spectator feed is public and read-only.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleTableEvents streams a table's events to a seated agent over
// SSE, redacted to that agent's view.
func (s *Server) handleTableEvents(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	tbl, err := s.sessions.Table(r.PathValue("table_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if _, err := tbl.Snapshot(id.AgentID); err != nil {
		writeDomainError(w, err)
		return
	}

	ch, unsub := tbl.Subscribe(streamBuffer)
	defer unsub()
	s.serveSSE(w, r, ch, id.AgentID)
}

// handleSpectateSSE streams every table's events with all hole cards
// redacted.
func (s *Server) handleSpectateSSE(w http.ResponseWriter, r *http.Request) {
	ch, unsub := s.sessions.SubscribeSpectator(streamBuffer)
	defer unsub()
	s.serveSSE(w, r, ch, "")
}

func (s *Server) serveSSE(w http.ResponseWriter, r *http.Request, ch <-chan session.Event, viewer string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			// Comment lines keep intermediaries from closing idle streams.
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case ev, open := <-ch:
			if !open {
				return
			}
			ev = redactEvent(ev, viewer)
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Error("failed to encode event", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\nid: %d\ndata: %s\n\n", ev.Payload.EventType(), ev.Seq, data)
			flusher.Flush()
		}
	}
}

// handleSpectateWS mirrors the spectator feed over a websocket for the
// web UI.
func (s *Server) handleSpectateWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch, unsub := s.sessions.SubscribeSpectator(streamBuffer)
	defer unsub()

	// Reader goroutine: consume control frames, notice disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(heartbeatInterval)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case ev, open := <-ch:
			if !open {
				return
			}
			ev = redactEvent(ev, "")
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}
