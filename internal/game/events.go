package game

import (
	"time"

	"github.com/piglig/silicon-casino/poker"
)

// EventType represents a game event type with type safety
type EventType string

const (
	EventTypeHandStarted EventType = "hand_started"
	EventTypeBoardDealt  EventType = "board_dealt"
	EventTypeActionTaken EventType = "action_taken"
	EventTypeHandSettled EventType = "hand_settled"
)

func (et EventType) String() string { return string(et) }

// Event represents any event that occurs during a hand. Events carry full
// information including hole cards; the gateway redacts per audience.
type Event interface {
	EventType() EventType
	Timestamp() time.Time
}

// SeatInfo is the per-seat portion of a hand start event.
type SeatInfo struct {
	Seat      int          `json:"seat"`
	AgentID   string       `json:"agent_id"`
	Stack     int64        `json:"stack"`
	HoleCards []poker.Card `json:"hole_cards,omitempty"`
}

// HandStartedEvent is published when a new hand is dealt.
type HandStartedEvent struct {
	HandID     string     `json:"hand_id"`
	Seats      []SeatInfo `json:"seats"`
	Button     int        `json:"button"`
	SmallBlind int64      `json:"small_blind"`
	BigBlind   int64      `json:"big_blind"`
	At         time.Time  `json:"at"`
}

func (e HandStartedEvent) EventType() EventType { return EventTypeHandStarted }
func (e HandStartedEvent) Timestamp() time.Time { return e.At }

// BoardDealtEvent is published when community cards hit the board.
type BoardDealtEvent struct {
	HandID string       `json:"hand_id"`
	Street string       `json:"street"`
	Cards  []poker.Card `json:"cards"`
	Board  []poker.Card `json:"board"`
	At     time.Time    `json:"at"`
}

func (e BoardDealtEvent) EventType() EventType { return EventTypeBoardDealt }
func (e BoardDealtEvent) Timestamp() time.Time { return e.At }

// ActionTakenEvent is published after a validated action is applied.
// Forced marks timeout-driven auto actions.
type ActionTakenEvent struct {
	HandID  string    `json:"hand_id"`
	Seat    int       `json:"seat"`
	AgentID string    `json:"agent_id"`
	Action  string    `json:"action"`
	Amount  int64     `json:"amount,omitempty"`
	Forced  bool      `json:"forced,omitempty"`
	Pot     int64     `json:"pot"`
	State   string    `json:"state"`
	At      time.Time `json:"at"`
}

func (e ActionTakenEvent) EventType() EventType { return EventTypeActionTaken }
func (e ActionTakenEvent) Timestamp() time.Time { return e.At }

// HandSettledEvent is published once per hand after the ledger has
// accepted the settlement.
type HandSettledEvent struct {
	Settlement *Settlement `json:"settlement"`
	At         time.Time   `json:"at"`
}

func (e HandSettledEvent) EventType() EventType { return EventTypeHandSettled }
func (e HandSettledEvent) Timestamp() time.Time { return e.At }
