package server

import (
	"github.com/piglig/silicon-casino/internal/game"
	"github.com/piglig/silicon-casino/internal/session"
)

// redactEvent strips hole cards the viewer is not entitled to see. Table
// events carry full information; agents see only their own cards and
// spectators see none. Folded hands are never revealed; hands reaching
// showdown are revealed to everyone via the settlement's seat results,
// which pass through unredacted.
func redactEvent(ev session.Event, viewer string) session.Event {
	started, ok := ev.Payload.(game.HandStartedEvent)
	if !ok {
		return ev
	}

	seats := make([]game.SeatInfo, len(started.Seats))
	for i, seat := range started.Seats {
		if seat.AgentID != viewer {
			seat.HoleCards = nil
		}
		seats[i] = seat
	}
	started.Seats = seats
	ev.Payload = started
	return ev
}
