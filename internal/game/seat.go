package game

import "github.com/piglig/silicon-casino/poker"

// Seat represents one of the two seats in a heads-up hand. Seats reference
// their agent by id only; session ownership lives in the session manager.
type Seat struct {
	Index     int
	AgentID   string
	Chips     int64
	HoleCards []poker.Card
	Folded    bool
	AllIn     bool
	Bet       int64 // Committed this street
	TotalBet  int64 // Committed this hand
}

// IsActive returns true if the seat can still act
func (s *Seat) IsActive() bool {
	return !s.Folded && !s.AllIn && s.Chips > 0
}

func (s *Seat) commit(amount int64) {
	if amount > s.Chips {
		amount = s.Chips
	}
	s.Chips -= amount
	s.Bet += amount
	s.TotalBet += amount
	if s.Chips == 0 {
		s.AllIn = true
	}
}
