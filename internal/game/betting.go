package game

// State represents the lifecycle state of a hand
type State int

const (
	StateWaitingForPlayers State = iota
	StatePreflop
	StateFlop
	StateTurn
	StateRiver
	StateShowdown
	StateSettled
)

func (s State) String() string {
	return [...]string{"waiting_for_players", "preflop", "flop", "turn", "river", "showdown", "settled"}[s]
}

// IsBetting reports whether seats may act in this state.
func (s State) IsBetting() bool {
	return s >= StatePreflop && s <= StateRiver
}

// Action represents an agent action
type Action int

const (
	Fold Action = iota
	Check
	Call
	Raise
)

func (a Action) String() string {
	return [...]string{"fold", "check", "call", "raise"}[a]
}

// ParseAction maps a wire action name to an Action.
func ParseAction(s string) (Action, bool) {
	switch s {
	case "fold":
		return Fold, true
	case "check":
		return Check, true
	case "call":
		return Call, true
	case "raise":
		return Raise, true
	default:
		return 0, false
	}
}

// BettingRound encapsulates the state for one betting street of a
// heads-up hand.
type BettingRound struct {
	CurrentBet int64
	MinRaise   int64
	LastRaiser int // seat index, -1 when unraised
	BBActed    bool
	Acted      [2]bool
	bigBlind   int64
}

// NewBettingRound creates a new betting round
func NewBettingRound(bigBlind int64) *BettingRound {
	return &BettingRound{
		MinRaise:   bigBlind,
		LastRaiser: -1,
		bigBlind:   bigBlind,
	}
}

// ResetForNewStreet resets betting state between streets. BBActed is
// preserved because the big blind option only matters preflop.
func (br *BettingRound) ResetForNewStreet() {
	br.CurrentBet = 0
	br.MinRaise = br.bigBlind
	br.LastRaiser = -1
	br.Acted = [2]bool{}
}

// markRaise records a raise to the given total bet level by seat.
func (br *BettingRound) markRaise(seat int, to int64) {
	br.MinRaise = to - br.CurrentBet
	br.CurrentBet = to
	br.LastRaiser = seat
	// The opponent must act again.
	br.Acted = [2]bool{}
	br.Acted[seat] = true
}

// IsComplete checks whether betting is closed for the street: every seat
// still able to act has matched the current bet and acted since the last
// raise, with the preflop big-blind option honoured.
func (br *BettingRound) IsComplete(seats [2]*Seat, state State, bbSeat int) bool {
	active := 0
	for _, s := range seats {
		if !s.Folded && !s.AllIn {
			active++
		}
	}
	if active == 0 {
		return true
	}

	for i, s := range seats {
		if s.Folded || s.AllIn {
			continue
		}
		if s.Bet != br.CurrentBet {
			return false
		}
		if !br.Acted[i] {
			return false
		}
	}

	// Preflop the big blind may still raise its own blind.
	if state == StatePreflop && br.LastRaiser == -1 {
		bb := seats[bbSeat]
		if !bb.Folded && !bb.AllIn && !br.BBActed {
			return false
		}
	}

	return true
}
