package game

import (
	"fmt"

	"github.com/piglig/silicon-casino/poker"
)

// HandConfig carries everything needed to deal one hand.
type HandConfig struct {
	ID         string
	AgentIDs   [2]string
	Stacks     [2]int64
	Button     int // button posts the small blind heads-up
	SmallBlind int64
	BigBlind   int64
	RakeBPS    int
	Deck       *poker.Deck
}

// Hand drives a single heads-up no-limit hold'em hand from blinds to
// settlement. All methods must be called from a single goroutine; the
// session layer serializes access per table.
type Hand struct {
	ID         string
	Seats      [2]*Seat
	Button     int
	State      State
	Board      []poker.Card
	Betting    *BettingRound
	Active     int // seat to act, -1 when none
	SmallBlind int64
	BigBlind   int64
	RakeBPS    int

	deck        *poker.Deck
	startStacks [2]int64
	result      *Settlement
}

// NewHand deals a new hand: posts blinds, deals hole cards and opens the
// preflop betting round with the button (small blind) to act.
func NewHand(cfg HandConfig) (*Hand, error) {
	if cfg.Button != 0 && cfg.Button != 1 {
		return nil, fmt.Errorf("game: button must be seat 0 or 1, got %d", cfg.Button)
	}
	for i, stack := range cfg.Stacks {
		if stack <= 0 {
			return nil, fmt.Errorf("game: seat %d has no chips", i)
		}
	}
	if cfg.SmallBlind <= 0 || cfg.BigBlind <= cfg.SmallBlind {
		return nil, fmt.Errorf("game: invalid blinds %d/%d", cfg.SmallBlind, cfg.BigBlind)
	}

	h := &Hand{
		ID:          cfg.ID,
		Button:      cfg.Button,
		State:       StatePreflop,
		Betting:     NewBettingRound(cfg.BigBlind),
		SmallBlind:  cfg.SmallBlind,
		BigBlind:    cfg.BigBlind,
		RakeBPS:     cfg.RakeBPS,
		deck:        cfg.Deck,
		startStacks: cfg.Stacks,
	}
	for i := 0; i < 2; i++ {
		h.Seats[i] = &Seat{Index: i, AgentID: cfg.AgentIDs[i], Chips: cfg.Stacks[i]}
	}

	// Heads-up: button posts the small blind, the other seat the big blind.
	sb, bb := h.Seats[h.Button], h.Seats[1-h.Button]
	sb.commit(h.SmallBlind)
	bb.commit(h.BigBlind)
	h.Betting.CurrentBet = h.BigBlind

	for i := 0; i < 2; i++ {
		h.Seats[i].HoleCards = h.deck.Deal(2)
	}

	// Button acts first preflop. Blinds can moot the action entirely,
	// e.g. a short-stacked button all-in under the big blind.
	h.Active = h.nextActiveSeat(h.Button)
	if h.Active == -1 || h.bettingMoot() {
		h.runOut()
	}
	return h, nil
}

func (h *Hand) bbSeat() int { return 1 - h.Button }

// Settlement returns the hand result once the hand reaches StateSettled.
func (h *Hand) Settlement() *Settlement {
	return h.result
}

// IsComplete returns true once the hand has been settled.
func (h *Hand) IsComplete() bool {
	return h.State == StateSettled
}

// Apply validates and applies an action by the given seat. Validation is
// atomic: a rejected action returns an error and leaves the hand
// untouched. For Raise the amount is the total bet level to raise to.
func (h *Hand) Apply(seat int, action Action, amount int64) error {
	if err := h.validate(seat, action, amount); err != nil {
		return err
	}

	s := h.Seats[seat]
	h.Betting.Acted[seat] = true
	if h.State == StatePreflop && seat == h.bbSeat() {
		h.Betting.BBActed = true
	}

	switch action {
	case Fold:
		s.Folded = true
		if h.Betting.LastRaiser == seat {
			h.Betting.LastRaiser = -1
		}

	case Check:
		// No chips move.

	case Call:
		s.commit(h.Betting.CurrentBet - s.Bet)

	case Raise:
		s.commit(amount - s.Bet)
		h.Betting.markRaise(seat, s.Bet)
	}

	h.advance(seat)
	return nil
}

// TimeoutAction returns the deterministic action applied on behalf of a
// seat that let its clock run out: check when the bet is already matched,
// otherwise fold. The caller applies it like any other action.
func (h *Hand) TimeoutAction(seat int) (Action, error) {
	if !h.State.IsBetting() {
		return 0, ErrHandNotActive
	}
	if seat != h.Active {
		return 0, ErrNotYourTurn
	}
	if h.Betting.CurrentBet == h.Seats[seat].Bet {
		return Check, nil
	}
	return Fold, nil
}

// validate performs the full check phase; no state is mutated here.
func (h *Hand) validate(seat int, action Action, amount int64) error {
	if !h.State.IsBetting() {
		return ErrHandNotActive
	}
	if seat < 0 || seat > 1 {
		return fmt.Errorf("%w: unknown seat %d", ErrInvalidAction, seat)
	}
	s := h.Seats[seat]
	if s.Folded || s.AllIn {
		return ErrSeatNotActive
	}
	if seat != h.Active {
		return ErrNotYourTurn
	}

	toCall := h.Betting.CurrentBet - s.Bet
	switch action {
	case Fold:
		return nil

	case Check:
		if toCall != 0 {
			return fmt.Errorf("%w: cannot check, %d to call", ErrInvalidAction, toCall)
		}
		return nil

	case Call:
		if toCall <= 0 {
			return fmt.Errorf("%w: nothing to call", ErrInvalidAction)
		}
		return nil

	case Raise:
		allInLevel := s.Chips + s.Bet
		if amount <= h.Betting.CurrentBet {
			return fmt.Errorf("%w: raise to %d must exceed current bet %d", ErrInvalidAction, amount, h.Betting.CurrentBet)
		}
		if amount > allInLevel {
			return fmt.Errorf("%w: raise to %d exceeds stack", ErrInvalidAction, amount)
		}
		// Below the minimum raise is only legal as an all-in.
		if amount < h.Betting.CurrentBet+h.Betting.MinRaise && amount != allInLevel {
			return fmt.Errorf("%w: minimum raise is to %d", ErrInvalidAction, h.Betting.CurrentBet+h.Betting.MinRaise)
		}
		return nil

	default:
		return fmt.Errorf("%w: unknown action", ErrInvalidAction)
	}
}

// advance moves the turn cursor after seat acted and closes the street
// or the hand when nothing is left to do.
func (h *Hand) advance(seat int) {
	if h.foldedOut() {
		h.settle(true)
		return
	}

	h.Active = h.nextActiveSeat(1 - seat)
	if h.Active == -1 || h.Betting.IsComplete(h.Seats, h.State, h.bbSeat()) {
		h.nextStreet()
	}
}

func (h *Hand) foldedOut() bool {
	return h.Seats[0].Folded || h.Seats[1].Folded
}

// nextActiveSeat returns the first seat at or after from that can act.
func (h *Hand) nextActiveSeat(from int) int {
	for i := 0; i < 2; i++ {
		pos := (from + i) % 2
		if s := h.Seats[pos]; !s.Folded && !s.AllIn {
			return pos
		}
	}
	return -1
}

// nextStreet closes the current betting round and deals the next street.
func (h *Hand) nextStreet() {
	for _, s := range h.Seats {
		s.Bet = 0
	}
	h.Betting.ResetForNewStreet()

	switch h.State {
	case StatePreflop:
		h.State = StateFlop
		h.Board = append(h.Board, h.deck.Deal(3)...)
	case StateFlop:
		h.State = StateTurn
		h.Board = append(h.Board, h.deck.Deal(1)...)
	case StateTurn:
		h.State = StateRiver
		h.Board = append(h.Board, h.deck.Deal(1)...)
	case StateRiver:
		h.State = StateShowdown
		h.settle(false)
		return
	default:
		return
	}

	// Non-button seat acts first postflop. With a seat all-in there is
	// nothing left to bet for; keep dealing to showdown.
	h.Active = h.nextActiveSeat(h.bbSeat())
	if h.Active == -1 || h.bettingMoot() {
		h.nextStreet()
	}
}

// bettingMoot reports whether no betting decision remains: at most one
// seat can still act and that seat faces no outstanding bet.
func (h *Hand) bettingMoot() bool {
	var lone *Seat
	for _, s := range h.Seats {
		if s.Folded || s.AllIn {
			continue
		}
		if lone != nil {
			return false
		}
		lone = s
	}
	if lone == nil {
		return true
	}
	return lone.Bet >= h.Betting.CurrentBet
}

// runOut deals the remaining board when blinds alone put both seats
// all-in. nextStreet cascades itself to showdown when no seat can act.
func (h *Hand) runOut() {
	h.nextStreet()
}
