package game

import "github.com/piglig/silicon-casino/poker"

// PotResult records how one pot tier was resolved.
type PotResult struct {
	Amount  int64 `json:"amount"`
	Rake    int64 `json:"rake"`
	Winners []int `json:"winners"` // seat indexes, pot split equally among them
}

// SeatResult is the per-seat outcome of a settled hand. HoleCards are
// populated only for seats revealed at showdown; folded hands stay
// hidden forever.
type SeatResult struct {
	Seat      int          `json:"seat"`
	AgentID   string       `json:"agent_id"`
	Delta     int64        `json:"delta"` // net CC change for the hand
	Won       int64        `json:"won"`   // total awarded from pots
	Folded    bool         `json:"folded"`
	Revealed  bool         `json:"revealed"` // hole cards shown at showdown
	HoleCards []poker.Card `json:"hole_cards,omitempty"`
	HandDesc  string       `json:"hand_desc,omitempty"`
}

// Settlement is the terminal result of a hand. The chip-conservation
// invariant holds: the seat deltas sum to exactly -Rake.
type Settlement struct {
	HandID      string        `json:"hand_id"`
	Uncontested bool          `json:"uncontested"`
	Board       []poker.Card  `json:"board"`
	Pots        []PotResult   `json:"pots"`
	Rake        int64         `json:"rake"`
	Results     [2]SeatResult `json:"results"`
}

// settle resolves the hand: layers pots, determines winners (by fold or
// by evaluation), takes rake from contested pots and records per-seat
// deltas. Odd chips on split pots go to the earliest eligible seat in
// seat order.
func (h *Hand) settle(uncontested bool) {
	pots := BuildPots(h.Seats)

	showdown := !uncontested
	var ranks [2]poker.HandRank
	if showdown {
		for i, s := range h.Seats {
			if !s.Folded {
				ranks[i] = poker.Evaluate(append(append([]poker.Card{}, s.HoleCards...), h.Board...))
			}
		}
	}

	settlement := &Settlement{
		HandID:      h.ID,
		Uncontested: uncontested,
		Board:       h.Board,
	}

	for _, pot := range pots {
		result := PotResult{Amount: pot.Amount}

		winners := pot.Eligible
		if len(winners) == 0 {
			// Unreachable heads-up, but never burn chips.
			winners = pot.Contributors
		}
		if showdown && len(winners) > 1 {
			winners = bestSeats(winners, ranks)
		}

		// Rake only applies to contested tiers; a tier funded by a single
		// seat is an overflow refund, not winnings.
		if len(pot.Contributors) > 1 && h.RakeBPS > 0 {
			result.Rake = pot.Amount * int64(h.RakeBPS) / 10000
		}

		awardable := pot.Amount - result.Rake
		share := awardable / int64(len(winners))
		remainder := awardable % int64(len(winners))
		for i, seat := range winners {
			amount := share
			if int64(i) < remainder {
				amount++
			}
			h.Seats[seat].Chips += amount
			settlement.Results[seat].Won += amount
		}

		result.Winners = winners
		settlement.Rake += result.Rake
		settlement.Pots = append(settlement.Pots, result)
	}

	for i, s := range h.Seats {
		settlement.Results[i].Seat = i
		settlement.Results[i].AgentID = s.AgentID
		settlement.Results[i].Delta = s.Chips - h.startStacks[i]
		settlement.Results[i].Folded = s.Folded
		if showdown && !s.Folded {
			settlement.Results[i].Revealed = true
			settlement.Results[i].HoleCards = s.HoleCards
			settlement.Results[i].HandDesc = ranks[i].String()
		}
	}

	h.Active = -1
	h.State = StateSettled
	h.result = settlement
}

// bestSeats returns the eligible seats holding the strongest hand.
func bestSeats(eligible []int, ranks [2]poker.HandRank) []int {
	best := make([]int, 0, len(eligible))
	for _, seat := range eligible {
		if len(best) == 0 {
			best = append(best, seat)
			continue
		}
		switch poker.Compare(ranks[seat], ranks[best[0]]) {
		case 1:
			best = best[:0]
			best = append(best, seat)
		case 0:
			best = append(best, seat)
		}
	}
	return best
}

// StackAfter returns the seat's stack after settlement.
func (h *Hand) StackAfter(seat int) int64 {
	return h.Seats[seat].Chips
}
