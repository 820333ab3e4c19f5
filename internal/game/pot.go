package game

import "sort"

// Pot represents one pot tier. A short all-in splits the committed chips
// into tiers; each tier is contested only among the seats that funded it.
type Pot struct {
	Amount       int64
	Contributors []int // seat indexes that funded this tier
	Eligible     []int // contributors still in the hand
}

// BuildPots layers the seats' total contributions into pot tiers at the
// all-in boundaries. Called at settlement when contributions are final.
func BuildPots(seats [2]*Seat) []Pot {
	levels := make([]int64, 0, len(seats))
	for _, s := range seats {
		if s.TotalBet > 0 {
			levels = append(levels, s.TotalBet)
		}
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i] < levels[j] })

	// De-duplicate contribution levels.
	uniq := levels[:0]
	for _, l := range levels {
		if len(uniq) == 0 || uniq[len(uniq)-1] != l {
			uniq = append(uniq, l)
		}
	}

	var pots []Pot
	var prev int64
	for _, level := range uniq {
		pot := Pot{}
		for _, s := range seats {
			if s.TotalBet <= prev {
				continue
			}
			contribution := min64(s.TotalBet, level) - prev
			pot.Amount += contribution
			pot.Contributors = append(pot.Contributors, s.Index)
			if !s.Folded {
				pot.Eligible = append(pot.Eligible, s.Index)
			}
		}
		if pot.Amount > 0 {
			pots = append(pots, pot)
		}
		prev = level
	}

	return pots
}

// PotTotal returns the total chips committed to the hand so far,
// including bets not yet closed out by a street change.
func PotTotal(seats [2]*Seat) int64 {
	var total int64
	for _, s := range seats {
		total += s.TotalBet
	}
	return total
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
