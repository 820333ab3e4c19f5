package poker

import "math/bits"

// Category enumerates poker hand categories ordered from weakest to strongest.
type Category uint8

const (
	HighCard Category = iota
	Pair
	TwoPair
	ThreeOfAKind
	Straight
	Flush
	FullHouse
	FourOfAKind
	StraightFlush
)

// String returns a human-readable category description.
func (c Category) String() string {
	switch c {
	case HighCard:
		return "High Card"
	case Pair:
		return "Pair"
	case TwoPair:
		return "Two Pair"
	case ThreeOfAKind:
		return "Three of a Kind"
	case Straight:
		return "Straight"
	case Flush:
		return "Flush"
	case FullHouse:
		return "Full House"
	case FourOfAKind:
		return "Four of a Kind"
	case StraightFlush:
		return "Straight Flush"
	default:
		return "Unknown"
	}
}

// HandRank encodes the strength of a 5-card hand as a single ordered
// integer: the category in the high bits and up to five tie-break ranks
// packed as nibbles below it. Higher values are stronger, so two hands
// compare with plain integer comparison.
type HandRank uint32

func packRank(cat Category, tiebreak ...Rank) HandRank {
	r := HandRank(cat) << 20
	shift := 16
	for _, t := range tiebreak {
		r |= HandRank(t) << shift
		shift -= 4
	}
	return r
}

// Category returns the hand category this rank encodes.
func (hr HandRank) Category() Category {
	return Category(hr >> 20)
}

// String returns the category description.
func (hr HandRank) String() string {
	return hr.Category().String()
}

// Compare returns 1 if a is stronger than b, -1 if weaker, 0 on a tie.
func Compare(a, b HandRank) int {
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	default:
		return 0
	}
}

// Evaluate returns the rank of the best 5-card hand choosable from the
// given 7 cards (2 hole + 5 board). Pure and total: any two evaluations
// are comparable, ties broken by kicker ranks in descending order. The
// wheel (A-2-3-4-5) ranks as the lowest straight.
func Evaluate(cards []Card) HandRank {
	var suitMasks [4]uint16
	var counts [15]int
	for _, c := range cards {
		suitMasks[c.Suit] |= 1 << uint(c.Rank)
		counts[c.Rank]++
	}
	var rankMask uint16
	for _, m := range suitMasks {
		rankMask |= m
	}

	// Straight flush and flush. With seven cards a flush excludes quads and
	// full houses, so flush hands can short-circuit the paired checks.
	for _, m := range suitMasks {
		if bits.OnesCount16(m) < 5 {
			continue
		}
		if high := straightHigh(m); high > 0 {
			return packRank(StraightFlush, high)
		}
		return packRank(Flush, topRanks(m, 5)...)
	}

	quad, trips, pairs := groupRanks(counts)

	if quad > 0 {
		kicker := topRanksExcluding(rankMask, 1, quad)
		return packRank(FourOfAKind, quad, kicker[0])
	}

	if len(trips) > 0 {
		trip := trips[0]
		// The pair can come from a real pair or a second set of trips.
		pairRank := Rank(0)
		if len(trips) > 1 {
			pairRank = trips[1]
		}
		if len(pairs) > 0 && pairs[0] > pairRank {
			pairRank = pairs[0]
		}
		if pairRank > 0 {
			return packRank(FullHouse, trip, pairRank)
		}
	}

	if high := straightHigh(rankMask); high > 0 {
		return packRank(Straight, high)
	}

	if len(trips) > 0 {
		kickers := topRanksExcluding(rankMask, 2, trips[0])
		return packRank(ThreeOfAKind, trips[0], kickers[0], kickers[1])
	}

	if len(pairs) >= 2 {
		kicker := topRanksExcluding(rankMask, 1, pairs[0], pairs[1])
		return packRank(TwoPair, pairs[0], pairs[1], kicker[0])
	}

	if len(pairs) == 1 {
		kickers := topRanksExcluding(rankMask, 3, pairs[0])
		return packRank(Pair, pairs[0], kickers[0], kickers[1], kickers[2])
	}

	return packRank(HighCard, topRanks(rankMask, 5)...)
}

// groupRanks extracts the best quad, trips and pairs from rank counts,
// each list ordered highest first.
func groupRanks(counts [15]int) (quad Rank, trips, pairs []Rank) {
	for r := Ace; r >= Two; r-- {
		switch counts[r] {
		case 4:
			if quad == 0 {
				quad = r
			}
		case 3:
			trips = append(trips, r)
		case 2:
			pairs = append(pairs, r)
		}
	}
	return quad, trips, pairs
}

// straightHigh returns the high rank of the best straight in the rank
// mask, or 0 when there is none. The wheel reports Five as its high card.
func straightHigh(mask uint16) Rank {
	// Bitwise cascade finds five consecutive set bits in one pass.
	seq := mask & (mask >> 1) & (mask >> 2) & (mask >> 3) & (mask >> 4)
	if seq != 0 {
		return Rank(bits.Len16(seq) - 1 + 4)
	}
	const wheel = 1<<uint(Ace) | 1<<uint(Two) | 1<<uint(Three) | 1<<uint(Four) | 1<<uint(Five)
	if mask&wheel == wheel {
		return Five
	}
	return 0
}

// topRanks returns the n highest ranks present in the mask, descending.
func topRanks(mask uint16, n int) []Rank {
	return topRanksExcluding(mask, n)
}

func topRanksExcluding(mask uint16, n int, exclude ...Rank) []Rank {
	for _, e := range exclude {
		mask &^= 1 << uint(e)
	}
	ranks := make([]Rank, 0, n)
	for len(ranks) < n && mask != 0 {
		top := bits.Len16(mask) - 1
		ranks = append(ranks, Rank(top))
		mask &^= 1 << uint(top)
	}
	for len(ranks) < n {
		ranks = append(ranks, 0)
	}
	return ranks
}
