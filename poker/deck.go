package poker

import rand "math/rand/v2"

// Deck represents an ordered 52-card deck. A deck is consumed by Deal and
// never reused mid-hand; callers build a fresh deck per hand.
type Deck struct {
	cards []Card
}

// NewDeck creates a full 52-card deck shuffled with the provided RNG.
// The RNG is injected so hands can be replayed deterministically in tests
// while production play seeds from crypto/rand (see randutil.CryptoSeed).
func NewDeck(rng *rand.Rand) *Deck {
	d := &Deck{cards: make([]Card, 0, 52)}
	for suit := Spades; suit <= Clubs; suit++ {
		for rank := Two; rank <= Ace; rank++ {
			d.cards = append(d.cards, NewCard(rank, suit))
		}
	}
	d.shuffle(rng)
	return d
}

// NewStackedDeck creates a deck that deals the given cards in order.
// Test helper for deterministic board/hole card scenarios.
func NewStackedDeck(cards ...Card) *Deck {
	d := &Deck{cards: make([]Card, len(cards))}
	copy(d.cards, cards)
	return d
}

func (d *Deck) shuffle(rng *rand.Rand) {
	for i := len(d.cards) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	}
}

// Deal removes and returns the top n cards from the deck.
func (d *Deck) Deal(n int) []Card {
	if n > len(d.cards) {
		n = len(d.cards)
	}
	cards := d.cards[:n]
	d.cards = d.cards[n:]
	return cards
}

// Remaining returns the number of cards left in the deck
func (d *Deck) Remaining() int {
	return len(d.cards)
}
