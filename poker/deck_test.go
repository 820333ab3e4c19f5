package poker

import (
	"testing"

	"github.com/piglig/silicon-casino/internal/randutil"
)

func TestNewDeckHas52UniqueCards(t *testing.T) {
	d := NewDeck(randutil.New(1))
	if d.Remaining() != 52 {
		t.Fatalf("expected 52 cards, got %d", d.Remaining())
	}

	seen := make(map[Card]bool)
	for _, c := range d.Deal(52) {
		if seen[c] {
			t.Errorf("duplicate card %s", c)
		}
		seen[c] = true
	}
	if len(seen) != 52 {
		t.Errorf("expected 52 unique cards, got %d", len(seen))
	}
}

func TestDeckShuffleIsSeedDeterministic(t *testing.T) {
	a := NewDeck(randutil.New(42)).Deal(52)
	b := NewDeck(randutil.New(42)).Deal(52)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same seed produced different decks at %d: %s vs %s", i, a[i], b[i])
		}
	}

	c := NewDeck(randutil.New(43)).Deal(52)
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different seeds produced identical decks")
	}
}

func TestDealConsumesDeck(t *testing.T) {
	d := NewDeck(randutil.New(7))
	hole := d.Deal(2)
	if len(hole) != 2 || d.Remaining() != 50 {
		t.Fatalf("expected 2 dealt and 50 remaining, got %d and %d", len(hole), d.Remaining())
	}
	d.Deal(50)
	if got := d.Deal(5); len(got) != 0 {
		t.Errorf("empty deck dealt %d cards", len(got))
	}
}

func TestStackedDeckDealsInOrder(t *testing.T) {
	want := MustParseCards("AsKh2d")
	d := NewStackedDeck(want...)
	got := d.Deal(3)
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: got %s, want %s", i, got[i], want[i])
		}
	}
}
