package gameid

import (
	"math/rand"
	"strings"
	"testing"
)

func TestNewGeneratesValidIDs(t *testing.T) {
	for _, kind := range []Kind{KindAgent, KindTable, KindHand} {
		id := New(kind)
		if err := Validate(kind, id); err != nil {
			t.Errorf("New(%s) produced invalid id %q: %v", kind, id, err)
		}
		if !strings.HasPrefix(id, string(kind)+"_") {
			t.Errorf("id %q missing %s prefix", id, kind)
		}
	}
}

func TestNewIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := New(KindHand)
		if seen[id] {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id] = true
	}
}

func TestGeneratorDeterministicWithRandSource(t *testing.T) {
	// Ids from the same source and timestamp window share the random tail.
	g1 := NewGenerator(rand.New(rand.NewSource(1)))
	g2 := NewGenerator(rand.New(rand.NewSource(1)))

	id1 := g1.New(KindTable)
	id2 := g2.New(KindTable)

	// The timestamp prefix can differ by a millisecond; the random suffix cannot.
	if id1[len(id1)-16:] != id2[len(id2)-16:] {
		t.Errorf("expected matching random suffix: %s vs %s", id1, id2)
	}
}

func TestValidateRejectsMalformedIDs(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		id   string
	}{
		{"wrong prefix", KindTable, "agt_01h455vb4pex5vsknk084sn02q"},
		{"no prefix", KindHand, "01h455vb4pex5vsknk084sn02q"},
		{"short payload", KindAgent, "agt_01h455vb4pex5vsknk"},
		{"bad character", KindAgent, "agt_01h455vb4pex5vsknk084sn0!q"},
		{"first char overflow", KindAgent, "agt_81h455vb4pex5vsknk084sn02q"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Validate(tt.kind, tt.id); err == nil {
				t.Errorf("expected Validate(%s, %q) to fail", tt.kind, tt.id)
			}
		})
	}
}
