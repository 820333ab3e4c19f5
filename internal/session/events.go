package session

import (
	"sync"

	"github.com/piglig/silicon-casino/internal/game"
)

// Event wraps a game event with its table and a per-table sequence
// number so stream consumers can spot gaps.
type Event struct {
	TableID string     `json:"table_id"`
	Seq     uint64     `json:"seq"`
	Payload game.Event `json:"payload"`
}

// Broadcaster fans events out to subscribers. Publishing never blocks;
// a subscriber that cannot keep up loses events rather than stalling
// the table loop.
type Broadcaster struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
	closed bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan Event)}
}

// Subscribe registers a consumer with the given buffer size and returns
// its channel plus an unsubscribe func. The channel is closed on
// unsubscribe or broadcaster shutdown.
func (b *Broadcaster) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	ch := make(chan Event, buffer)
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

func (b *Broadcaster) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default: // slow consumer, drop
		}
	}
}

func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
