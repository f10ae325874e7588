package session

import (
	"sync"

	apperrors "github.com/bob-park/on-time-session/internal/errors"
)

const subscriberBuffer = 16

// Event is emitted on every state change.
type Event struct {
	State    State
	Previous State
	Reason   Reason
	Err      error // set on failed logins and refreshes
}

// Transient reports whether the failure behind the event was a request that
// never reached the provider rather than a provider rejection.
func (e Event) Transient() bool {
	return e.Err != nil && apperrors.Is(e.Err, apperrors.ErrNetwork)
}

type broadcaster struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
	closed bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[int]chan Event)}
}

func (b *broadcaster) subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
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

// emit never blocks; a subscriber whose buffer is full misses the event.
func (b *broadcaster) emit(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
