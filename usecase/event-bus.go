package usecase

import (
	"sync"

	"github.com/spooky-finn/go-cryptomarkets-view/domain"
)

type EventType string

const (
	EventBookUpdated    EventType = "book_updated"
	EventCandlesUpdated EventType = "candles_updated"
	EventStatusChanged  EventType = "status_changed"
)

// Event is what consumers receive. Book and Candles are shared copies; do not mutate.
type Event struct {
	Type    EventType                 `json:"type"`
	Market  string                    `json:"market"`
	Book    *domain.OrderBookSnapshot `json:"book,omitempty"`
	Candles []domain.Candle           `json:"candles,omitempty"`
	Status  *Status                   `json:"status,omitempty"`
}

type Listener func(Event)

type eventBus struct {
	mu        sync.RWMutex
	listeners map[uint64]Listener
	next      uint64
}

func newEventBus() *eventBus {
	return &eventBus{listeners: make(map[uint64]Listener)}
}

func (b *eventBus) subscribe(fn Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	id := b.next
	b.listeners[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners, id)
	}
}

// publish calls listeners synchronously. Listeners must not block.
func (b *eventBus) publish(ev Event) {
	b.mu.RLock()
	listeners := make([]Listener, 0, len(b.listeners))
	for _, fn := range b.listeners {
		listeners = append(listeners, fn)
	}
	b.mu.RUnlock()

	for _, fn := range listeners {
		fn(ev)
	}
}
