package api

import (
	"sync"

	"haulboard/internal/boards"
)

// Broker fans search events out to in-process subscribers keyed by search ID.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan boards.Event]struct{} // searchId -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan boards.Event]struct{}{}}
}

func (b *Broker) Subscribe(searchID string) chan boards.Event {
	ch := make(chan boards.Event, 8)
	b.mu.Lock()
	if b.subs[searchID] == nil {
		b.subs[searchID] = map[chan boards.Event]struct{}{}
	}
	b.subs[searchID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(searchID string, ch chan boards.Event) {
	b.mu.Lock()
	if m := b.subs[searchID]; m != nil {
		delete(m, ch)
		if len(m) == 0 {
			delete(b.subs, searchID)
		}
	}
	b.mu.Unlock()
	close(ch)
}

func (b *Broker) Publish(searchID string, evt boards.Event) {
	b.mu.Lock()
	m := b.subs[searchID]
	for ch := range m {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
}
