package api

import (
	"sync"
)

// SSEEvent is a lifecycle event fanned out to stream subscribers.
type SSEEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// EventBroker fans events out by vehicle id.
type EventBroker interface {
	Subscribe(vehicleID string) chan SSEEvent
	Unsubscribe(vehicleID string, ch chan SSEEvent)
	Publish(vehicleID string, evt SSEEvent)
}

type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan SSEEvent]struct{} // vehicleId -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan SSEEvent]struct{}{}}
}

func (b *Broker) Subscribe(vehicleID string) chan SSEEvent {
	ch := make(chan SSEEvent, 8)
	b.mu.Lock()
	if b.subs[vehicleID] == nil {
		b.subs[vehicleID] = map[chan SSEEvent]struct{}{}
	}
	b.subs[vehicleID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(vehicleID string, ch chan SSEEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[vehicleID]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, vehicleID)
	}
	close(ch)
}

// Publish never blocks; slow subscribers drop events.
func (b *Broker) Publish(vehicleID string, evt SSEEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[vehicleID] {
		select {
		case ch <- evt:
		default:
		}
	}
}
