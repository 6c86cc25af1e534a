// Package events fans session lifecycle notifications out to in-process
// subscribers such as the terminal QR renderer.
package events

import (
	"sync"

	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/store"
)

// Event is a notification published by the core.
type Event interface {
	Bot() string
}

// PairingCode carries a new pairing code for a connecting bot. DataURL is
// a PNG rendering of the code, empty when rendering failed.
type PairingCode struct {
	BotID   string
	Code    string
	DataURL string
}

func (e PairingCode) Bot() string { return e.BotID }

// StatusChanged reports a persisted status transition.
type StatusChanged struct {
	BotID  string
	Status store.BotStatus
}

func (e StatusChanged) Bot() string { return e.BotID }

// Publisher is what the core depends on.
type Publisher interface {
	Publish(evt Event)
}

// Bus is an in-process Publisher. Delivery never blocks: a subscriber
// whose buffer is full misses the event.
type Bus struct {
	mu   sync.Mutex
	subs []chan Event
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a subscriber with the given buffer size and returns
// its channel and an unsubscribe function that closes it.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, sub := range b.subs {
				if sub == ch {
					b.subs = append(b.subs[:i], b.subs[i+1:]...)
					close(ch)
					return
				}
			}
		})
	}
}

func (b *Bus) Publish(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(Event) {}
