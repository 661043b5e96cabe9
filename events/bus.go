// Package events implements the typed event bus every pipeline phase
// (intent classification, planning, orchestration, sensor/reflex
// dispatch) publishes lifecycle notifications to, plus an SSE encoder
// so an external API can relay them to a client as they occur.
package events

import (
	"context"
	"sync"

	"github.com/kanephamphu/connex-agi/agierr"
)

// Event is anything with a stable Type, publishable on a Bus.
type Event interface {
	EventType() string
}

// Bus fans an Event out to every registered Subscriber synchronously,
// in registration order, stopping at the first subscriber error.
type Bus interface {
	Publish(ctx context.Context, event Event) error
	Register(sub Subscriber) (Subscription, error)
}

// Subscriber reacts to a published Event.
type Subscriber interface {
	HandleEvent(ctx context.Context, event Event) error
}

// SubscriberFunc adapts a plain function to a Subscriber.
type SubscriberFunc func(ctx context.Context, event Event) error

// HandleEvent calls f.
func (f SubscriberFunc) HandleEvent(ctx context.Context, event Event) error { return f(ctx, event) }

// Subscription is returned by Register; Close unregisters.
type Subscription interface {
	Close() error
}

// entry pairs a subscription handle with its Subscriber so Publish can
// walk registrations in the order they were added; a plain map would
// iterate in random order and break delivery ordering guarantees.
type entry struct {
	sub *subscription
	fn  Subscriber
}

type bus struct {
	mu      sync.RWMutex
	entries []entry
}

type subscription struct {
	bus  *bus
	once sync.Once
}

// NewBus returns a ready-to-use in-memory Bus.
func NewBus() Bus {
	return &bus{}
}

func (b *bus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	subs := make([]Subscriber, 0, len(b.entries))
	for _, e := range b.entries {
		subs = append(subs, e.fn)
	}
	b.mu.RUnlock()
	for _, sub := range subs {
		if err := sub.HandleEvent(ctx, event); err != nil {
			return agierr.Wrap(agierr.KindExecution, "events: subscriber handling failed", err)
		}
	}
	return nil
}

func (b *bus) Register(sub Subscriber) (Subscription, error) {
	if sub == nil {
		return nil, agierr.New(agierr.KindConfiguration, "events: subscriber is required")
	}
	s := &subscription{bus: b}
	b.mu.Lock()
	b.entries = append(b.entries, entry{sub: s, fn: sub})
	b.mu.Unlock()
	return s, nil
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		for i, e := range s.bus.entries {
			if e.sub == s {
				s.bus.entries = append(s.bus.entries[:i], s.bus.entries[i+1:]...)
				break
			}
		}
		s.bus.mu.Unlock()
	})
	return nil
}
