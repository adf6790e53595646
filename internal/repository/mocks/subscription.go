package mocks

import (
	"sync"

	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/repository"
)

// Subscription is a channel-backed stand-in for the change feed. Tests
// push events with Emit and end the feed with Close. Close is safe to
// call more than once, matching the real subscription.
type Subscription struct {
	events chan repository.ChangeEvent
	once   sync.Once
}

func NewSubscription(buffer int) *Subscription {
	return &Subscription{events: make(chan repository.ChangeEvent, buffer)}
}

// Emit delivers one event to the subscriber.
func (s *Subscription) Emit(ev repository.ChangeEvent) {
	s.events <- ev
}

func (s *Subscription) Events() <-chan repository.ChangeEvent {
	return s.events
}

func (s *Subscription) Close() error {
	s.once.Do(func() { close(s.events) })
	return nil
}

var _ repository.Subscription = (*Subscription)(nil)
