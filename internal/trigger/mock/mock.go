// Package mock provides a scriptable trigger source for tests.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/quill/internal/trigger"
)

// compile-time interface check
var _ trigger.Source = (*Source)(nil)

// Source is a trigger.Source driven by explicit Press/Release calls.
type Source struct {
	mu      sync.Mutex
	events  chan trigger.Event
	started bool
	closed  bool
	downAt  time.Time

	// StartCalls counts Start invocations.
	StartCalls int

	// CloseCalls counts Close invocations.
	CloseCalls int
}

// NewSource returns a mock source with a buffered event channel.
func NewSource() *Source {
	return &Source{events: make(chan trigger.Event, 16)}
}

// Start marks the source started.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StartCalls++
	s.started = true
	return nil
}

// Events returns the event channel.
func (s *Source) Events() <-chan trigger.Event {
	return s.events
}

// Close marks the source closed and closes the event channel.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCalls++
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

// Press emits a Pressed event.
func (s *Source) Press() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.downAt = time.Now()
	s.events <- trigger.Event{Type: trigger.Pressed, Time: s.downAt}
}

// Release emits a Released event with the held duration since the last
// Press. heldFor overrides the measured duration when non-zero.
func (s *Source) Release(heldFor time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	now := time.Now()
	held := heldFor
	if held == 0 && !s.downAt.IsZero() {
		held = now.Sub(s.downAt)
	}
	s.events <- trigger.Event{Type: trigger.Released, Time: now, HeldFor: held}
}
