// Package state publishes the pipeline's user-visible status. UI surfaces
// (tray icon, overlay) subscribe to a [Store] and render transitions as they
// happen; the pipeline only ever writes the current status.
package state

import (
	"fmt"
	"sync"
)

// Status is the user-visible pipeline state.
type Status int

const (
	// Idle means no capture is armed and no session is running.
	Idle Status = iota

	// Monitoring means the wake-word detector is listening.
	Monitoring

	// Triggered means an activation fired and a session is starting.
	Triggered

	// Capturing means audio is being recorded.
	Capturing

	// Transcribing means captured audio is being converted to text.
	Transcribing

	// Inserting means transcribed text is being delivered.
	Inserting

	// Errored means the last session failed. Reason carries the detail.
	Errored
)

// String returns a stable status name.
func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Monitoring:
		return "monitoring"
	case Triggered:
		return "triggered"
	case Capturing:
		return "capturing"
	case Transcribing:
		return "transcribing"
	case Inserting:
		return "inserting"
	case Errored:
		return "errored"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Snapshot is the full published state.
type Snapshot struct {
	// Status is the current pipeline state.
	Status Status

	// Reason holds a human-readable detail when Status is [Errored].
	Reason string
}

// Store holds the current [Snapshot] and notifies subscribers on change.
// Safe for concurrent use. Notifications are non-blocking: a subscriber
// whose channel is full keeps only the latest snapshot.
type Store struct {
	mu      sync.Mutex
	current Snapshot
	subs    map[int]chan Snapshot
	nextID  int
}

// NewStore returns a store starting in [Idle].
func NewStore() *Store {
	return &Store{subs: map[int]chan Snapshot{}}
}

// Current returns the last published snapshot.
func (s *Store) Current() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Set publishes a new status with no error reason.
func (s *Store) Set(status Status) {
	s.publish(Snapshot{Status: status})
}

// SetError publishes the [Errored] status with a reason.
func (s *Store) SetError(reason string) {
	s.publish(Snapshot{Status: Errored, Reason: reason})
}

func (s *Store) publish(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap == s.current {
		return
	}
	s.current = snap
	for _, ch := range s.subs {
		// Drop the stale snapshot if the subscriber has not consumed it.
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

// Subscribe registers a listener. The returned channel carries each new
// snapshot; only the most recent unconsumed snapshot is retained. Call the
// returned cancel function to unsubscribe and close the channel.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	ch := make(chan Snapshot, 1)
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}
