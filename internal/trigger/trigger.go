// Package trigger provides the manual activation surface for recording
// sessions: a global hotkey that either toggles capture on and off or keeps
// it running while held, depending on the configured [Mode].
package trigger

import (
	"context"
	"fmt"
	"time"
)

// Mode determines how hotkey events map to session boundaries.
type Mode string

const (
	// ModeToggle starts capture on one press and stops it on the next.
	ModeToggle Mode = "toggle"

	// ModeHold captures while the hotkey is held and stops on release.
	ModeHold Mode = "hold"
)

// ParseMode validates a mode string from configuration.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeToggle, ModeHold:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("trigger: unknown mode %q (want %q or %q)", s, ModeToggle, ModeHold)
	}
}

// EventType discriminates the two edges of a hotkey activation.
type EventType int

const (
	// Pressed fires on the key-down edge.
	Pressed EventType = iota

	// Released fires on the key-up edge.
	Released
)

// String returns a human-readable event type name.
func (t EventType) String() string {
	switch t {
	case Pressed:
		return "pressed"
	case Released:
		return "released"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event is a single hotkey edge.
type Event struct {
	// Type is the edge that fired.
	Type EventType

	// Time is when the edge was observed.
	Time time.Time

	// HeldFor is the duration the key was down. Only set on [Released]
	// events.
	HeldFor time.Duration
}

// Source delivers hotkey events. Implementations must close the events
// channel when the source shuts down.
type Source interface {
	// Start begins listening for hotkey events. Events are delivered until
	// ctx is cancelled or Close is called.
	Start(ctx context.Context) error

	// Events returns the channel trigger edges are delivered on.
	Events() <-chan Event

	// Close releases the underlying hotkey registration.
	Close() error
}
