package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.design/x/hotkey"
)

// compile-time interface check
var _ Source = (*HotkeySource)(nil)

// HotkeySource is a [Source] backed by a global OS hotkey registration.
type HotkeySource struct {
	binding Binding

	mu      sync.Mutex
	hk      *hotkey.Hotkey
	events  chan Event
	done    chan struct{}
	started bool
	closed  bool
	wg      sync.WaitGroup
}

// NewHotkeySource creates a source for the given binding. The hotkey is not
// registered with the OS until [HotkeySource.Start].
func NewHotkeySource(binding Binding) *HotkeySource {
	return &HotkeySource{
		binding: binding,
		events:  make(chan Event, 8),
		done:    make(chan struct{}),
	}
}

// Start registers the hotkey and begins forwarding key edges to the events
// channel until ctx is cancelled or Close is called.
func (s *HotkeySource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("trigger: source already closed")
	}
	if s.started {
		return fmt.Errorf("trigger: source already started")
	}

	hk := hotkey.New(s.binding.Mods, s.binding.Key)
	if err := hk.Register(); err != nil {
		return fmt.Errorf("trigger: register hotkey %q: %w", s.binding, err)
	}
	s.hk = hk
	s.started = true
	slog.Info("hotkey registered", "binding", s.binding.String())

	s.wg.Add(1)
	go s.forwardLoop(ctx, hk)
	return nil
}

// forwardLoop translates raw key edges into [Event] values. It tracks the
// key-down timestamp so that Released events carry the held duration.
func (s *HotkeySource) forwardLoop(ctx context.Context, hk *hotkey.Hotkey) {
	defer s.wg.Done()
	defer close(s.events)

	var downAt time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-hk.Keydown():
			downAt = time.Now()
			select {
			case s.events <- Event{Type: Pressed, Time: downAt}:
			default:
				slog.Warn("trigger event dropped, consumer not keeping up", "type", Pressed.String())
			}
		case <-hk.Keyup():
			now := time.Now()
			ev := Event{Type: Released, Time: now}
			if !downAt.IsZero() {
				ev.HeldFor = now.Sub(downAt)
			}
			select {
			case s.events <- ev:
			default:
				slog.Warn("trigger event dropped, consumer not keeping up", "type", Released.String())
			}
		}
	}
}

// Events returns the channel trigger edges are delivered on. The channel is
// closed when the source stops.
func (s *HotkeySource) Events() <-chan Event {
	return s.events
}

// Close unregisters the hotkey and stops event delivery. Safe to call more
// than once.
func (s *HotkeySource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	hk := s.hk
	started := s.started
	s.mu.Unlock()

	if started {
		close(s.done)
		s.wg.Wait()
	}
	if hk != nil {
		if err := hk.Unregister(); err != nil {
			return fmt.Errorf("trigger: unregister hotkey %q: %w", s.binding, err)
		}
	}
	return nil
}
