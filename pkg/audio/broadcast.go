package audio

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// defaultSubscriberBuffer is the per-subscriber frame buffer used when
// Subscribe is called with a non-positive capacity. At 30 ms per frame this
// holds roughly two seconds of audio.
const defaultSubscriberBuffer = 64

// Broadcaster fans captured frames out to subscribers. Publish never blocks:
// each subscriber owns a bounded channel and the oldest buffered frame is
// dropped when the channel is full. Frames are delivered to every subscriber
// in capture order.
//
// Broadcaster is safe for concurrent use.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   []*Subscription
	closed bool
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

// Subscription is one subscriber's view of the frame stream. Read frames from
// [Subscription.Frames]; the channel is closed when the subscription is
// cancelled or the broadcaster shuts down.
type Subscription struct {
	name    string
	ch      chan Frame
	dropped atomic.Int64
	warned  sync.Once
}

// Frames returns the subscriber's frame channel.
func (s *Subscription) Frames() <-chan Frame { return s.ch }

// Dropped returns the number of frames discarded because the subscriber fell
// behind.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Subscribe registers a new subscriber with the given buffer capacity.
// A non-positive capacity selects the default. The name appears in overflow
// warnings and metrics.
func (b *Broadcaster) Subscribe(name string, capacity int) *Subscription {
	if capacity <= 0 {
		capacity = defaultSubscriberBuffer
	}
	sub := &Subscription{name: name, ch: make(chan Frame, capacity)}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs = append(b.subs, sub)
	return sub
}

// Unsubscribe removes sub and closes its frame channel. Unknown subscriptions
// are ignored.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(s.ch)
			return
		}
	}
}

// Publish delivers frame to every subscriber without blocking. When a
// subscriber's buffer is full the oldest frame is discarded to make room;
// the first drop per subscriber is logged as a warning, further drops are
// only counted.
func (b *Broadcaster) Publish(frame Frame) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		select {
		case sub.ch <- frame:
			continue
		default:
		}
		// Buffer full: drop the oldest frame, then retry once. The second
		// send can only fail if a reader raced us, in which case the slot is
		// free again and the frame is counted as dropped anyway.
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- frame:
		default:
		}
		sub.dropped.Add(1)
		sub.warned.Do(func() {
			slog.Warn("audio subscriber overflow, dropping oldest frames",
				"subscriber", sub.name,
				"capacity", cap(sub.ch),
			)
		})
	}
}

// Close closes every subscriber channel and rejects further publishes.
// Idempotent.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subs {
		close(sub.ch)
	}
	b.subs = nil
}
