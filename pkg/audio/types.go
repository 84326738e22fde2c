// Package audio defines the frame type and fan-out primitives for the Quill
// capture pipeline.
//
// A [Frame] is the atomic unit of audio transport: a short span of normalized
// mono samples captured from the microphone. Frames flow from a [Source]
// through a [Broadcaster] to any number of subscribers (wake-word detection,
// silence analysis, session buffering). Delivery never blocks the capture
// path — each subscriber owns a bounded buffer and the oldest frame is
// dropped on overflow.
package audio

import (
	"context"
	"errors"
	"time"
)

// ErrDeviceDisconnected is reported through [Source.Faults] when the capture
// device is lost mid-stream. The source stops delivering frames; reattachment
// is the caller's responsibility.
var ErrDeviceDisconnected = errors.New("audio: capture device disconnected")

// ErrAlreadyStarted is returned by Start when the source is already running.
var ErrAlreadyStarted = errors.New("audio: source already started")

// Frame is a single span of captured audio.
//
// Frames are immutable once produced: the Samples slice is owned by the
// producer until delivery and must not be mutated by subscribers. Subscribers
// that need to retain samples beyond the callback must copy them.
type Frame struct {
	// Samples holds normalized mono samples in the canonical range [-1, 1].
	Samples []float32

	// SampleRate in Hz (16000 for the whisper/keyword-spotting pipeline).
	SampleRate int

	// Timestamp marks when this frame was captured.
	Timestamp time.Time
}

// Duration returns the playback duration of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// Fault reports a capture-path failure such as device loss.
type Fault struct {
	// Err classifies the failure. Compare with errors.Is against
	// [ErrDeviceDisconnected].
	Err error

	// Time is when the fault was observed.
	Time time.Time
}

// Source captures microphone input and delivers normalized [Frame]s to the
// sink it was constructed with. Implementations must never block the capture
// callback: anything heavier than a frame-local copy belongs downstream.
type Source interface {
	// Start begins capture. It returns once the device stream is running;
	// frames are delivered from a background goroutine until Stop is called
	// or a fault occurs.
	Start(ctx context.Context) error

	// Stop halts capture and releases the device. Idempotent.
	Stop() error

	// Faults returns a channel carrying capture-path failures. After a
	// device-loss fault the source delivers no further frames.
	Faults() <-chan Fault
}
