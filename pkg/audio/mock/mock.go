// Package mock provides a scriptable test double for the audio package.
//
// Use [Source] to drive the pipeline with synthetic frames and to inject
// device faults:
//
//	src := mock.NewSource(broadcaster.Publish)
//	_ = src.Start(ctx)
//	src.Push(frame)
//	src.InjectFault(audio.ErrDeviceDisconnected)
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/quill/pkg/audio"
)

// Source is a mock implementation of audio.Source. Frames pushed via Push are
// forwarded to the sink only while the source is started.
type Source struct {
	mu      sync.Mutex
	sink    func(audio.Frame)
	started bool

	// StartErr, if non-nil, is returned by Start.
	StartErr error

	// StartCalls and StopCalls count lifecycle invocations.
	StartCalls int
	StopCalls  int

	faults chan audio.Fault
}

// NewSource creates a mock source delivering frames to sink.
func NewSource(sink func(audio.Frame)) *Source {
	return &Source{
		sink:   sink,
		faults: make(chan audio.Fault, 4),
	}
}

// Start records the call and marks the source running.
func (s *Source) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StartCalls++
	if s.StartErr != nil {
		return s.StartErr
	}
	if s.started {
		return audio.ErrAlreadyStarted
	}
	s.started = true
	return nil
}

// Stop records the call and marks the source stopped.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StopCalls++
	s.started = false
	return nil
}

// Faults returns the injectable fault channel.
func (s *Source) Faults() <-chan audio.Fault { return s.faults }

// Push delivers a frame to the sink if the source is running. Returns true
// when the frame was delivered.
func (s *Source) Push(frame audio.Frame) bool {
	s.mu.Lock()
	sink := s.sink
	started := s.started
	s.mu.Unlock()
	if !started || sink == nil {
		return false
	}
	sink(frame)
	return true
}

// PushSamples is a convenience wrapper that wraps raw samples in a frame and
// pushes it.
func (s *Source) PushSamples(samples []float32, sampleRate int) bool {
	return s.Push(audio.Frame{Samples: samples, SampleRate: sampleRate, Timestamp: time.Now()})
}

// InjectFault emits a fault and stops frame delivery, mirroring device loss.
func (s *Source) InjectFault(err error) {
	s.mu.Lock()
	s.started = false
	s.mu.Unlock()
	s.faults <- audio.Fault{Err: err, Time: time.Now()}
}

// Ensure Source implements audio.Source at compile time.
var _ audio.Source = (*Source)(nil)
