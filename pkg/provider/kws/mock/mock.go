// Package mock provides test doubles for the kws package interfaces.
//
// Use [Engine] to verify stream creation and [Stream] to script decode
// results:
//
//	st := &mock.Stream{}
//	st.QueueResult(kws.Result{Keyword: "hey quill"})
//	eng := &mock.Engine{Stream: st}
package mock

import (
	"sync"

	"github.com/MrWong99/quill/pkg/provider/kws"
)

// Engine is a mock implementation of kws.Engine.
type Engine struct {
	mu sync.Mutex

	// Stream is returned by NewStream. If nil, a fresh default Stream is
	// returned instead.
	Stream kws.Stream

	// NewStreamErr, if non-nil, is returned as the error from NewStream.
	NewStreamErr error

	// NewStreamCalls counts NewStream invocations.
	NewStreamCalls int

	// CloseCalls counts Close invocations.
	CloseCalls int
}

// NewStream records the call and returns Stream, NewStreamErr.
func (e *Engine) NewStream() (kws.Stream, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewStreamCalls++
	if e.NewStreamErr != nil {
		return nil, e.NewStreamErr
	}
	if e.Stream != nil {
		return e.Stream, nil
	}
	return &Stream{}, nil
}

// Close records the call.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CloseCalls++
	return nil
}

// Ensure Engine implements kws.Engine at compile time.
var _ kws.Engine = (*Engine)(nil)

// Stream is a scriptable mock implementation of kws.Stream.
//
// Each queued [kws.Result] is surfaced by exactly one IsReady/Decode/Result
// cycle. An empty queue makes IsReady return false.
type Stream struct {
	mu sync.Mutex

	// AcceptErr, if non-nil, is returned by AcceptWaveform.
	AcceptErr error

	// pending results to surface, one per decode step.
	pending []kws.Result
	current kws.Result

	// AcceptedSamples accumulates every sample passed to AcceptWaveform.
	AcceptedSamples []float32

	// ResetCalls, CloseCalls, and FinishedCalls count invocations.
	ResetCalls    int
	CloseCalls    int
	FinishedCalls int
}

// QueueResult appends a decode-step result to surface. Queue a zero Result to
// script a decode step with no keyword match.
func (s *Stream) QueueResult(r kws.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, r)
}

// AcceptWaveform records the samples and returns AcceptErr.
func (s *Stream) AcceptWaveform(_ int, samples []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AcceptErr != nil {
		return s.AcceptErr
	}
	s.AcceptedSamples = append(s.AcceptedSamples, samples...)
	return nil
}

// IsReady reports whether a scripted result is pending.
func (s *Stream) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) > 0
}

// Decode pops the next scripted result.
func (s *Stream) Decode() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		s.current = kws.Result{}
		return nil
	}
	s.current = s.pending[0]
	s.pending = s.pending[1:]
	return nil
}

// Result returns the most recently decoded scripted result.
func (s *Stream) Result() kws.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Reset records the call and clears pending results.
func (s *Stream) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCalls++
	s.pending = nil
	s.current = kws.Result{}
}

// InputFinished records the call.
func (s *Stream) InputFinished() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FinishedCalls++
}

// Close records the call.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCalls++
	return nil
}

// Ensure Stream implements kws.Stream at compile time.
var _ kws.Stream = (*Stream)(nil)
