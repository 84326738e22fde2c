// Package mock provides a scriptable delivery sink for tests.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/quill/internal/insert"
)

// compile-time interface check
var _ insert.Sink = (*Sink)(nil)

// Sink is an insert.Sink that records inserted text and returns scripted
// results.
type Sink struct {
	// SinkName is returned by Name. Defaults to "mock" when empty.
	SinkName string

	// Result is returned by Insert when InsertErr is nil.
	Result insert.Result

	// InsertErr, when non-nil, is returned by every Insert call.
	InsertErr error

	mu       sync.Mutex
	inserted []string
}

// Name implements insert.Sink.
func (s *Sink) Name() string {
	if s.SinkName == "" {
		return "mock"
	}
	return s.SinkName
}

// Insert records text and returns the scripted result.
func (s *Sink) Insert(ctx context.Context, text string) (insert.Result, error) {
	s.mu.Lock()
	s.inserted = append(s.inserted, text)
	s.mu.Unlock()
	if s.InsertErr != nil {
		return insert.Result{Outcome: insert.Failed}, s.InsertErr
	}
	res := s.Result
	if res.Target == "" {
		res.Target = s.Name()
	}
	return res, nil
}

// Inserted returns a copy of all inserted texts.
func (s *Sink) Inserted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.inserted))
	copy(out, s.inserted)
	return out
}
