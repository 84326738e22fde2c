// Package mock provides an in-memory stats sink for tests.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/quill/internal/stats"
)

// compile-time interface check
var _ stats.Sink = (*Sink)(nil)

// Sink is a stats.Sink that keeps records in memory.
type Sink struct {
	// RecordErr, when non-nil, is returned by every Record call.
	RecordErr error

	mu      sync.Mutex
	records []stats.Record

	// CloseCalls counts Close invocations.
	CloseCalls int
}

// Record appends rec to the in-memory list.
func (s *Sink) Record(ctx context.Context, rec stats.Record) error {
	if s.RecordErr != nil {
		return s.RecordErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// Records returns a copy of everything recorded so far.
func (s *Sink) Records() []stats.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]stats.Record, len(s.records))
	copy(out, s.records)
	return out
}

// Close counts the call.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCalls++
	return nil
}
