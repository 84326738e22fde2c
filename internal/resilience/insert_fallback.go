package resilience

import (
	"context"

	"github.com/MrWong99/quill/internal/insert"
)

// InsertFallback implements [insert.Sink] with automatic failover across
// multiple delivery sinks. Each sink has its own circuit breaker. When a
// non-primary sink delivers the text, the reported outcome is
// [insert.FellBackToClipboard] so callers can surface the degraded delivery.
type InsertFallback struct {
	group   *FallbackGroup[insert.Sink]
	primary string
}

// Compile-time interface assertion.
var _ insert.Sink = (*InsertFallback)(nil)

// NewInsertFallback creates an [InsertFallback] with primary as the preferred
// delivery sink.
func NewInsertFallback(primary insert.Sink, cfg FallbackConfig) *InsertFallback {
	return &InsertFallback{
		group:   NewFallbackGroup(primary, primary.Name(), cfg),
		primary: primary.Name(),
	}
}

// AddFallback registers an additional delivery sink, tried after the primary.
func (f *InsertFallback) AddFallback(sink insert.Sink) {
	f.group.AddFallback(sink.Name(), sink)
}

// Name implements [insert.Sink].
func (f *InsertFallback) Name() string { return f.primary }

// Insert delivers text through the first healthy sink.
func (f *InsertFallback) Insert(ctx context.Context, text string) (insert.Result, error) {
	res, winner, err := ExecuteWithResultNamed(f.group, func(s insert.Sink) (insert.Result, error) {
		return s.Insert(ctx, text)
	})
	if err != nil {
		return insert.Result{Outcome: insert.Failed}, err
	}
	if winner != f.primary {
		res.Outcome = insert.FellBackToClipboard
	}
	return res, nil
}
