package insert

import (
	"context"
	"fmt"

	"github.com/atotto/clipboard"
)

// compile-time interface check
var _ Sink = (*ClipboardSink)(nil)

// ClipboardSink places text on the system clipboard. It never requires a
// focused target, which makes it the terminal fallback in a delivery chain.
type ClipboardSink struct{}

// NewClipboardSink returns a clipboard-backed sink.
func NewClipboardSink() *ClipboardSink { return &ClipboardSink{} }

// Name implements [Sink].
func (s *ClipboardSink) Name() string { return "clipboard" }

// Insert writes text to the system clipboard.
func (s *ClipboardSink) Insert(ctx context.Context, text string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{Outcome: Failed}, err
	}
	if err := clipboard.WriteAll(text); err != nil {
		return Result{Outcome: Failed}, fmt.Errorf("insert: clipboard write: %w", err)
	}
	return Result{Outcome: Delivered, Target: "clipboard"}, nil
}
