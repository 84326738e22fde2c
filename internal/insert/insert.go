// Package insert delivers transcribed text to the user: either typed into
// the currently focused input target or, when no target can accept text,
// placed on the system clipboard.
package insert

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoFocusedTarget is returned by sinks that require a focused input
// target when none is available.
var ErrNoFocusedTarget = errors.New("insert: no focused input target")

// Outcome describes how a delivery ended.
type Outcome int

const (
	// Delivered means the text reached the focused input target.
	Delivered Outcome = iota

	// FellBackToClipboard means direct insertion failed and the text was
	// placed on the clipboard instead.
	FellBackToClipboard

	// Failed means the text could not be delivered anywhere.
	Failed
)

// String returns a stable outcome name suitable for metrics attributes.
func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case FellBackToClipboard:
		return "fell_back_to_clipboard"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result reports where a delivery landed.
type Result struct {
	// Outcome is how the delivery ended.
	Outcome Outcome

	// Target identifies where the text landed, e.g. the sink name or a
	// window title. Empty when the delivery failed.
	Target string
}

// Sink places text somewhere the user can use it.
type Sink interface {
	// Name identifies the sink in logs and fallback ordering.
	Name() string

	// Insert delivers text. Returns [ErrNoFocusedTarget] (possibly
	// wrapped) when the sink needs a focused target and none exists.
	Insert(ctx context.Context, text string) (Result, error)
}
