package insert

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// compile-time interface check
var _ Sink = (*TypingSink)(nil)

// TypingSink injects text into the focused window by shelling out to a
// keystroke injection tool. The default tool is xdotool, which also lets the
// sink resolve the focused window title for delivery reporting.
type TypingSink struct {
	tool string

	// runCommand is swapped in tests to avoid spawning processes.
	runCommand func(ctx context.Context, name string, args ...string) (string, error)
}

// TypingOption customises a [TypingSink].
type TypingOption func(*TypingSink)

// WithTool overrides the keystroke injection binary (default "xdotool").
func WithTool(tool string) TypingOption {
	return func(s *TypingSink) { s.tool = tool }
}

// NewTypingSink returns a sink that types text into the focused window.
func NewTypingSink(opts ...TypingOption) *TypingSink {
	s := &TypingSink{
		tool:       "xdotool",
		runCommand: runExec,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// runExec executes a command and returns its trimmed stdout.
func runExec(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	return strings.TrimSpace(string(out)), err
}

// Name implements [Sink].
func (s *TypingSink) Name() string { return "typing" }

// Insert resolves the focused window and types text into it. Returns
// [ErrNoFocusedTarget] when no window has input focus.
func (s *TypingSink) Insert(ctx context.Context, text string) (Result, error) {
	target, err := s.runCommand(ctx, s.tool, "getactivewindow", "getwindowname")
	if err != nil {
		return Result{Outcome: Failed}, fmt.Errorf("%w: %v", ErrNoFocusedTarget, err)
	}

	if _, err := s.runCommand(ctx, s.tool, "type", "--clearmodifiers", "--", text); err != nil {
		return Result{Outcome: Failed}, fmt.Errorf("insert: type into %q: %w", target, err)
	}
	return Result{Outcome: Delivered, Target: target}, nil
}
