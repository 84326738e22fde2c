package resilience

import (
	"errors"
	"testing"
	"time"
)

func newSinkGroup(maxFailures int, resetTimeout time.Duration) *FallbackGroup[string] {
	fg := NewFallbackGroup("typing", "typing", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{
			MaxFailures:  maxFailures,
			ResetTimeout: resetTimeout,
		},
	})
	fg.AddFallback("clipboard", "clipboard")
	return fg
}

func TestFallbackGroup_PrimaryHandlesCall(t *testing.T) {
	fg := newSinkGroup(3, 0)

	var used string
	err := fg.Execute(func(sink string) error {
		used = sink
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if used != "typing" {
		t.Fatalf("used %q, want the typing sink", used)
	}
}

func TestFallbackGroup_FailoverToNextSink(t *testing.T) {
	fg := newSinkGroup(3, 0)

	var used string
	err := fg.Execute(func(sink string) error {
		if sink == "typing" {
			return errSinkDown
		}
		used = sink
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if used != "clipboard" {
		t.Fatalf("used %q, want the clipboard fallback", used)
	}
}

func TestFallbackGroup_AllSinksFail(t *testing.T) {
	fg := newSinkGroup(3, 0)

	err := fg.Execute(func(string) error { return errSinkDown })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestFallbackGroup_OpenBreakerBypassesSink(t *testing.T) {
	fg := newSinkGroup(2, time.Hour)

	// Trip the typing sink's breaker.
	for i := 0; i < 2; i++ {
		_ = fg.Execute(func(sink string) error {
			if sink == "typing" {
				return errSinkDown
			}
			return nil
		})
	}

	// The tripped entry must be skipped without another delivery attempt.
	var attempts []string
	err := fg.Execute(func(sink string) error {
		attempts = append(attempts, sink)
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(attempts) != 1 || attempts[0] != "clipboard" {
		t.Fatalf("attempts = %v, want only the clipboard fallback", attempts)
	}
}

func TestExecuteWithResult_PrimaryResult(t *testing.T) {
	fg := newSinkGroup(3, 0)

	target, err := ExecuteWithResult(fg, func(sink string) (string, error) {
		return "Editor via " + sink, nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithResult: %v", err)
	}
	if target != "Editor via typing" {
		t.Fatalf("result = %q, want the typing sink's result", target)
	}
}

func TestExecuteWithResultNamed_ReportsFallbackUse(t *testing.T) {
	fg := newSinkGroup(3, 0)

	target, name, err := ExecuteWithResultNamed(fg, func(sink string) (string, error) {
		if sink == "typing" {
			return "", errSinkDown
		}
		return "Editor", nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithResultNamed: %v", err)
	}
	if target != "Editor" {
		t.Fatalf("result = %q, want Editor", target)
	}
	if name != "clipboard" {
		t.Fatalf("delivering entry = %q, want clipboard", name)
	}
}

func TestExecuteWithResult_AllFail(t *testing.T) {
	fg := NewFallbackGroup("typing", "typing", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})

	_, err := ExecuteWithResult(fg, func(string) (string, error) {
		return "", errSinkDown
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
