package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/quill/internal/insert"
	insertmock "github.com/MrWong99/quill/internal/insert/mock"
)

func TestInsertFallback_PrimaryDelivers(t *testing.T) {
	primary := &insertmock.Sink{SinkName: "typing", Result: insert.Result{Outcome: insert.Delivered, Target: "Editor"}}
	clip := &insertmock.Sink{SinkName: "clipboard", Result: insert.Result{Outcome: insert.Delivered}}

	fb := NewInsertFallback(primary, FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback(clip)

	res, err := fb.Insert(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if res.Outcome != insert.Delivered {
		t.Fatalf("outcome = %v, want Delivered", res.Outcome)
	}
	if res.Target != "Editor" {
		t.Fatalf("target = %q, want Editor", res.Target)
	}
	if len(clip.Inserted()) != 0 {
		t.Fatal("clipboard used although primary delivered")
	}
}

func TestInsertFallback_FallsBackToClipboard(t *testing.T) {
	primary := &insertmock.Sink{SinkName: "typing", InsertErr: insert.ErrNoFocusedTarget}
	clip := &insertmock.Sink{SinkName: "clipboard", Result: insert.Result{Outcome: insert.Delivered, Target: "clipboard"}}

	fb := NewInsertFallback(primary, FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback(clip)

	res, err := fb.Insert(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if res.Outcome != insert.FellBackToClipboard {
		t.Fatalf("outcome = %v, want FellBackToClipboard", res.Outcome)
	}
	if got := clip.Inserted(); len(got) != 1 || got[0] != "hello" {
		t.Fatalf("clipboard received %v, want [hello]", got)
	}
}

func TestInsertFallback_AllFail(t *testing.T) {
	primary := &insertmock.Sink{SinkName: "typing", InsertErr: errors.New("typing broken")}
	clip := &insertmock.Sink{SinkName: "clipboard", InsertErr: errors.New("clipboard broken")}

	fb := NewInsertFallback(primary, FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback(clip)

	res, err := fb.Insert(context.Background(), "hello")
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if res.Outcome != insert.Failed {
		t.Fatalf("outcome = %v, want Failed", res.Outcome)
	}
}

func TestInsertFallback_OpenBreakerSkipsPrimary(t *testing.T) {
	primary := &insertmock.Sink{SinkName: "typing", InsertErr: errors.New("typing broken")}
	clip := &insertmock.Sink{SinkName: "clipboard", Result: insert.Result{Outcome: insert.Delivered, Target: "clipboard"}}

	fb := NewInsertFallback(primary, FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2},
	})
	fb.AddFallback(clip)

	// Trip the primary's breaker.
	for i := 0; i < 3; i++ {
		if _, err := fb.Insert(context.Background(), "x"); err != nil {
			t.Fatalf("Insert #%d: %v", i, err)
		}
	}

	attempts := len(primary.Inserted())
	if _, err := fb.Insert(context.Background(), "y"); err != nil {
		t.Fatalf("Insert after trip: %v", err)
	}
	if got := len(primary.Inserted()); got != attempts {
		t.Fatalf("primary attempted %d times after breaker opened, want %d", got, attempts)
	}
}
