package transcribe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/quill/pkg/provider/stt"
	sttmock "github.com/MrWong99/quill/pkg/provider/stt/mock"
)

// newTestService returns a service whose factory hands out the given mock and
// counts loads.
func newTestService(p *sttmock.Provider) (*Service, *int) {
	loads := 0
	svc := NewService(func(language string) (stt.Provider, error) {
		loads++
		return p, nil
	})
	return svc, &loads
}

func TestTranscribe_BeforeInitialize_ReturnsNotInitialized(t *testing.T) {
	svc, _ := newTestService(&sttmock.Provider{})
	_, err := svc.Transcribe(context.Background(), []float32{0.1}, "en")
	if !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("err = %v, want ErrNotInitialized", err)
	}
}

func TestInitialize_Idempotent_SingleLoad(t *testing.T) {
	svc, loads := newTestService(&sttmock.Provider{Multilingual: true})
	if err := svc.Initialize("en"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := svc.Initialize("en"); err != nil {
		t.Fatalf("second Initialize: %v", err)
	}
	if *loads != 1 {
		t.Fatalf("factory called %d times, want 1", *loads)
	}
}

func TestInitialize_MultilingualCoversAllLanguages(t *testing.T) {
	svc, loads := newTestService(&sttmock.Provider{Multilingual: true})
	if err := svc.Initialize("en"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := svc.Initialize("de"); err != nil {
		t.Fatalf("Initialize(de): %v", err)
	}
	if *loads != 1 {
		t.Fatalf("multilingual engine reloaded: %d loads, want 1", *loads)
	}
	if svc.Language() != "de" {
		t.Fatalf("active language = %q, want de", svc.Language())
	}
}

func TestTranscribe_WrapsEngineFailure(t *testing.T) {
	p := &sttmock.Provider{TranscribeErr: errors.New("boom")}
	svc, _ := newTestService(p)
	if err := svc.Initialize("en"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	_, err := svc.Transcribe(context.Background(), []float32{0.1}, "")
	if !errors.Is(err, ErrTranscriptionFailed) {
		t.Fatalf("err = %v, want ErrTranscriptionFailed", err)
	}
	// Exactly one inference attempt — failures are not retried.
	if got := len(p.Calls()); got != 1 {
		t.Fatalf("engine called %d times, want 1 (no retries)", got)
	}
}

func TestTranscribe_OverlappingCallsAreSequential(t *testing.T) {
	p := &sttmock.Provider{
		Result: stt.Result{Text: "hello world", Confidence: 0.95},
		Delay:  50 * time.Millisecond,
	}
	svc, _ := newTestService(p)
	if err := svc.Initialize("en"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Transcribe(context.Background(), []float32{0.1}, ""); err != nil {
				t.Errorf("Transcribe: %v", err)
			}
		}()
	}
	wg.Wait()

	calls := p.Calls()
	if len(calls) != 2 {
		t.Fatalf("engine saw %d calls, want 2", len(calls))
	}
	// The second call must start only after the first returned.
	first, second := calls[0], calls[1]
	if second.Start.Before(first.End) {
		t.Fatalf("overlapping inference: second started %v before first ended %v",
			second.Start, first.End)
	}
}

func TestSwitchLanguage_MultilingualIsMetadataOnly(t *testing.T) {
	svc, loads := newTestService(&sttmock.Provider{Multilingual: true})
	if err := svc.Initialize("en"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := svc.SwitchLanguage("fr"); err != nil {
		t.Fatalf("SwitchLanguage: %v", err)
	}
	if *loads != 1 {
		t.Fatalf("multilingual switch reloaded the engine: %d loads, want 1", *loads)
	}
	if svc.Language() != "fr" {
		t.Fatalf("Language() = %q, want fr", svc.Language())
	}
}

func TestSwitchLanguage_SingleLanguageReloads(t *testing.T) {
	p := &sttmock.Provider{Multilingual: false}
	svc, loads := newTestService(p)
	if err := svc.Initialize("en"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := svc.SwitchLanguage("de"); err != nil {
		t.Fatalf("SwitchLanguage: %v", err)
	}
	if *loads != 2 {
		t.Fatalf("single-language switch: %d loads, want 2", *loads)
	}
	if p.CloseCalls != 1 {
		t.Fatalf("previous engine Close calls = %d, want 1", p.CloseCalls)
	}
}

func TestSwitchLanguage_BeforeInitialize_Fails(t *testing.T) {
	svc, _ := newTestService(&sttmock.Provider{})
	if err := svc.SwitchLanguage("en"); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("err = %v, want ErrNotInitialized", err)
	}
}

func TestClose_Idempotent(t *testing.T) {
	p := &sttmock.Provider{}
	svc, _ := newTestService(p)
	if err := svc.Initialize("en"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if p.CloseCalls != 1 {
		t.Fatalf("engine Close calls = %d, want 1", p.CloseCalls)
	}
}
