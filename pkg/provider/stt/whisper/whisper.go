// Package whisper implements stt.Provider using the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
//
// The model is loaded once at construction and a fresh whisper context is
// created per Transcribe call. Contexts are not thread-safe, which is fine
// under the transcribe service's one-in-flight-call guarantee.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/quill/pkg/provider/stt"
)

const defaultLanguage = "en"

// Option is a functional option for configuring a [Provider].
type Option func(*Provider)

// WithLanguage sets the default BCP-47 language code used when Transcribe is
// called with an empty language (e.g., "en", "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithTranslate enables translation of the transcript into English instead
// of same-language transcription.
func WithTranslate(enabled bool) Option {
	return func(p *Provider) { p.translate = enabled }
}

// Provider implements stt.Provider backed by a local whisper.cpp model.
type Provider struct {
	language  string
	translate bool

	mu     sync.Mutex
	model  whisperlib.Model
	closed bool
}

// New loads the whisper.cpp model from modelPath. The caller must call Close
// when the provider is no longer needed.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &Provider{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe runs whisper.cpp inference over samples using a fresh context.
func (p *Provider) Transcribe(ctx context.Context, samples []float32, language string) (stt.Result, error) {
	if err := ctx.Err(); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return stt.Result{}, errors.New("whisper: provider is closed")
	}

	lang := language
	if lang == "" {
		lang = p.language
	}

	start := time.Now()

	wctx, err := p.model.NewContext()
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, using model default",
			"language", lang, "err", err)
	}
	wctx.SetTranslate(p.translate)

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stt.Result{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	return stt.Result{
		Text:           strings.Join(parts, " "),
		ProcessingTime: time.Since(start),
	}, nil
}

// IsMultilingual reports whether the loaded model handles all supported
// languages from a single load.
func (p *Provider) IsMultilingual() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	return p.model.IsMultilingual()
}

// Close releases the whisper model. Idempotent.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.model.Close()
}

// Compile-time assertion that Provider satisfies stt.Provider.
var _ stt.Provider = (*Provider)(nil)
