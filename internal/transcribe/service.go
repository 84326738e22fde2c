// Package transcribe owns the speech-to-text inference engine and serializes
// every call against it.
//
// The service is a serialized worker: a mutex guarantees at most one
// in-flight operation. A second caller queues on the mutex until the first
// completes — two Transcribe calls are never concurrent. The native engine
// handle never leaves this package.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/quill/internal/observe"
	"github.com/MrWong99/quill/pkg/provider/stt"
)

var (
	// ErrNotInitialized is returned by Transcribe before Initialize has
	// loaded a model.
	ErrNotInitialized = errors.New("transcribe: service not initialized")

	// ErrTranscriptionFailed wraps engine inference failures. Callers must
	// not retry — re-running inference on the same audio has no expectation
	// of a different outcome.
	ErrTranscriptionFailed = errors.New("transcribe: transcription failed")
)

// ProviderFactory loads a transcription engine for the given language.
// Called once at Initialize and again on SwitchLanguage for single-language
// engines.
type ProviderFactory func(language string) (stt.Provider, error)

// Option is a functional option for configuring a [Service].
type Option func(*Service)

// WithMetrics records transcription latency and error counts to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// Service exclusively owns the inference engine. All methods are safe for
// concurrent use; operations are serialized internally.
type Service struct {
	mu sync.Mutex

	factory  ProviderFactory
	provider stt.Provider
	language string
	metrics  *observe.Metrics
}

// NewService creates an uninitialized Service backed by factory.
func NewService(factory ProviderFactory, opts ...Option) *Service {
	s := &Service{factory: factory}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Initialize loads the model assets for language. Idempotent when a loaded
// engine already covers the language — a multilingual engine needs a single
// load for all supported languages.
func (s *Service) Initialize(language string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.provider != nil {
		if s.language == language || s.provider.IsMultilingual() {
			s.language = language
			return nil
		}
		// Single-language engine loaded for a different language.
		if err := s.provider.Close(); err != nil {
			slog.Warn("transcribe: close previous engine", "err", err)
		}
		s.provider = nil
	}

	provider, err := s.factory(language)
	if err != nil {
		return fmt.Errorf("transcribe: load engine for language %q: %w", language, err)
	}
	s.provider = provider
	s.language = language
	slog.Info("transcription engine initialized",
		"language", language,
		"multilingual", provider.IsMultilingual(),
	)
	return nil
}

// Transcribe converts samples to text in the given language (empty selects
// the active language). The call blocks while any earlier operation is in
// flight and holds exclusivity for the duration of inference.
//
// Inference failures are wrapped as [ErrTranscriptionFailed] and surface
// immediately — no retries are performed.
func (s *Service) Transcribe(ctx context.Context, samples []float32, language string) (stt.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.provider == nil {
		return stt.Result{}, ErrNotInitialized
	}
	if language == "" {
		language = s.language
	}

	ctx, span := observe.StartSpan(ctx, "transcribe.Transcribe")
	defer span.End()

	start := time.Now()
	result, err := s.provider.Transcribe(ctx, samples, language)
	elapsed := time.Since(start)

	if s.metrics != nil {
		s.metrics.TranscriptionDuration.Record(ctx, elapsed.Seconds(),
			metric.WithAttributes(attribute.String("language", language)))
	}

	if err != nil {
		if s.metrics != nil {
			s.metrics.TranscriptionErrors.Add(ctx, 1,
				metric.WithAttributes(attribute.String("language", language)))
		}
		return stt.Result{}, fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
	}

	if result.ProcessingTime == 0 {
		result.ProcessingTime = elapsed
	}
	observe.Logger(ctx).Debug("transcription complete",
		"language", language,
		"duration", elapsed,
		"chars", len(result.Text),
	)
	return result, nil
}

// SwitchLanguage changes the active language. For a multilingual engine this
// is a fast metadata update; otherwise the current engine is released and a
// new one loaded before the call returns, so the next Transcribe sees the
// new language.
func (s *Service) SwitchLanguage(language string) error {
	s.mu.Lock()

	if s.provider == nil {
		s.mu.Unlock()
		return ErrNotInitialized
	}
	if s.provider.IsMultilingual() || s.language == language {
		s.language = language
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	return s.Initialize(language)
}

// Language returns the active language.
func (s *Service) Language() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.language
}

// Close releases the engine. Idempotent.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.provider == nil {
		return nil
	}
	err := s.provider.Close()
	s.provider = nil
	return err
}
