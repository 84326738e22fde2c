// Package stt defines the Provider interface for batch speech-to-text
// backends.
//
// Quill captures a bounded utterance and transcribes it in one shot, so the
// provider surface is a single blocking Transcribe call rather than a
// streaming session. Providers own their native inference engine; callers
// must serialise access — the transcribe service guarantees at most one
// in-flight call per provider. Implementations are therefore NOT required to
// be safe for concurrent use.
package stt

import (
	"context"
	"time"
)

// Result is the outcome of one transcription call.
type Result struct {
	// Text is the transcribed speech content.
	Text string

	// Confidence is the overall confidence score (0.0–1.0). Zero when the
	// backend does not report confidence.
	Confidence float64

	// ProcessingTime is how long inference took.
	ProcessingTime time.Duration
}

// Provider is the abstraction over a local batch transcription engine.
type Provider interface {
	// Transcribe converts normalized mono samples to text in the given
	// language. The samples must match the sample rate the provider was
	// constructed with. Returns an error when inference fails; callers must
	// not retry with the same audio.
	Transcribe(ctx context.Context, samples []float32, language string) (Result, error)

	// IsMultilingual reports whether a single model load serves all
	// supported languages. When false, switching languages requires a
	// model reload by the caller.
	IsMultilingual() bool

	// Close releases the native engine. Calling Close more than once is
	// safe and returns nil.
	Close() error
}
