// Package kws defines the Engine interface for streaming keyword-spotting
// backends.
//
// A keyword-spotting engine wraps a streaming decoder (e.g., a sherpa-onnx
// transducer model) that consumes raw audio samples and fires when one of a
// fixed set of compiled keywords is recognised. The engine is bound at
// construction time to a keywords file listing the compiled keywords, one per
// line:
//
//	TOKEN1 TOKEN2 ... :boostScore #threshold
//
// Detection is binary — the decoder either matches a keyword or it doesn't —
// so results carry no confidence gradient.
//
// Engines own native decode resources. A [Stream] must not be shared across
// goroutines; the caller is responsible for serialising access.
package kws

import "errors"

// ErrEngineClosed is returned by Stream operations after the engine or stream
// has been closed.
var ErrEngineClosed = errors.New("kws: engine closed")

// Config holds the model assets and decode parameters for an [Engine].
type Config struct {
	// SampleRate is the audio sample rate in Hz the model was trained for.
	// Typically 16000.
	SampleRate int

	// EncoderPath, DecoderPath, and JoinerPath locate the transducer model
	// components on disk.
	EncoderPath string
	DecoderPath string
	JoinerPath  string

	// TokensPath locates the token vocabulary the model decodes into.
	TokensPath string

	// KeywordsFile is the compiled keyword specification the decoder is
	// bound to. One keyword per line in the format documented above.
	KeywordsFile string

	// MaxActivePaths bounds the beam search width. Zero selects the backend
	// default.
	MaxActivePaths int

	// NumTrailingBlanks is the number of trailing blank symbols required
	// before a keyword is committed. Zero selects the backend default.
	NumTrailingBlanks int

	// BoostScore is the default boosting score for keywords that do not
	// carry a per-keyword :boost annotation.
	BoostScore float32

	// Threshold is the default trigger threshold for keywords that do not
	// carry a per-keyword #threshold annotation.
	Threshold float32
}

// Result is the outcome of a single decode step. Keyword is empty when no
// keyword fired on that step.
type Result struct {
	// Keyword is the matched phrase as listed in the keywords file.
	Keyword string

	// Tokens are the decoded token strings making up the match.
	Tokens []string
}

// Stream is a live keyword-spotting decode stream. It is stateful: samples
// accumulate until enough feature frames exist for a decode step. A Stream
// must not be used from multiple goroutines.
type Stream interface {
	// AcceptWaveform feeds normalized mono samples into the decoder.
	AcceptWaveform(sampleRate int, samples []float32) error

	// IsReady reports whether a fully-buffered decode step is available.
	// Callers drain steps in a loop:
	//
	//	for s.IsReady() {
	//		s.Decode()
	//		if r := s.Result(); r.Keyword != "" { ... }
	//	}
	IsReady() bool

	// Decode runs one decode step over the buffered features.
	Decode() error

	// Result returns the keyword committed by the most recent decode step.
	// The zero Result means no keyword fired.
	Result() Result

	// Reset clears all decoder state for this stream. Call after a detection
	// so one continuous utterance cannot match twice.
	Reset()

	// InputFinished signals end-of-stream so remaining buffered audio can be
	// decoded.
	InputFinished()

	// Close releases the native stream. Calling Close more than once is safe
	// and returns nil.
	Close() error
}

// Engine is the factory for keyword-spotting streams. Implementations load
// their model once at construction and share it across streams.
type Engine interface {
	// NewStream creates a decode stream bound to the engine's keyword set.
	NewStream() (Stream, error)

	// Close releases the model and all native resources. Calling Close more
	// than once is safe and returns nil.
	Close() error
}
