// Package wakeword runs continuous, on-device keyword spotting over the
// captured audio stream.
//
// The detector is a serialized worker: a mutex guarantees that ProcessFrame,
// UpdateKeywords, and Shutdown never interleave. Keywords are compiled from a
// fixed lexicon at initialization and written to a transient keywords file
// the streaming decoder is bound to; the file is deleted again on shutdown.
package wakeword

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/quill/pkg/audio"
	"github.com/MrWong99/quill/pkg/provider/kws"
	"github.com/MrWong99/quill/pkg/provider/kws/sherpa"
)

var (
	// ErrModelNotFound is returned by Initialize when a model asset path
	// does not exist.
	ErrModelNotFound = errors.New("wakeword: model assets not found")

	// ErrInvalidKeywords is returned by Initialize when no enabled keyword
	// survives compilation.
	ErrInvalidKeywords = errors.New("wakeword: no valid keywords")

	// ErrInitializationFailed wraps decoder construction failures.
	ErrInitializationFailed = errors.New("wakeword: initialization failed")

	// ErrProcessingFailed wraps decode failures during ProcessFrame.
	ErrProcessingFailed = errors.New("wakeword: processing failed")
)

// nominalConfidence is reported on detections. The decoder's keyword match
// is binary, so there is no real confidence gradient to surface.
const nominalConfidence = 1.0

// maxDecodeSteps bounds the drain loop per frame so a misbehaving decoder
// cannot stall the audio pipeline.
const maxDecodeSteps = 32

// ModelAssets locates the keyword-spotting model on disk.
type ModelAssets struct {
	Encoder string
	Decoder string
	Joiner  string
	Tokens  string

	// Lexicon is the phrase→token vocabulary keywords are compiled against.
	Lexicon string
}

// paths returns all asset paths for existence validation.
func (a ModelAssets) paths() []string {
	return []string{a.Encoder, a.Decoder, a.Joiner, a.Tokens, a.Lexicon}
}

// DetectionResult is emitted once per detected utterance.
type DetectionResult struct {
	// Keyword is the matched wake phrase.
	Keyword Keyword

	// Confidence is a fixed nominal value; the decoder match is binary.
	Confidence float64

	// Timestamp is when the detection was committed.
	Timestamp time.Time
}

// EngineFactory constructs the streaming decoder. Tests inject a factory
// returning a mock engine; production uses the sherpa-onnx spotter.
type EngineFactory func(cfg kws.Config) (kws.Engine, error)

// Option is a functional option for configuring a [Detector].
type Option func(*Detector)

// WithEngineFactory overrides the decoder construction. Intended for tests.
func WithEngineFactory(f EngineFactory) Option {
	return func(d *Detector) { d.factory = f }
}

// WithSampleRate sets the expected audio sample rate in Hz. Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(d *Detector) { d.sampleRate = rate }
}

// Detector spots configured wake phrases in the live audio stream. All
// methods are safe for concurrent use, but calls are serialized — at most one
// operation runs at a time.
type Detector struct {
	mu sync.Mutex

	factory    EngineFactory
	sampleRate int

	// Set while initialized.
	engine       kws.Engine
	stream       kws.Stream
	keywordsPath string
	assets       ModelAssets
	compiled     []compiledKeyword
	byPhrase     map[string]Keyword

	detections int64
}

// New creates an uninitialized Detector.
func New(opts ...Option) *Detector {
	d := &Detector{
		sampleRate: 16000,
		factory: func(cfg kws.Config) (kws.Engine, error) {
			return sherpa.New(cfg)
		},
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Initialize validates the model assets, compiles the keyword set, writes
// the transient keywords file, and constructs the streaming decoder.
// Re-initialization releases all existing decode state first; callers never
// observe a partially initialized detector.
func (d *Detector) Initialize(assets ModelAssets, keywords []Keyword) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Release any existing decoder before rebuilding.
	d.releaseLocked()

	for _, p := range assets.paths() {
		if p == "" {
			return fmt.Errorf("%w: empty asset path", ErrModelNotFound)
		}
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("%w: %q: %v", ErrModelNotFound, p, err)
		}
	}

	lex, err := LoadLexicon(assets.Lexicon)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInitializationFailed, err)
	}

	compiled := compileKeywords(keywords, lex)
	if len(compiled) == 0 {
		return ErrInvalidKeywords
	}

	path, err := writeKeywordsFile(compiled)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInitializationFailed, err)
	}

	engine, err := d.factory(kws.Config{
		SampleRate:   d.sampleRate,
		EncoderPath:  assets.Encoder,
		DecoderPath:  assets.Decoder,
		JoinerPath:   assets.Joiner,
		TokensPath:   assets.Tokens,
		KeywordsFile: path,
	})
	if err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("%w: construct decoder: %v", ErrInitializationFailed, err)
	}

	stream, err := engine.NewStream()
	if err != nil {
		_ = engine.Close()
		_ = os.Remove(path)
		return fmt.Errorf("%w: open decode stream: %v", ErrInitializationFailed, err)
	}

	d.engine = engine
	d.stream = stream
	d.keywordsPath = path
	d.assets = assets
	d.compiled = compiled
	d.byPhrase = make(map[string]Keyword, len(compiled))
	for _, c := range compiled {
		d.byPhrase[strings.ToLower(c.Phrase)] = c.Keyword
	}

	slog.Info("wake-word detector initialized",
		"keywords", len(compiled),
		"sample_rate", d.sampleRate,
	)
	return nil
}

// ProcessFrame feeds one frame into the decoder and drains all
// fully-decoded steps. It returns a non-nil result exactly once per detected
// utterance; the decoder state is reset immediately after a match so one
// continuous utterance cannot fire twice.
//
// Returns (nil, nil) when the detector is not initialized or the frame is
// empty.
func (d *Detector) ProcessFrame(frame audio.Frame) (*DetectionResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stream == nil || len(frame.Samples) == 0 {
		return nil, nil
	}

	if err := d.stream.AcceptWaveform(frame.SampleRate, frame.Samples); err != nil {
		return nil, fmt.Errorf("%w: accept waveform: %v", ErrProcessingFailed, err)
	}

	for steps := 0; steps < maxDecodeSteps && d.stream.IsReady(); steps++ {
		if err := d.stream.Decode(); err != nil {
			return nil, fmt.Errorf("%w: decode: %v", ErrProcessingFailed, err)
		}
		r := d.stream.Result()
		if r.Keyword == "" {
			continue
		}

		d.detections++
		d.stream.Reset()

		kw, ok := d.byPhrase[strings.ToLower(r.Keyword)]
		if !ok {
			kw = Keyword{Phrase: r.Keyword, Enabled: true}
		}
		return &DetectionResult{
			Keyword:    kw,
			Confidence: nominalConfidence,
			Timestamp:  frame.Timestamp,
		}, nil
	}

	return nil, nil
}

// UpdateKeywords re-initializes the detector with a new keyword set against
// the previously supplied model assets.
func (d *Detector) UpdateKeywords(keywords []Keyword) error {
	d.mu.Lock()
	assets := d.assets
	initialized := d.stream != nil
	d.mu.Unlock()

	if !initialized {
		return fmt.Errorf("%w: detector not initialized", ErrInitializationFailed)
	}
	return d.Initialize(assets, keywords)
}

// Shutdown signals end-of-stream, releases all native decode resources, and
// deletes the transient keywords file. Idempotent.
func (d *Detector) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.releaseLocked()
	return nil
}

// Detections returns the number of keyword detections since creation.
func (d *Detector) Detections() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.detections
}

// releaseLocked tears down decoder state. Callers must hold d.mu.
func (d *Detector) releaseLocked() {
	if d.stream != nil {
		d.stream.InputFinished()
		if err := d.stream.Close(); err != nil {
			slog.Warn("wakeword: close decode stream", "err", err)
		}
		d.stream = nil
	}
	if d.engine != nil {
		if err := d.engine.Close(); err != nil {
			slog.Warn("wakeword: close engine", "err", err)
		}
		d.engine = nil
	}
	if d.keywordsPath != "" {
		if err := os.Remove(d.keywordsPath); err != nil && !os.IsNotExist(err) {
			slog.Warn("wakeword: remove keywords file", "path", d.keywordsPath, "err", err)
		}
		d.keywordsPath = ""
	}
	d.compiled = nil
	d.byPhrase = nil
}

// compileKeywords filters keywords to enabled entries and compiles each
// phrase against the lexicon. Unmapped phrases are dropped with a warning —
// a partial keyword set still works.
func compileKeywords(keywords []Keyword, lex Lexicon) []compiledKeyword {
	var compiled []compiledKeyword
	for _, kw := range keywords {
		if !kw.Enabled || strings.TrimSpace(kw.Phrase) == "" {
			continue
		}
		tokens, unknown := lex.compile(kw.Phrase)
		if unknown != "" {
			args := []any{"phrase", kw.Phrase, "word", unknown}
			if s := lex.suggest(unknown); s != "" {
				args = append(args, "closest_known_word", s)
			}
			slog.Warn("skipping wake phrase with no lexicon mapping", args...)
			continue
		}
		compiled = append(compiled, compiledKeyword{Keyword: kw, tokens: tokens})
	}
	return compiled
}

// writeKeywordsFile writes the compiled keyword specification to a transient
// file, one keyword per line, and returns its path.
func writeKeywordsFile(compiled []compiledKeyword) (string, error) {
	f, err := os.CreateTemp("", "quill-keywords-*.txt")
	if err != nil {
		return "", fmt.Errorf("create keywords file: %w", err)
	}

	var b strings.Builder
	for _, c := range compiled {
		b.WriteString(c.specLine())
		b.WriteByte('\n')
	}
	if _, err := f.WriteString(b.String()); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("write keywords file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("close keywords file: %w", err)
	}
	return f.Name(), nil
}
