// Package sherpa implements kws.Engine using the sherpa-onnx keyword spotter
// (CGO bindings). The transducer model is loaded once per engine; each
// [kws.Stream] wraps its own native online stream.
package sherpa

import (
	"errors"
	"fmt"
	"sync"

	sherpaonnx "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"github.com/MrWong99/quill/pkg/provider/kws"
)

const (
	defaultMaxActivePaths    = 4
	defaultNumTrailingBlanks = 1
	defaultBoostScore        = 1.0
	defaultThreshold         = 0.25

	// featureDim is fixed by the sherpa-onnx keyword-spotting models.
	featureDim = 80
)

// Engine implements kws.Engine backed by a sherpa-onnx keyword spotter.
type Engine struct {
	mu      sync.Mutex
	spotter *sherpaonnx.KeywordSpotter
	closed  bool
}

// New loads the keyword spotter described by cfg. The caller must Close the
// returned engine to release the native model.
func New(cfg kws.Config) (*Engine, error) {
	if cfg.KeywordsFile == "" {
		return nil, errors.New("sherpa: keywords file must not be empty")
	}

	boost := cfg.BoostScore
	if boost == 0 {
		boost = defaultBoostScore
	}
	threshold := cfg.Threshold
	if threshold == 0 {
		threshold = defaultThreshold
	}
	maxPaths := cfg.MaxActivePaths
	if maxPaths == 0 {
		maxPaths = defaultMaxActivePaths
	}
	trailing := cfg.NumTrailingBlanks
	if trailing == 0 {
		trailing = defaultNumTrailingBlanks
	}

	spotterCfg := sherpaonnx.KeywordSpotterConfig{
		FeatConfig: sherpaonnx.FeatureConfig{
			SampleRate: cfg.SampleRate,
			FeatureDim: featureDim,
		},
		ModelConfig: sherpaonnx.OnlineModelConfig{
			Transducer: sherpaonnx.OnlineTransducerModelConfig{
				Encoder: cfg.EncoderPath,
				Decoder: cfg.DecoderPath,
				Joiner:  cfg.JoinerPath,
			},
			Tokens:     cfg.TokensPath,
			NumThreads: 1,
			Provider:   "cpu",
		},
		MaxActivePaths:    maxPaths,
		NumTrailingBlanks: trailing,
		KeywordsScore:     boost,
		KeywordsThreshold: threshold,
		KeywordsFile:      cfg.KeywordsFile,
	}

	spotter := sherpaonnx.NewKeywordSpotter(&spotterCfg)
	if spotter == nil {
		return nil, fmt.Errorf("sherpa: failed to create keyword spotter from %q", cfg.KeywordsFile)
	}

	return &Engine{spotter: spotter}, nil
}

// NewStream creates a native decode stream bound to the engine's keywords.
func (e *Engine) NewStream() (kws.Stream, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, kws.ErrEngineClosed
	}
	ns := sherpaonnx.NewKeywordStream(e.spotter)
	if ns == nil {
		return nil, errors.New("sherpa: failed to create keyword stream")
	}
	return &stream{engine: e, stream: ns}, nil
}

// Close releases the native spotter. Idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	sherpaonnx.DeleteKeywordSpotter(e.spotter)
	e.spotter = nil
	return nil
}

// stream wraps a native sherpa-onnx online stream. Not safe for concurrent
// use, matching the kws.Stream contract.
type stream struct {
	engine *Engine
	stream *sherpaonnx.OnlineStream
	closed bool
	result kws.Result
}

func (s *stream) AcceptWaveform(sampleRate int, samples []float32) error {
	if s.closed {
		return kws.ErrEngineClosed
	}
	s.stream.AcceptWaveform(sampleRate, samples)
	return nil
}

func (s *stream) IsReady() bool {
	if s.closed {
		return false
	}
	return s.engine.spotter.IsReady(s.stream)
}

func (s *stream) Decode() error {
	if s.closed {
		return kws.ErrEngineClosed
	}
	s.engine.spotter.Decode(s.stream)
	r := s.engine.spotter.GetResult(s.stream)
	if r == nil {
		s.result = kws.Result{}
		return nil
	}
	s.result = kws.Result{Keyword: r.Keyword, Tokens: r.Tokens}
	return nil
}

func (s *stream) Result() kws.Result { return s.result }

func (s *stream) Reset() {
	if s.closed {
		return
	}
	s.engine.spotter.Reset(s.stream)
	s.result = kws.Result{}
}

func (s *stream) InputFinished() {
	if s.closed {
		return
	}
	s.stream.InputFinished()
}

func (s *stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	sherpaonnx.DeleteOnlineStream(s.stream)
	s.stream = nil
	return nil
}

// Compile-time interface assertions.
var (
	_ kws.Engine = (*Engine)(nil)
	_ kws.Stream = (*stream)(nil)
)
