// Package mock provides a call-recording test double for stt.Provider.
//
// Script the result and inspect the submitted audio:
//
//	p := &mock.Provider{Result: stt.Result{Text: "hello world", Confidence: 0.95}}
//	res, _ := p.Transcribe(ctx, samples, "en")
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/quill/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Samples is a copy of the audio passed to Transcribe.
	Samples []float32

	// Language is the language tag passed to Transcribe.
	Language string

	// Start and End bracket the call, including any scripted Delay.
	Start time.Time
	End   time.Time
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by every Transcribe call.
	Result stt.Result

	// TranscribeErr, if non-nil, is returned by every Transcribe call.
	TranscribeErr error

	// Delay makes each Transcribe call block for the given duration,
	// simulating inference time. Useful for serialization tests.
	Delay time.Duration

	// Multilingual is returned by IsMultilingual.
	Multilingual bool

	// TranscribeCalls records every call to Transcribe in order.
	TranscribeCalls []TranscribeCall

	// CloseCalls counts Close invocations.
	CloseCalls int
}

// Transcribe records the call, sleeps for Delay, and returns Result,
// TranscribeErr.
func (p *Provider) Transcribe(ctx context.Context, samples []float32, language string) (stt.Result, error) {
	start := time.Now()
	if p.Delay > 0 {
		select {
		case <-time.After(p.Delay):
		case <-ctx.Done():
			return stt.Result{}, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]float32, len(samples))
	copy(cp, samples)
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{
		Samples:  cp,
		Language: language,
		Start:    start,
		End:      time.Now(),
	})
	if p.TranscribeErr != nil {
		return stt.Result{}, p.TranscribeErr
	}
	return p.Result, nil
}

// IsMultilingual returns the scripted Multilingual flag.
func (p *Provider) IsMultilingual() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Multilingual
}

// Close records the call.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CloseCalls++
	return nil
}

// Calls returns a snapshot of recorded Transcribe calls.
func (p *Provider) Calls() []TranscribeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]TranscribeCall, len(p.TranscribeCalls))
	copy(out, p.TranscribeCalls)
	return out
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
