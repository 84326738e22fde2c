// Package portaudio implements audio.Source on top of the PortAudio input
// API. Samples arrive from the device as float32 already in the canonical
// [-1, 1] range, so no format conversion happens on the capture path.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/quill/pkg/audio"
)

const (
	// defaultSampleRate matches what the whisper and keyword-spotting models
	// expect.
	defaultSampleRate = 16000

	// defaultFrameSize is the number of samples read per frame: 480 samples
	// at 16 kHz is a 30 ms cadence.
	defaultFrameSize = 480
)

// Config holds the capture parameters for a [Source].
type Config struct {
	// SampleRate in Hz. Defaults to 16000.
	SampleRate int

	// FrameSize is the number of samples per delivered frame.
	// Defaults to 480 (30 ms at 16 kHz).
	FrameSize int

	// DeviceName selects a specific input device by name. Empty means the
	// system default input.
	DeviceName string
}

// inputStream is the slice of the PortAudio stream API the capture path
// uses. Narrowing it to an interface keeps the fault handling exercisable
// without a physical device.
type inputStream interface {
	Read() error
	Stop() error
	Close() error
}

var _ inputStream = (*portaudio.Stream)(nil)

// Source captures microphone input through PortAudio and delivers frames to
// the sink it was constructed with. The capture loop runs on its own
// goroutine; the sink must not block.
type Source struct {
	cfg  Config
	sink func(audio.Frame)

	mu      sync.Mutex
	stream  inputStream
	running bool
	done    chan struct{}
	wg      sync.WaitGroup

	faults chan audio.Fault
}

// New creates a Source delivering frames to sink. PortAudio is initialised
// here and released when the source is stopped for the last time via
// [Source.Terminate].
func New(cfg Config, sink func(audio.Frame)) (*Source, error) {
	if sink == nil {
		return nil, errors.New("portaudio: sink must not be nil")
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = defaultSampleRate
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = defaultFrameSize
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	return &Source{
		cfg:    cfg,
		sink:   sink,
		faults: make(chan audio.Fault, 4),
	}, nil
}

// Start opens the input stream and begins delivering frames.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return audio.ErrAlreadyStarted
	}

	buffer := make([]float32, s.cfg.FrameSize)
	stream, err := s.openStream(buffer)
	if err != nil {
		return fmt.Errorf("portaudio: open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return fmt.Errorf("portaudio: start input stream: %w", err)
	}

	s.stream = stream
	s.running = true
	s.done = make(chan struct{})
	s.wg.Add(1)
	go s.captureLoop(ctx, stream, buffer, s.done)

	slog.Info("audio capture started",
		"sample_rate", s.cfg.SampleRate,
		"frame_size", s.cfg.FrameSize,
		"device", s.deviceLabel(),
	)
	return nil
}

// Stop halts capture and closes the stream. Idempotent.
func (s *Source) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.done)
	stream := s.stream
	s.stream = nil
	s.mu.Unlock()

	s.wg.Wait()

	var errs []error
	if err := stream.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("portaudio: stop stream: %w", err))
	}
	if err := stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("portaudio: close stream: %w", err))
	}
	return errors.Join(errs...)
}

// Faults returns the capture fault channel.
func (s *Source) Faults() <-chan audio.Fault { return s.faults }

// Terminate releases the PortAudio runtime. Call once when the process shuts
// down, after Stop.
func (s *Source) Terminate() error {
	return portaudio.Terminate()
}

// captureLoop reads device buffers and forwards them as frames until the
// source is stopped or the device fails.
func (s *Source) captureLoop(ctx context.Context, stream inputStream, buffer []float32, done <-chan struct{}) {
	defer s.wg.Done()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		default:
		}

		if err := stream.Read(); err != nil {
			select {
			case <-done:
				// Stop raced the read error; not a device fault.
				return
			default:
			}
			slog.Error("audio capture read failed, treating device as lost", "err", err)
			s.mu.Lock()
			s.running = false
			s.stream = nil
			s.mu.Unlock()
			// Release the native handle here; Stop() no longer owns it and a
			// later Start() must not find a dead stream behind it.
			if cerr := stream.Close(); cerr != nil {
				slog.Warn("closing input stream after device loss", "err", cerr)
			}
			select {
			case s.faults <- audio.Fault{
				Err:  fmt.Errorf("%w: %v", audio.ErrDeviceDisconnected, err),
				Time: time.Now(),
			}:
			default:
			}
			return
		}

		// The stream reuses buffer on the next Read, so hand a copy down.
		samples := make([]float32, len(buffer))
		copy(samples, buffer)
		s.sink(audio.Frame{
			Samples:    samples,
			SampleRate: s.cfg.SampleRate,
			Timestamp:  time.Now(),
		})
	}
}

// openStream opens either the named device or the system default input.
func (s *Source) openStream(buffer []float32) (*portaudio.Stream, error) {
	if s.cfg.DeviceName == "" || s.cfg.DeviceName == "default" {
		return portaudio.OpenDefaultStream(1, 0, float64(s.cfg.SampleRate), s.cfg.FrameSize, buffer)
	}

	device, err := findInputDevice(s.cfg.DeviceName)
	if err != nil {
		slog.Warn("configured audio device not found, falling back to default",
			"device", s.cfg.DeviceName, "err", err)
		return portaudio.OpenDefaultStream(1, 0, float64(s.cfg.SampleRate), s.cfg.FrameSize, buffer)
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: 1,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(s.cfg.SampleRate),
		FramesPerBuffer: s.cfg.FrameSize,
	}
	return portaudio.OpenStream(params, buffer)
}

// findInputDevice locates an input-capable PortAudio device by name.
func findInputDevice(name string) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	for _, dev := range devices {
		if dev.Name == name && dev.MaxInputChannels > 0 {
			return dev, nil
		}
	}
	return nil, fmt.Errorf("no input device named %q", name)
}

func (s *Source) deviceLabel() string {
	if s.cfg.DeviceName == "" {
		return "default"
	}
	return s.cfg.DeviceName
}

// Ensure Source implements audio.Source at compile time.
var _ audio.Source = (*Source)(nil)
