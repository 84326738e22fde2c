// Package config provides the configuration schema, loader, and file watcher
// for the Quill dictation pipeline.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Quill.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Audio         AudioConfig         `yaml:"audio"`
	Trigger       TriggerConfig       `yaml:"trigger"`
	WakeWord      WakeWordConfig      `yaml:"wake_word"`
	Capture       CaptureConfig       `yaml:"capture"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Insert        InsertConfig        `yaml:"insert"`
	Stats         StatsConfig         `yaml:"stats"`
}

// ServerConfig holds the observability listener and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address serving /metrics and health endpoints
	// (e.g., "127.0.0.1:9090"). Empty disables the listener.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig selects and shapes the capture device.
type AudioConfig struct {
	// Device is the capture device name. Empty selects the system default.
	Device string `yaml:"device"`

	// SampleRate is the capture rate in Hz. Default 16000.
	SampleRate int `yaml:"sample_rate"`

	// FrameMillis is the frame cadence in milliseconds. Default 30.
	FrameMillis int `yaml:"frame_millis"`
}

// TriggerConfig configures the manual hotkey trigger.
type TriggerConfig struct {
	// Binding is the hotkey combination, e.g. "ctrl+shift+m".
	Binding string `yaml:"binding"`

	// Mode is "toggle" or "hold".
	Mode string `yaml:"mode"`
}

// WakeWordConfig configures the spoken trigger.
type WakeWordConfig struct {
	// Enabled turns wake-word monitoring on.
	Enabled bool `yaml:"enabled"`

	// ModelDir is the directory holding the keyword-spotting model
	// (encoder.onnx, decoder.onnx, joiner.onnx, tokens.txt, lexicon.txt).
	ModelDir string `yaml:"model_dir"`

	// Keywords lists the trigger phrases.
	Keywords []KeywordConfig `yaml:"keywords"`
}

// KeywordConfig is one wake phrase.
type KeywordConfig struct {
	// Phrase is the spoken trigger text.
	Phrase string `yaml:"phrase"`

	// Enabled turns this phrase on. Disabled phrases stay in the file for
	// easy re-activation.
	Enabled bool `yaml:"enabled"`

	// BoostScore biases the decoder towards this phrase. 0 uses the
	// engine default.
	BoostScore float64 `yaml:"boost_score"`

	// Threshold is the per-phrase trigger threshold. 0 uses the engine
	// default.
	Threshold float64 `yaml:"threshold"`
}

// CaptureConfig tunes the recording session.
type CaptureConfig struct {
	// Sensitivity is the silence threshold in the range [0.1, 1.0].
	Sensitivity float64 `yaml:"sensitivity"`

	// SilenceWindowMillis is how much consecutive silence stops capture,
	// in milliseconds. Range [500, 3000], default 1500.
	SilenceWindowMillis int `yaml:"silence_window_millis"`

	// MaxDurationSeconds caps a single capture, in seconds. Default 300.
	MaxDurationSeconds int `yaml:"max_duration_seconds"`
}

// SilenceWindow returns the silence window as a duration, applying the
// default when unset.
func (c CaptureConfig) SilenceWindow() time.Duration {
	if c.SilenceWindowMillis == 0 {
		return 1500 * time.Millisecond
	}
	return time.Duration(c.SilenceWindowMillis) * time.Millisecond
}

// MaxDuration returns the capture cap as a duration, applying the default
// when unset.
func (c CaptureConfig) MaxDuration() time.Duration {
	if c.MaxDurationSeconds == 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.MaxDurationSeconds) * time.Second
}

// TranscriptionConfig configures the speech-to-text engine.
type TranscriptionConfig struct {
	// ModelPath is the path to the inference model file.
	ModelPath string `yaml:"model_path"`

	// Language is the transcription language code (e.g., "en").
	Language string `yaml:"language"`

	// Translate requests translation to English instead of transcription.
	Translate bool `yaml:"translate"`
}

// InsertConfig configures text delivery.
type InsertConfig struct {
	// Tool is the keystroke injection binary. Empty uses the default.
	Tool string `yaml:"tool"`
}

// StatsConfig configures the statistics store.
type StatsConfig struct {
	// DBPath is the SQLite file recording per-session statistics. Empty
	// disables statistics.
	DBPath string `yaml:"db_path"`

	// RetentionDays prunes records older than this many days. 0 keeps
	// everything.
	RetentionDays int `yaml:"retention_days"`
}
