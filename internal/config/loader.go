package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/MrWong99/quill/internal/trigger"
	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Audio
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must not be negative", cfg.Audio.SampleRate))
	}
	if cfg.Audio.FrameMillis < 0 {
		errs = append(errs, fmt.Errorf("audio.frame_millis %d must not be negative", cfg.Audio.FrameMillis))
	}

	// Trigger — the binding only needs to be structurally well-formed here;
	// conflicts with system shortcuts surface when the hotkey is registered.
	if cfg.Trigger.Binding != "" {
		if _, err := trigger.ParseBinding(cfg.Trigger.Binding); err != nil {
			errs = append(errs, fmt.Errorf("trigger.binding: %w", err))
		}
	}
	if cfg.Trigger.Mode != "" {
		if _, err := trigger.ParseMode(cfg.Trigger.Mode); err != nil {
			errs = append(errs, fmt.Errorf("trigger.mode: %w", err))
		}
	}

	// Wake word
	if cfg.WakeWord.Enabled {
		if cfg.WakeWord.ModelDir == "" {
			errs = append(errs, errors.New("wake_word.model_dir is required when wake_word.enabled is true"))
		}
		enabled := 0
		for i, kw := range cfg.WakeWord.Keywords {
			if kw.Phrase == "" {
				errs = append(errs, fmt.Errorf("wake_word.keywords[%d].phrase is required", i))
			}
			if kw.Threshold < 0 || kw.Threshold > 1 {
				errs = append(errs, fmt.Errorf("wake_word.keywords[%d].threshold %.2f is out of range [0, 1]", i, kw.Threshold))
			}
			if kw.Enabled {
				enabled++
			}
		}
		if enabled == 0 {
			slog.Warn("wake word is enabled but no keyword is; spoken triggering will be inactive")
		}
	}

	// Capture
	if cfg.Capture.Sensitivity == 0 {
		cfg.Capture.Sensitivity = 0.5
	}
	if cfg.Capture.Sensitivity < 0.1 || cfg.Capture.Sensitivity > 1.0 {
		errs = append(errs, fmt.Errorf("capture.sensitivity %.2f is out of range [0.1, 1.0]", cfg.Capture.Sensitivity))
	}
	if ms := cfg.Capture.SilenceWindowMillis; ms != 0 && (ms < 500 || ms > 3000) {
		errs = append(errs, fmt.Errorf("capture.silence_window_millis %d is out of range [500, 3000]", ms))
	}
	if cfg.Capture.MaxDurationSeconds < 0 {
		errs = append(errs, fmt.Errorf("capture.max_duration_seconds %d must not be negative", cfg.Capture.MaxDurationSeconds))
	}

	// Transcription
	if cfg.Transcription.ModelPath == "" {
		errs = append(errs, errors.New("transcription.model_path is required"))
	}
	if cfg.Transcription.Language == "" {
		slog.Warn("transcription.language is empty; the engine will auto-detect per utterance")
	}

	// Stats
	if cfg.Stats.RetentionDays < 0 {
		errs = append(errs, fmt.Errorf("stats.retention_days %d must not be negative", cfg.Stats.RetentionDays))
	}

	return errors.Join(errs...)
}
