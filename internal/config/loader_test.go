package config

import (
	"strings"
	"testing"
	"time"
)

const validYAML = `
server:
  listen_addr: "127.0.0.1:9090"
  log_level: info
audio:
  device: ""
  sample_rate: 16000
  frame_millis: 30
trigger:
  binding: ctrl+shift+m
  mode: hold
wake_word:
  enabled: true
  model_dir: /opt/quill/kws
  keywords:
    - phrase: hey quill
      enabled: true
      boost_score: 2.0
      threshold: 0.35
capture:
  sensitivity: 0.5
  silence_window_millis: 1500
  max_duration_seconds: 300
transcription:
  model_path: /opt/quill/models/ggml-base.en.bin
  language: en
insert:
  tool: xdotool
stats:
  db_path: /var/lib/quill/stats.db
  retention_days: 90
`

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Trigger.Binding != "ctrl+shift+m" {
		t.Errorf("binding = %q", cfg.Trigger.Binding)
	}
	if !cfg.WakeWord.Enabled || len(cfg.WakeWord.Keywords) != 1 {
		t.Errorf("wake word = %+v", cfg.WakeWord)
	}
	if cfg.WakeWord.Keywords[0].Threshold != 0.35 {
		t.Errorf("threshold = %v", cfg.WakeWord.Keywords[0].Threshold)
	}
	if cfg.Capture.SilenceWindow() != 1500*time.Millisecond {
		t.Errorf("silence window = %v", cfg.Capture.SilenceWindow())
	}
	if cfg.Capture.MaxDuration() != 5*time.Minute {
		t.Errorf("max duration = %v", cfg.Capture.MaxDuration())
	}
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	yaml := `
transcription:
  model_path: /m.bin
  beam_width: 5
`
	if _, err := LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("unknown field accepted, want error")
	}
}

func TestValidate_CollectsAllFailures(t *testing.T) {
	cfg := &Config{
		Server:  ServerConfig{LogLevel: "loud"},
		Trigger: TriggerConfig{Binding: "m", Mode: "double-tap"},
		Capture: CaptureConfig{Sensitivity: 2.0, SilenceWindowMillis: 100},
	}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate succeeded, want error")
	}
	for _, fragment := range []string{
		"server.log_level",
		"trigger.binding",
		"trigger.mode",
		"capture.sensitivity",
		"capture.silence_window_millis",
		"transcription.model_path",
	} {
		if !strings.Contains(err.Error(), fragment) {
			t.Errorf("error does not mention %q: %v", fragment, err)
		}
	}
}

func TestValidate_DefaultsSensitivity(t *testing.T) {
	cfg := &Config{Transcription: TranscriptionConfig{ModelPath: "/m.bin"}}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Capture.Sensitivity != 0.5 {
		t.Errorf("defaulted sensitivity = %v, want 0.5", cfg.Capture.Sensitivity)
	}
}

func TestValidate_WakeWordRequiresModelDir(t *testing.T) {
	cfg := &Config{
		WakeWord:      WakeWordConfig{Enabled: true},
		Capture:       CaptureConfig{Sensitivity: 0.5},
		Transcription: TranscriptionConfig{ModelPath: "/m.bin"},
	}
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "wake_word.model_dir") {
		t.Fatalf("err = %v, want model_dir failure", err)
	}
}

func TestValidate_KeywordThresholdRange(t *testing.T) {
	cfg := &Config{
		WakeWord: WakeWordConfig{
			Enabled:  true,
			ModelDir: "/opt/kws",
			Keywords: []KeywordConfig{{Phrase: "hey quill", Enabled: true, Threshold: 1.5}},
		},
		Capture:       CaptureConfig{Sensitivity: 0.5},
		Transcription: TranscriptionConfig{ModelPath: "/m.bin"},
	}
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "threshold") {
		t.Fatalf("err = %v, want threshold failure", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/quill.yaml"); err == nil {
		t.Fatal("Load succeeded on missing file")
	}
}
