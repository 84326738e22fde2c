package app

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/quill/internal/config"
	"github.com/MrWong99/quill/internal/insert"
	insertmock "github.com/MrWong99/quill/internal/insert/mock"
	"github.com/MrWong99/quill/internal/state"
	statsmock "github.com/MrWong99/quill/internal/stats/mock"
	"github.com/MrWong99/quill/internal/transcribe"
	trigmock "github.com/MrWong99/quill/internal/trigger/mock"
	"github.com/MrWong99/quill/internal/wakeword"
	"github.com/MrWong99/quill/pkg/audio"
	audiomock "github.com/MrWong99/quill/pkg/audio/mock"
	"github.com/MrWong99/quill/pkg/provider/kws"
	kwsmock "github.com/MrWong99/quill/pkg/provider/kws/mock"
	"github.com/MrWong99/quill/pkg/provider/stt"
	sttmock "github.com/MrWong99/quill/pkg/provider/stt/mock"
)

// ---- helpers ----------------------------------------------------------------

const testRate = 16000

func testConfig() *config.Config {
	return &config.Config{
		Trigger: config.TriggerConfig{Mode: "hold"},
		Capture: config.CaptureConfig{
			Sensitivity:         0.5,
			SilenceWindowMillis: 1500,
			MaxDurationSeconds:  300,
		},
		Transcription: config.TranscriptionConfig{
			ModelPath: "unused.bin",
			Language:  "en",
		},
	}
}

type fixture struct {
	app    *App
	source *audiomock.Source
	trig   *trigmock.Source
	engine *sttmock.Provider
	sink   *insertmock.Sink
	stats  *statsmock.Sink
}

// newFixture builds an App over mocks, starts Run on a background goroutine,
// and tears everything down at test cleanup.
func newFixture(t *testing.T, cfg *config.Config, extra ...Option) *fixture {
	t.Helper()

	f := &fixture{
		trig:   trigmock.NewSource(),
		engine: &sttmock.Provider{Result: stt.Result{Text: "hello world", Confidence: 0.95}},
		sink:   &insertmock.Sink{SinkName: "typing", Result: insert.Result{Outcome: insert.Delivered, Target: "Editor"}},
		stats:  &statsmock.Sink{},
	}

	opts := []Option{
		WithSourceFactory(func(sink func(audio.Frame)) (audio.Source, error) {
			f.source = audiomock.NewSource(sink)
			return f.source, nil
		}),
		WithTranscriber(f.engine),
		WithInsertSink(f.sink),
		WithStatsSink(f.stats),
		WithTriggerSource(f.trig),
	}
	opts = append(opts, extra...)

	app, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.app = app

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		app.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
		defer shutdownCancel()
		app.Shutdown(shutdownCtx)
	})

	return f
}

func speechFrame(amplitude float32, d time.Duration) audio.Frame {
	n := int(d.Seconds() * testRate)
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = amplitude
	}
	return audio.Frame{Samples: samples, SampleRate: testRate, Timestamp: time.Now()}
}

// feed pushes frames totalling d of audio at the given amplitude.
func (f *fixture) feed(t *testing.T, amplitude float32, d time.Duration) {
	t.Helper()
	const step = 100 * time.Millisecond
	for fed := time.Duration(0); fed < d; fed += step {
		if !f.source.Push(speechFrame(amplitude, step)) {
			t.Fatal("frame push failed, source not running")
		}
	}
}

func waitStatus(t *testing.T, store *state.Store, want state.Status) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if store.Current().Status == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("status = %v, want %v", store.Current().Status, want)
}

func waitInserted(t *testing.T, sink *insertmock.Sink, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, text := range sink.Inserted() {
			if text == want {
				return
			}
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("inserted = %v, want to contain %q", sink.Inserted(), want)
}

// writeKWSAssets creates placeholder model files with a lexicon covering the
// test wake phrase.
func writeKWSAssets(t *testing.T) wakeword.ModelAssets {
	t.Helper()
	dir := t.TempDir()

	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		return path
	}

	lexicon := strings.Join([]string{
		"hey HH EY",
		"quill K W IH L",
	}, "\n")

	return wakeword.ModelAssets{
		Encoder: write("encoder.onnx", "stub"),
		Decoder: write("decoder.onnx", "stub"),
		Joiner:  write("joiner.onnx", "stub"),
		Tokens:  write("tokens.txt", "stub"),
		Lexicon: write("lexicon.txt", lexicon),
	}
}

// ---- pipeline wiring --------------------------------------------------------

func TestRun_HotkeySession_DeliversTranscript(t *testing.T) {
	f := newFixture(t, testConfig())

	f.trig.Press()
	waitStatus(t, f.app.States(), state.Capturing)

	f.feed(t, 0.8, time.Second)
	// Let the fan-out drain before releasing so every frame reaches the
	// controller ahead of the release event.
	time.Sleep(100 * time.Millisecond)
	f.trig.Release(0)

	waitInserted(t, f.sink, "hello world")

	calls := f.engine.Calls()
	if len(calls) != 1 {
		t.Fatalf("transcribe calls = %d, want 1", len(calls))
	}
	if calls[0].Language != "en" {
		t.Errorf("language = %q, want %q", calls[0].Language, "en")
	}
	if len(calls[0].Samples) != testRate {
		t.Errorf("samples = %d, want %d", len(calls[0].Samples), testRate)
	}
}

func TestRun_DeviceFault_CancelsCapture(t *testing.T) {
	f := newFixture(t, testConfig())

	f.trig.Press()
	waitStatus(t, f.app.States(), state.Capturing)
	f.feed(t, 0.8, 500*time.Millisecond)

	f.source.InjectFault(audio.ErrDeviceDisconnected)
	waitStatus(t, f.app.States(), state.Idle)

	if n := len(f.engine.Calls()); n != 0 {
		t.Errorf("transcribe calls = %d, want 0 after device loss", n)
	}
	if n := len(f.sink.Inserted()); n != 0 {
		t.Errorf("insertions = %d, want 0 after device loss", n)
	}
}

func TestRun_WakeWordDetection_StartsCapture(t *testing.T) {
	stream := &kwsmock.Stream{}
	stream.QueueResult(kws.Result{Keyword: "hey quill"})

	det := wakeword.New(wakeword.WithEngineFactory(func(_ kws.Config) (kws.Engine, error) {
		return &kwsmock.Engine{Stream: stream}, nil
	}))
	if err := det.Initialize(writeKWSAssets(t), []wakeword.Keyword{{Phrase: "hey quill", Enabled: true}}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	f := newFixture(t, testConfig(), WithDetector(det))

	waitStatus(t, f.app.States(), state.Monitoring)

	// The first frame surfaces the scripted detection; the rest is speech
	// followed by enough silence to auto-stop.
	f.feed(t, 0.8, time.Second)
	waitStatus(t, f.app.States(), state.Capturing)
	f.feed(t, 0.0, 1600*time.Millisecond)

	waitInserted(t, f.sink, "hello world")

	recs := f.stats.Records()
	if len(recs) != 1 {
		t.Fatalf("stats records = %d, want 1", len(recs))
	}
	if recs[0].Trigger != "wake-word" {
		t.Errorf("trigger = %q, want %q", recs[0].Trigger, "wake-word")
	}
}

func TestRun_StatsRecorded(t *testing.T) {
	f := newFixture(t, testConfig())

	f.trig.Press()
	waitStatus(t, f.app.States(), state.Capturing)
	f.feed(t, 0.8, time.Second)
	f.trig.Release(0)
	waitInserted(t, f.sink, "hello world")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(f.stats.Records()) == 0 {
		time.Sleep(2 * time.Millisecond)
	}

	recs := f.stats.Records()
	if len(recs) != 1 {
		t.Fatalf("stats records = %d, want 1", len(recs))
	}
	if recs[0].Outcome != "completed" {
		t.Errorf("outcome = %q, want %q", recs[0].Outcome, "completed")
	}
	if recs[0].WordCount != 2 {
		t.Errorf("word count = %d, want 2", recs[0].WordCount)
	}
}

// ---- configuration ----------------------------------------------------------

func TestNew_NoTriggerAndNoWakeWord_Fails(t *testing.T) {
	cfg := testConfig()
	engine := &sttmock.Provider{}

	_, err := New(cfg,
		WithSourceFactory(func(sink func(audio.Frame)) (audio.Source, error) {
			return audiomock.NewSource(sink), nil
		}),
		WithTranscriber(engine),
		WithInsertSink(&insertmock.Sink{SinkName: "typing"}),
		WithStatsSink(&statsmock.Sink{}),
	)
	if err == nil {
		t.Fatal("expected New to fail without any trigger path")
	}
}

func TestNew_WakeWordInitFailure_KeepsHotkeyPath(t *testing.T) {
	cfg := testConfig()
	cfg.WakeWord.Enabled = true
	cfg.WakeWord.ModelDir = t.TempDir() // no model assets inside
	cfg.WakeWord.Keywords = []config.KeywordConfig{{Phrase: "hey quill", Enabled: true}}

	f := newFixture(t, cfg)
	if f.app.detector != nil {
		t.Fatal("expected detector to stay nil after failed initialization")
	}

	f.trig.Press()
	waitStatus(t, f.app.States(), state.Capturing)
	f.feed(t, 0.8, time.Second)
	time.Sleep(100 * time.Millisecond)
	f.trig.Release(0)
	waitInserted(t, f.sink, "hello world")
}

func TestNew_WakeWordInitFailureWithoutHotkey_Fails(t *testing.T) {
	cfg := testConfig()
	cfg.WakeWord.Enabled = true
	cfg.WakeWord.ModelDir = t.TempDir()
	engine := &sttmock.Provider{}

	_, err := New(cfg,
		WithSourceFactory(func(sink func(audio.Frame)) (audio.Source, error) {
			return audiomock.NewSource(sink), nil
		}),
		WithTranscriber(engine),
		WithInsertSink(&insertmock.Sink{SinkName: "typing"}),
		WithStatsSink(&statsmock.Sink{}),
	)
	if err == nil {
		t.Fatal("expected New to fail when the detector breaks and no binding exists")
	}
}

func TestApplyConfigChange_SwitchesLanguage(t *testing.T) {
	svc := transcribe.NewService(func(language string) (stt.Provider, error) {
		return &sttmock.Provider{Multilingual: true}, nil
	})

	f := newFixture(t, testConfig(), WithTranscriber(svc))

	if got := svc.Language(); got != "en" {
		t.Fatalf("initial language = %q, want %q", got, "en")
	}

	old := testConfig()
	updated := testConfig()
	updated.Transcription.Language = "de"
	f.app.ApplyConfigChange(old, updated)

	if got := svc.Language(); got != "de" {
		t.Errorf("language after reload = %q, want %q", got, "de")
	}
}

func TestApplyConfigChange_AdjustsLogLevel(t *testing.T) {
	var lv slog.LevelVar
	lv.Set(slog.LevelInfo)

	f := newFixture(t, testConfig(), WithLogLevelVar(&lv))

	old := testConfig()
	updated := testConfig()
	updated.Server.LogLevel = config.LogDebug
	f.app.ApplyConfigChange(old, updated)

	if got := lv.Level(); got != slog.LevelDebug {
		t.Errorf("level = %v, want %v", got, slog.LevelDebug)
	}
}

func TestApplyConfigChange_NoChange_IsNoOp(t *testing.T) {
	var lv slog.LevelVar
	lv.Set(slog.LevelWarn)

	f := newFixture(t, testConfig(), WithLogLevelVar(&lv))
	f.app.ApplyConfigChange(testConfig(), testConfig())

	if got := lv.Level(); got != slog.LevelWarn {
		t.Errorf("level = %v, want unchanged %v", got, slog.LevelWarn)
	}
}

// ---- lifecycle --------------------------------------------------------------

func TestShutdown_Idempotent(t *testing.T) {
	f := newFixture(t, testConfig())

	ctx := context.Background()
	if err := f.app.Shutdown(ctx); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := f.app.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}

	if f.trig.CloseCalls != 1 {
		t.Errorf("trigger Close calls = %d, want 1", f.trig.CloseCalls)
	}
	if f.source.StopCalls != 1 {
		t.Errorf("source Stop calls = %d, want 1", f.source.StopCalls)
	}
}
