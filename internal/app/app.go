// Package app wires all Quill subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the capture pipeline until the context is
// cancelled, and Shutdown tears everything down in reverse-init order.
//
// For testing, inject mock implementations via functional options
// (WithSourceFactory, WithTranscriber, etc.). When an option is not
// provided, New creates real implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/quill/internal/config"
	"github.com/MrWong99/quill/internal/insert"
	"github.com/MrWong99/quill/internal/observe"
	"github.com/MrWong99/quill/internal/permission"
	"github.com/MrWong99/quill/internal/resilience"
	"github.com/MrWong99/quill/internal/session"
	"github.com/MrWong99/quill/internal/state"
	"github.com/MrWong99/quill/internal/stats"
	"github.com/MrWong99/quill/internal/transcribe"
	"github.com/MrWong99/quill/internal/trigger"
	"github.com/MrWong99/quill/internal/wakeword"
	"github.com/MrWong99/quill/pkg/audio"
	paudio "github.com/MrWong99/quill/pkg/audio/portaudio"
	"github.com/MrWong99/quill/pkg/provider/stt"
	"github.com/MrWong99/quill/pkg/provider/stt/whisper"
)

// pruneInterval is how often retention pruning runs while the app is up.
const pruneInterval = 24 * time.Hour

// SourceFactory builds the audio capture source. The factory receives the
// sink every captured frame must be delivered to.
type SourceFactory func(sink func(audio.Frame)) (audio.Source, error)

// App owns all subsystem lifetimes and orchestrates the Quill dictation
// pipeline: microphone frames fan out to the wake-word detector and the
// session controller, triggers open capture sessions, and finished captures
// flow through transcription into text insertion.
type App struct {
	cfg *config.Config

	metrics  *observe.Metrics
	levelVar *slog.LevelVar

	// Subsystems. Initialised in New, torn down in Shutdown.
	broadcaster *audio.Broadcaster
	source      audio.Source
	srcFactory  SourceFactory
	detector    *wakeword.Detector
	transcriber session.Transcriber
	service     *transcribe.Service
	triggerSrc  trigger.Source
	sink        insert.Sink
	statsSink   stats.Sink
	statsStore  *stats.SQLiteStore
	perms       permission.Provider
	states      *state.Store
	ctrl        *session.Controller

	// closers are called in reverse during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSourceFactory injects an audio source factory instead of opening the
// configured capture device.
func WithSourceFactory(f SourceFactory) Option {
	return func(a *App) { a.srcFactory = f }
}

// WithTranscriber injects a transcription engine instead of loading the
// configured model.
func WithTranscriber(t session.Transcriber) Option {
	return func(a *App) { a.transcriber = t }
}

// WithInsertSink injects a text sink instead of the typing/clipboard chain.
func WithInsertSink(s insert.Sink) Option {
	return func(a *App) { a.sink = s }
}

// WithStatsSink injects a statistics sink instead of opening the SQLite store.
func WithStatsSink(s stats.Sink) Option {
	return func(a *App) { a.statsSink = s }
}

// WithTriggerSource injects a trigger source instead of registering the
// configured hotkey.
func WithTriggerSource(s trigger.Source) Option {
	return func(a *App) { a.triggerSrc = s }
}

// WithDetector injects an initialised wake-word detector instead of loading
// the configured model directory.
func WithDetector(d *wakeword.Detector) Option {
	return func(a *App) { a.detector = d }
}

// WithPermissions injects a permission provider. Defaults to all-granted.
func WithPermissions(p permission.Provider) Option {
	return func(a *App) { a.perms = p }
}

// WithMetrics injects the metrics set shared with the HTTP listener.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevelVar hands the app the level var driving the process logger so
// config reloads can adjust verbosity at runtime.
func WithLogLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = lv }
}

// New creates an App by wiring all subsystems together. The config must have
// passed [config.Config.Validate]. Use Option functions to inject test
// doubles for any subsystem.
//
// New performs all initialisation synchronously: statistics store, insertion
// chain, transcription model load, wake-word model load, and hotkey parsing.
// The capture device is not opened until Run.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:    cfg,
		states: state.NewStore(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.perms == nil {
		a.perms = permission.AllGranted()
	}

	if err := a.initStats(); err != nil {
		return nil, fmt.Errorf("app: init stats: %w", err)
	}
	a.initInsert()
	if err := a.initTranscriber(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init transcriber: %w", err)
	}
	if err := a.initWakeWord(); err != nil {
		// A broken wake-word model must not take the hotkey path down with
		// it. The detector stays nil and initTrigger fails below when no
		// hotkey binding remains either.
		slog.Error("wake-word detector unavailable, continuing without spoken trigger", "err", err)
		a.states.SetError("wake-word detector failed to initialize")
	}
	if err := a.initTrigger(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init trigger: %w", err)
	}
	if err := a.initController(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init session controller: %w", err)
	}
	if err := a.initAudio(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init audio: %w", err)
	}

	return a, nil
}

// States returns the observable pipeline state store.
func (a *App) States() *state.Store { return a.states }

// StatsStore returns the SQLite statistics store, or nil when statistics are
// disabled or an external sink was injected.
func (a *App) StatsStore() *stats.SQLiteStore { return a.statsStore }

// Cancel abandons the active session, if any.
func (a *App) Cancel() { a.ctrl.Cancel() }

// initStats opens the SQLite store unless a sink was injected or statistics
// are disabled.
func (a *App) initStats() error {
	if a.statsSink != nil {
		return nil
	}
	if a.cfg.Stats.DBPath == "" {
		slog.Info("statistics disabled, no db_path configured")
		return nil
	}

	store, err := stats.NewSQLiteStore(a.cfg.Stats.DBPath)
	if err != nil {
		return err
	}
	a.statsStore = store
	a.statsSink = store
	a.closers = append(a.closers, store.Close)

	if days := a.cfg.Stats.RetentionDays; days > 0 {
		n, err := store.Prune(context.Background(), time.Duration(days)*24*time.Hour)
		if err != nil {
			slog.Warn("statistics prune failed", "err", err)
		} else if n > 0 {
			slog.Info("pruned expired statistics", "rows", n, "retention_days", days)
		}
	}
	return nil
}

// initInsert builds the typing-with-clipboard-fallback delivery chain unless
// a sink was injected.
func (a *App) initInsert() {
	if a.sink != nil {
		return
	}

	var typingOpts []insert.TypingOption
	if a.cfg.Insert.Tool != "" {
		typingOpts = append(typingOpts, insert.WithTool(a.cfg.Insert.Tool))
	}
	chain := resilience.NewInsertFallback(insert.NewTypingSink(typingOpts...), resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  3,
			ResetTimeout: 30 * time.Second,
		},
	})
	chain.AddFallback(insert.NewClipboardSink())
	a.sink = chain
}

// initTranscriber loads the transcription model unless an engine was
// injected. An injected *transcribe.Service is initialised here too so tests
// can hand in a service built over a mock provider factory.
func (a *App) initTranscriber() error {
	if a.transcriber == nil {
		modelPath := a.cfg.Transcription.ModelPath
		translate := a.cfg.Transcription.Translate
		svc := transcribe.NewService(func(language string) (stt.Provider, error) {
			opts := []whisper.Option{whisper.WithLanguage(language)}
			if translate {
				opts = append(opts, whisper.WithTranslate(true))
			}
			return whisper.New(modelPath, opts...)
		}, transcribe.WithMetrics(a.metrics))
		a.transcriber = svc
	}

	if svc, ok := a.transcriber.(*transcribe.Service); ok {
		a.service = svc
		if err := svc.Initialize(a.cfg.Transcription.Language); err != nil {
			return err
		}
		a.closers = append(a.closers, svc.Close)
	}
	return nil
}

// initWakeWord loads the keyword-spotting model when wake-word monitoring is
// enabled and no detector was injected.
func (a *App) initWakeWord() error {
	if a.detector != nil {
		a.closers = append(a.closers, a.detector.Shutdown)
		return nil
	}
	if !a.cfg.WakeWord.Enabled {
		return nil
	}

	det := wakeword.New(wakeword.WithSampleRate(a.cfg.Audio.SampleRate))
	if err := det.Initialize(modelAssets(a.cfg.WakeWord.ModelDir), configKeywords(a.cfg.WakeWord.Keywords)); err != nil {
		return err
	}
	a.detector = det
	a.closers = append(a.closers, det.Shutdown)
	return nil
}

// initTrigger registers the configured hotkey unless a source was injected.
// An empty binding leaves the app wake-word only.
func (a *App) initTrigger() error {
	if a.triggerSrc != nil {
		a.closers = append(a.closers, a.triggerSrc.Close)
		return nil
	}
	if a.cfg.Trigger.Binding == "" {
		if a.detector == nil {
			return fmt.Errorf("no trigger available: hotkey binding is not configured and wake-word monitoring is not active")
		}
		return nil
	}

	binding, err := trigger.ParseBinding(a.cfg.Trigger.Binding)
	if err != nil {
		return err
	}
	src := trigger.NewHotkeySource(binding)
	a.triggerSrc = src
	a.closers = append(a.closers, src.Close)
	return nil
}

// initController builds the session controller over the assembled subsystems.
func (a *App) initController() error {
	mode, err := trigger.ParseMode(a.cfg.Trigger.Mode)
	if err != nil {
		return err
	}

	sessCfg := session.Config{
		Mode:               mode,
		Language:           a.cfg.Transcription.Language,
		Sensitivity:        a.cfg.Capture.Sensitivity,
		SilenceWindow:      a.cfg.Capture.SilenceWindow(),
		MaxCaptureDuration: a.cfg.Capture.MaxDuration(),
	}
	if err := sessCfg.Validate(); err != nil {
		return err
	}

	idle := state.Idle
	if a.detector != nil {
		idle = state.Monitoring
	}

	ctrlOpts := []session.Option{
		session.WithMetrics(a.metrics),
		session.WithStateStore(a.states),
		session.WithIdleStatus(idle),
	}
	if a.statsSink != nil {
		ctrlOpts = append(ctrlOpts, session.WithStats(a.statsSink))
	}
	a.ctrl = session.NewController(sessCfg, a.transcriber, a.sink, a.perms, ctrlOpts...)
	return nil
}

// initAudio creates the broadcaster and the capture source feeding it.
func (a *App) initAudio() error {
	a.broadcaster = audio.NewBroadcaster()

	factory := a.srcFactory
	if factory == nil {
		cfg := a.cfg
		factory = func(sink func(audio.Frame)) (audio.Source, error) {
			frameSize := 0
			if cfg.Audio.FrameMillis > 0 && cfg.Audio.SampleRate > 0 {
				frameSize = cfg.Audio.SampleRate * cfg.Audio.FrameMillis / 1000
			}
			return paudio.New(paudio.Config{
				SampleRate: cfg.Audio.SampleRate,
				FrameSize:  frameSize,
				DeviceName: cfg.Audio.Device,
			}, sink)
		}
	}

	src, err := factory(a.broadcaster.Publish)
	if err != nil {
		return err
	}
	a.source = src
	a.closers = append(a.closers, src.Stop)
	return nil
}

// Run starts the capture pipeline and blocks until ctx is cancelled or a
// pipeline goroutine fails.
//
// Subscriptions are registered before the capture device starts so no frame
// is lost between device open and fan-out.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	sessionSub := a.broadcaster.Subscribe("session", 0)
	g.Go(func() error {
		defer a.broadcaster.Unsubscribe(sessionSub)
		return a.pumpFrames(ctx, sessionSub)
	})

	if a.detector != nil {
		wakeSub := a.broadcaster.Subscribe("wakeword", 0)
		g.Go(func() error {
			defer a.broadcaster.Unsubscribe(wakeSub)
			return a.pumpWakeWord(ctx, wakeSub)
		})
	}

	if a.triggerSrc != nil {
		if err := a.triggerSrc.Start(ctx); err != nil {
			return fmt.Errorf("app: start trigger source: %w", err)
		}
		g.Go(func() error { return a.pumpTriggers(ctx) })
	}

	g.Go(func() error { return a.pumpFaults(ctx) })
	g.Go(func() error { return a.ctrl.Run(ctx) })

	if a.statsStore != nil && a.cfg.Stats.RetentionDays > 0 {
		g.Go(func() error { return a.pruneLoop(ctx) })
	}

	if err := a.source.Start(ctx); err != nil {
		return fmt.Errorf("app: start audio capture: %w", err)
	}

	slog.Info("quill running",
		"wake_word", a.detector != nil,
		"hotkey", a.triggerSrc != nil,
		"language", a.cfg.Transcription.Language)

	return g.Wait()
}

// pumpFrames forwards captured frames to the session controller.
func (a *App) pumpFrames(ctx context.Context, sub *audio.Subscription) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-sub.Frames():
			if !ok {
				return nil
			}
			a.ctrl.HandleFrame(frame)
		}
	}
}

// pumpWakeWord streams frames through the detector and forwards detections
// to the session controller.
func (a *App) pumpWakeWord(ctx context.Context, sub *audio.Subscription) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-sub.Frames():
			if !ok {
				return nil
			}
			res, err := a.detector.ProcessFrame(frame)
			if err != nil {
				slog.Warn("wake-word processing failed", "err", err)
				continue
			}
			if res != nil {
				slog.Info("wake word detected", "keyword", res.Keyword.Phrase)
				a.ctrl.HandleDetection(*res)
			}
		}
	}
}

// pumpTriggers forwards hotkey events to the session controller.
func (a *App) pumpTriggers(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-a.triggerSrc.Events():
			if !ok {
				return nil
			}
			a.ctrl.HandleTrigger(ev)
		}
	}
}

// pumpFaults forwards capture-path failures to the session controller.
func (a *App) pumpFaults(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fault, ok := <-a.source.Faults():
			if !ok {
				return nil
			}
			slog.Error("audio capture fault", "err", fault.Err)
			a.ctrl.HandleDeviceLost(fault.Err)
		}
	}
}

// pruneLoop enforces statistics retention while the app is running.
func (a *App) pruneLoop(ctx context.Context) error {
	retention := time.Duration(a.cfg.Stats.RetentionDays) * 24 * time.Hour
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n, err := a.statsStore.Prune(ctx, retention); err != nil {
				slog.Warn("statistics prune failed", "err", err)
			} else if n > 0 {
				slog.Info("pruned expired statistics", "rows", n)
			}
		}
	}
}

// ApplyConfigChange reacts to a config file reload. Keyword sets, the
// transcription language, and the log level apply live; capture, trigger,
// and audio device changes need a restart and are only logged.
func (a *App) ApplyConfigChange(old, new *config.Config) {
	diff := config.Diff(old, new)
	if !diff.Any() {
		return
	}

	if diff.LogLevelChanged && a.levelVar != nil {
		a.levelVar.Set(slogLevel(diff.NewLogLevel))
		slog.Info("log level changed", "level", diff.NewLogLevel)
	}

	if diff.LanguageChanged {
		if a.service == nil {
			slog.Warn("language change ignored, transcription engine does not support switching")
		} else if err := a.service.SwitchLanguage(diff.NewLanguage); err != nil {
			slog.Error("language switch failed", "language", diff.NewLanguage, "err", err)
		} else {
			slog.Info("transcription language changed", "language", diff.NewLanguage)
		}
	}

	if diff.KeywordsChanged {
		switch {
		case a.detector == nil || !new.WakeWord.Enabled:
			slog.Warn("wake-word enablement change requires a restart")
		case old.WakeWord.ModelDir != new.WakeWord.ModelDir:
			slog.Warn("wake-word model directory change requires a restart")
		default:
			if err := a.detector.UpdateKeywords(configKeywords(new.WakeWord.Keywords)); err != nil {
				slog.Error("keyword update failed", "err", err)
			} else {
				slog.Info("wake-word keywords updated", "count", len(new.WakeWord.Keywords))
			}
		}
	}

	if diff.CaptureChanged || diff.TriggerChanged {
		slog.Warn("capture and trigger changes require a restart")
	}
}

// Shutdown stops capture and tears down all subsystems in reverse-init
// order. It respects the context deadline: if ctx expires before all closers
// finish, remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.broadcaster != nil {
			a.broadcaster.Close()
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll releases partially-initialised subsystems when New fails midway.
func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("closer error during failed init", "err", err)
		}
	}
	a.closers = nil
}

// modelAssets resolves the conventional keyword-spotting file layout inside
// the configured model directory.
func modelAssets(dir string) wakeword.ModelAssets {
	return wakeword.ModelAssets{
		Encoder: filepath.Join(dir, "encoder.onnx"),
		Decoder: filepath.Join(dir, "decoder.onnx"),
		Joiner:  filepath.Join(dir, "joiner.onnx"),
		Tokens:  filepath.Join(dir, "tokens.txt"),
		Lexicon: filepath.Join(dir, "lexicon.txt"),
	}
}

// configKeywords converts configured wake phrases into detector keywords.
func configKeywords(kws []config.KeywordConfig) []wakeword.Keyword {
	out := make([]wakeword.Keyword, 0, len(kws))
	for _, k := range kws {
		out = append(out, wakeword.Keyword{
			Phrase:     k.Phrase,
			Enabled:    k.Enabled,
			BoostScore: float32(k.BoostScore),
			Threshold:  float32(k.Threshold),
		})
	}
	return out
}

// slogLevel maps a config log level onto slog's scale.
func slogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
