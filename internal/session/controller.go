package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/quill/internal/insert"
	"github.com/MrWong99/quill/internal/observe"
	"github.com/MrWong99/quill/internal/permission"
	"github.com/MrWong99/quill/internal/state"
	"github.com/MrWong99/quill/internal/stats"
	"github.com/MrWong99/quill/internal/trigger"
	"github.com/MrWong99/quill/internal/wakeword"
	"github.com/MrWong99/quill/pkg/audio"
	"github.com/MrWong99/quill/pkg/provider/stt"
)

// ErrPermissionDenied is returned when a capability required for capture is
// not granted.
var ErrPermissionDenied = errors.New("session: microphone permission denied")

// Transcriber is the slice of the transcription service the controller
// needs. Calls are serialized by the implementation.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32, language string) (stt.Result, error)
}

// Config tunes the controller's capture behaviour.
type Config struct {
	// Mode selects how hotkey events map to session boundaries.
	Mode trigger.Mode

	// Language is the transcription language for new sessions.
	Language string

	// Sensitivity is the RMS energy threshold below which a frame counts
	// as silence. Valid range 0.1 to 1.0.
	Sensitivity float64

	// SilenceWindow is how much consecutive silence stops capture. Valid
	// range 500ms to 3s, default 1.5s.
	SilenceWindow time.Duration

	// MaxCaptureDuration caps how much audio a session may buffer.
	// Default 5 minutes.
	MaxCaptureDuration time.Duration
}

// Validate checks ranges and applies defaults.
func (c *Config) Validate() error {
	var errs []error
	if c.Mode == "" {
		c.Mode = trigger.ModeToggle
	}
	if _, err := trigger.ParseMode(string(c.Mode)); err != nil {
		errs = append(errs, err)
	}
	if c.Sensitivity < 0.1 || c.Sensitivity > 1.0 {
		errs = append(errs, fmt.Errorf("session: sensitivity %v out of range [0.1, 1.0]", c.Sensitivity))
	}
	if c.SilenceWindow == 0 {
		c.SilenceWindow = 1500 * time.Millisecond
	}
	if c.SilenceWindow < 500*time.Millisecond || c.SilenceWindow > 3*time.Second {
		errs = append(errs, fmt.Errorf("session: silence window %v out of range [500ms, 3s]", c.SilenceWindow))
	}
	if c.MaxCaptureDuration == 0 {
		c.MaxCaptureDuration = 5 * time.Minute
	}
	return errors.Join(errs...)
}

// controller input events, consumed by the process loop.
type (
	frameEvent     struct{ frame audio.Frame }
	triggerEvent   struct{ ev trigger.Event }
	detectionEvent struct{ det wakeword.DetectionResult }
	cancelEvent    struct{}
	deviceEvent    struct{ err error }

	transcribedEvent struct {
		sessionID string
		result    stt.Result
		err       error
	}
	insertedEvent struct {
		sessionID string
		result    insert.Result
		err       error
	}
)

// Controller drives the recording-session state machine. All mutable
// session state is owned by a single process loop; the exported methods only
// enqueue events, so they are safe for concurrent use. At most one
// non-terminal session exists at any time.
type Controller struct {
	cfg         Config
	transcriber Transcriber
	sink        insert.Sink
	stats       stats.Sink
	perms       permission.Provider
	states      *state.Store
	metrics     *observe.Metrics
	idleStatus  state.Status
	onEnd       func(Session)

	// events carries every input in arrival order. Frames and control
	// events share one queue so transitions stay totally ordered.
	events chan any
}

// Option customises a [Controller].
type Option func(*Controller)

// WithMetrics wires metric instruments into the controller.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithStateStore publishes user-visible pipeline status to the store.
func WithStateStore(s *state.Store) Option {
	return func(c *Controller) { c.states = s }
}

// WithStats records one entry per terminal session to the sink.
func WithStats(s stats.Sink) Option {
	return func(c *Controller) { c.stats = s }
}

// WithIdleStatus sets the status published between sessions. Defaults to
// [state.Idle]; apps with an active wake-word detector use
// [state.Monitoring].
func WithIdleStatus(s state.Status) Option {
	return func(c *Controller) { c.idleStatus = s }
}

// WithSessionEndHook registers a callback invoked with a copy of every
// session that reaches a terminal state.
func WithSessionEndHook(fn func(Session)) Option {
	return func(c *Controller) { c.onEnd = fn }
}

// NewController creates a controller. cfg must have passed
// [Config.Validate].
func NewController(cfg Config, transcriber Transcriber, sink insert.Sink, perms permission.Provider, opts ...Option) *Controller {
	c := &Controller{
		cfg:         cfg,
		transcriber: transcriber,
		sink:        sink,
		perms:       perms,
		idleStatus:  state.Idle,
		events:      make(chan any, 256),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HandleFrame enqueues an audio frame for silence tracking and capture
// buffering. It never blocks: when the controller is behind, the frame is
// dropped.
func (c *Controller) HandleFrame(frame audio.Frame) {
	select {
	case c.events <- frameEvent{frame: frame}:
	default:
		if c.metrics != nil {
			c.metrics.RecordDroppedFrames(context.Background(), "session", 1)
		}
	}
}

// HandleTrigger enqueues a hotkey edge.
func (c *Controller) HandleTrigger(ev trigger.Event) {
	c.events <- triggerEvent{ev: ev}
}

// HandleDetection enqueues a wake-word detection.
func (c *Controller) HandleDetection(det wakeword.DetectionResult) {
	c.events <- detectionEvent{det: det}
}

// Cancel aborts the active session. During capture the buffered audio is
// discarded immediately; during transcription the in-flight inference call
// finishes but its result is discarded.
func (c *Controller) Cancel() {
	c.events <- cancelEvent{}
}

// HandleDeviceLost reports that the audio device disappeared. An active
// capturing session is cancelled without any transcription call.
func (c *Controller) HandleDeviceLost(err error) {
	c.events <- deviceEvent{err: err}
}

// Run executes the process loop until ctx is cancelled. It owns all session
// state; no other goroutine touches it.
func (c *Controller) Run(ctx context.Context) error {
	c.publishIdle()

	loop := &processState{ctrl: c}
	for {
		select {
		case <-ctx.Done():
			loop.abort("shutting down")
			return ctx.Err()
		case ev := <-c.events:
			switch e := ev.(type) {
			case frameEvent:
				loop.onFrame(ctx, e.frame)
			case triggerEvent:
				loop.onTrigger(ctx, e.ev)
			case detectionEvent:
				loop.onDetection(ctx, e.det)
			case cancelEvent:
				loop.onCancel()
			case deviceEvent:
				loop.onDeviceLost(e.err)
			case transcribedEvent:
				loop.onTranscribed(ctx, e)
			case insertedEvent:
				loop.onInserted(ctx, e)
			}
		}
	}
}

func (c *Controller) publishIdle() {
	if c.states != nil {
		c.states.Set(c.idleStatus)
	}
}

func (c *Controller) publish(s state.Status) {
	if c.states != nil {
		c.states.Set(s)
	}
}

// processState is the loop-private mutable state. At most one non-terminal
// session is referenced by cur.
type processState struct {
	ctrl *Controller

	cur           *Session
	buffer        []float32
	captured      time.Duration
	silentFor     time.Duration
	cancelPending bool
}

// onTrigger maps a hotkey edge onto the state machine according to the
// configured mode.
func (p *processState) onTrigger(ctx context.Context, ev trigger.Event) {
	c := p.ctrl
	switch c.cfg.Mode {
	case trigger.ModeToggle:
		if ev.Type != trigger.Pressed {
			return
		}
		if p.cur == nil {
			p.startCapture(TriggerHotkey)
			return
		}
		if p.cur.State == Capturing {
			p.dispatchTranscription(ctx)
		}
	case trigger.ModeHold:
		switch ev.Type {
		case trigger.Pressed:
			if p.cur == nil {
				p.startCapture(TriggerHotkey)
			}
			// A hold gesture cannot interrupt an active session.
		case trigger.Released:
			if p.cur != nil && p.cur.State == Capturing && p.cur.Trigger == TriggerHotkey {
				slog.Debug("hotkey released", "held_for", ev.HeldFor)
				p.dispatchTranscription(ctx)
			}
		}
	}
}

func (p *processState) onDetection(ctx context.Context, det wakeword.DetectionResult) {
	if p.cur != nil {
		slog.Debug("wake word ignored, session active",
			"keyword", det.Keyword.Phrase, "session_state", p.cur.State.String())
		return
	}
	if p.ctrl.metrics != nil {
		p.ctrl.metrics.RecordWakeDetection(ctx, det.Keyword.Phrase)
	}
	p.startCapture(TriggerWakeWord)
}

// startCapture creates the session and enters Capturing, unless the
// microphone permission is denied.
func (p *processState) startCapture(triggerKind string) {
	c := p.ctrl
	if c.perms != nil && c.perms.Check(permission.Microphone) != permission.Granted {
		slog.Warn("capture refused", "reason", ErrPermissionDenied)
		if c.states != nil {
			c.states.SetError("microphone access is not granted")
		}
		return
	}

	p.cur = &Session{
		ID:        uuid.NewString(),
		State:     Idle,
		Trigger:   triggerKind,
		Language:  c.cfg.Language,
		StartedAt: time.Now(),
	}
	p.buffer = p.buffer[:0]
	p.captured = 0
	p.silentFor = 0
	p.cancelPending = false

	if err := p.cur.transition(Capturing); err != nil {
		slog.Error("session transition failed", "error", err)
	}
	if c.metrics != nil {
		c.metrics.ActiveSessions.Add(context.Background(), 1)
	}
	c.publish(state.Capturing)
	slog.Info("capture started", "session_id", p.cur.ID, "trigger", triggerKind)
}

// onFrame buffers audio and tracks consecutive silence while capturing.
func (p *processState) onFrame(ctx context.Context, frame audio.Frame) {
	if p.cur == nil || p.cur.State != Capturing {
		return
	}

	p.buffer = append(p.buffer, frame.Samples...)
	p.captured += frame.Duration()

	if audio.RMS(frame.Samples) < p.ctrl.cfg.Sensitivity {
		p.silentFor += frame.Duration()
	} else {
		p.silentFor = 0
	}

	switch {
	case p.captured >= p.ctrl.cfg.MaxCaptureDuration:
		slog.Warn("max capture duration reached", "session_id", p.cur.ID, "captured", p.captured)
		p.dispatchTranscription(ctx)
	case p.silentFor >= p.ctrl.cfg.SilenceWindow:
		slog.Info("silence window elapsed", "session_id", p.cur.ID, "silent_for", p.silentFor)
		p.dispatchTranscription(ctx)
	}
}

// dispatchTranscription moves the session into Transcribing and hands the
// buffered audio to the serialized transcription worker. The loop stays
// responsive while inference runs.
func (p *processState) dispatchTranscription(ctx context.Context) {
	c := p.ctrl
	sess := p.cur
	sess.CaptureDuration = p.captured
	if err := sess.transition(Transcribing); err != nil {
		slog.Error("session transition failed", "error", err)
		return
	}
	c.publish(state.Transcribing)
	if c.metrics != nil {
		c.metrics.CaptureDuration.Record(ctx, p.captured.Seconds())
	}

	samples := make([]float32, len(p.buffer))
	copy(samples, p.buffer)
	p.buffer = p.buffer[:0]

	go func(id, language string) {
		res, err := c.transcriber.Transcribe(ctx, samples, language)
		c.events <- transcribedEvent{sessionID: id, result: res, err: err}
	}(sess.ID, sess.Language)
}

// onTranscribed consumes the inference result. A cancellation requested
// while inference was in flight discards the result.
func (p *processState) onTranscribed(ctx context.Context, ev transcribedEvent) {
	if p.cur == nil || p.cur.ID != ev.sessionID || p.cur.State != Transcribing {
		return
	}
	if p.cancelPending {
		p.cur.FailReason = "cancelled"
		p.finish(Cancelled)
		return
	}
	if ev.err != nil {
		slog.Error("transcription failed", "session_id", p.cur.ID, "error", ev.err)
		p.cur.FailReason = "transcription failed"
		p.finish(Failed)
		return
	}

	p.cur.Transcript = ev.result.Text
	p.cur.Confidence = ev.result.Confidence
	p.cur.TranscribeDuration = ev.result.ProcessingTime
	if err := p.cur.transition(Inserting); err != nil {
		slog.Error("session transition failed", "error", err)
		return
	}
	p.ctrl.publish(state.Inserting)

	go func(id, text string) {
		res, err := p.ctrl.sink.Insert(ctx, text)
		p.ctrl.events <- insertedEvent{sessionID: id, result: res, err: err}
	}(p.cur.ID, p.cur.Transcript)
}

// onInserted consumes the delivery outcome and terminates the session.
func (p *processState) onInserted(ctx context.Context, ev insertedEvent) {
	if p.cur == nil || p.cur.ID != ev.sessionID || p.cur.State != Inserting {
		return
	}
	p.cur.InsertionOutcome = ev.result.Outcome
	if p.ctrl.metrics != nil {
		p.ctrl.metrics.RecordInsertion(ctx, ev.result.Outcome.String())
	}
	if ev.err != nil {
		slog.Error("delivery failed", "session_id", p.cur.ID, "error", ev.err)
		p.cur.FailReason = "text delivery failed"
		p.finish(Failed)
		return
	}
	slog.Info("text delivered", "session_id", p.cur.ID,
		"target", ev.result.Target, "outcome", ev.result.Outcome.String())
	p.finish(Completed)
}

// onCancel aborts capture immediately or defers until the in-flight
// inference returns.
func (p *processState) onCancel() {
	if p.cur == nil || p.cur.State.Terminal() {
		return
	}
	switch p.cur.State {
	case Capturing:
		p.buffer = p.buffer[:0]
		p.cur.CaptureDuration = p.captured
		p.cur.FailReason = "cancelled"
		p.finish(Cancelled)
	case Transcribing:
		slog.Info("cancel deferred until inference returns", "session_id", p.cur.ID)
		p.cancelPending = true
	default:
		slog.Debug("cancel ignored", "session_state", p.cur.State.String())
	}
}

// onDeviceLost cancels a capturing session without any transcription call.
func (p *processState) onDeviceLost(err error) {
	slog.Warn("audio device lost", "error", err)
	if p.cur != nil && p.cur.State == Capturing {
		p.buffer = p.buffer[:0]
		p.cur.CaptureDuration = p.captured
		p.cur.FailReason = "audio device disconnected"
		p.finish(Cancelled)
		return
	}
	if p.ctrl.states != nil {
		p.ctrl.states.SetError("audio device disconnected")
	}
}

// abort terminates any live session during shutdown.
func (p *processState) abort(reason string) {
	if p.cur == nil || p.cur.State.Terminal() {
		return
	}
	if p.cur.State == Transcribing {
		p.cancelPending = true
		return
	}
	p.cur.FailReason = reason
	p.finish(Cancelled)
}

// finish moves the session to a terminal state, records statistics and
// publishes the idle status.
func (p *processState) finish(terminal State) {
	c := p.ctrl
	sess := p.cur
	if err := sess.transition(terminal); err != nil {
		slog.Error("session transition failed", "error", err)
		sess.State = terminal
		sess.EndedAt = time.Now()
	}

	ctx := context.Background()
	if c.metrics != nil {
		c.metrics.ActiveSessions.Add(ctx, -1)
		c.metrics.RecordSessionOutcome(ctx, terminal.String())
	}
	if c.stats != nil {
		rec := stats.Record{
			SessionID:          sess.ID,
			Outcome:            terminal.String(),
			Trigger:            sess.Trigger,
			Language:           sess.Language,
			CaptureDuration:    sess.CaptureDuration,
			TranscribeDuration: sess.TranscribeDuration,
			WordCount:          stats.CountWords(sess.Transcript),
			CreatedAt:          sess.EndedAt,
		}
		if err := c.stats.Record(ctx, rec); err != nil {
			slog.Warn("statistics record failed", "session_id", sess.ID, "error", err)
		}
	}

	slog.Info("session finished", "session_id", sess.ID,
		"outcome", terminal.String(), "capture_duration", sess.CaptureDuration)

	if terminal == Failed && c.states != nil {
		c.states.SetError(sess.FailReason)
	} else {
		c.publishIdle()
	}

	done := *sess
	p.cur = nil
	p.buffer = p.buffer[:0]
	p.captured = 0
	p.silentFor = 0
	p.cancelPending = false

	if c.onEnd != nil {
		c.onEnd(done)
	}
}
