// Package session owns the recording-session lifecycle: a state machine
// driven by trigger events, wake-word detections and audio frames, with
// silence-based auto-stop, serialized transcription dispatch and text
// delivery.
package session

import (
	"fmt"
	"time"

	"github.com/MrWong99/quill/internal/insert"
)

// State is a recording session's lifecycle position.
type State int

const (
	// Idle means the session has been created but capture has not started.
	Idle State = iota

	// Capturing means audio frames are being buffered.
	Capturing

	// Transcribing means buffered audio is with the transcription engine.
	Transcribing

	// Inserting means transcribed text is being delivered.
	Inserting

	// Completed is terminal: text was delivered.
	Completed

	// Cancelled is terminal: the user or a device fault aborted capture.
	Cancelled

	// Failed is terminal: transcription or delivery failed hard.
	Failed
)

// String returns a stable state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Capturing:
		return "capturing"
	case Transcribing:
		return "transcribing"
	case Inserting:
		return "inserting"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether the state ends the session.
func (s State) Terminal() bool {
	return s == Completed || s == Cancelled || s == Failed
}

// validTransitions is the session state machine. Absent entries are illegal.
var validTransitions = map[State][]State{
	Idle:         {Capturing, Cancelled},
	Capturing:    {Transcribing, Cancelled},
	Transcribing: {Inserting, Failed, Cancelled},
	Inserting:    {Completed, Failed},
}

// TriggerWakeWord and TriggerHotkey name what started a session.
const (
	TriggerWakeWord = "wake-word"
	TriggerHotkey   = "hotkey"
)

// Session is one capture-to-delivery run. It is owned exclusively by the
// [Controller]; callers only ever see copies.
type Session struct {
	// ID uniquely identifies the session.
	ID string

	// State is the current lifecycle position.
	State State

	// Trigger names what started the session.
	Trigger string

	// Language is the transcription language active for this session.
	Language string

	// StartedAt is when capture began.
	StartedAt time.Time

	// EndedAt is when a terminal state was reached.
	EndedAt time.Time

	// CaptureDuration is the audio span that was buffered.
	CaptureDuration time.Duration

	// Transcript holds the recognised text once transcription completes.
	Transcript string

	// Confidence is the engine's confidence in the transcript.
	Confidence float64

	// TranscribeDuration is how long inference ran.
	TranscribeDuration time.Duration

	// InsertionOutcome reports where the text landed.
	InsertionOutcome insert.Outcome

	// FailReason is a short, stable, user-facing reason for Cancelled and
	// Failed sessions.
	FailReason string
}

// transition moves the session to next, returning an error for moves the
// state machine does not allow.
func (s *Session) transition(next State) error {
	for _, allowed := range validTransitions[s.State] {
		if next == allowed {
			s.State = next
			if next.Terminal() {
				s.EndedAt = time.Now()
			}
			return nil
		}
	}
	return fmt.Errorf("session: illegal transition %s -> %s", s.State, next)
}
