// Package stats records per-session dictation statistics. Only derived
// numbers and categorical fields are stored; neither audio nor transcribed
// text ever reaches the store.
package stats

import (
	"context"
	"strings"
	"time"
)

// Record summarises one finished recording session.
type Record struct {
	// ID uniquely identifies the record.
	ID string

	// SessionID is the recording session this record belongs to.
	SessionID string

	// Outcome is the terminal session state: "completed", "cancelled" or
	// "failed".
	Outcome string

	// Trigger names what started the session: "wake-word" or "hotkey".
	Trigger string

	// Language is the transcription language that was active.
	Language string

	// CaptureDuration is how long audio was recorded.
	CaptureDuration time.Duration

	// TranscribeDuration is how long the transcription engine ran. Zero
	// for sessions that never reached transcription.
	TranscribeDuration time.Duration

	// WordCount is the number of words in the transcript. The transcript
	// itself is not stored.
	WordCount int

	// CreatedAt is when the session finished.
	CreatedAt time.Time
}

// Summary aggregates records over a time range.
type Summary struct {
	// Sessions is the total number of recorded sessions.
	Sessions int

	// Completed counts sessions that delivered text.
	Completed int

	// Cancelled counts user- or device-cancelled sessions.
	Cancelled int

	// Failed counts sessions that errored.
	Failed int

	// Words is the total dictated word count.
	Words int

	// CaptureTotal is the summed capture time.
	CaptureTotal time.Duration

	// TranscribeTotal is the summed transcription time.
	TranscribeTotal time.Duration
}

// Sink persists session records.
type Sink interface {
	// Record stores one finished session.
	Record(ctx context.Context, rec Record) error

	// Close releases the underlying storage.
	Close() error
}

// CountWords returns the number of whitespace-separated words in text.
func CountWords(text string) int {
	return len(strings.Fields(text))
}
