package stats

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// compile-time interface check
var _ Sink = (*SQLiteStore)(nil)

// SQLiteStore is a [Sink] backed by a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and ensures the
// schema exists. Pass ":memory:" for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("stats: create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("stats: open database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("stats: initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		outcome TEXT NOT NULL,
		trigger_kind TEXT NOT NULL,
		language TEXT NOT NULL,
		capture_ms INTEGER NOT NULL,
		transcribe_ms INTEGER NOT NULL,
		word_count INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_sessions_outcome ON sessions(outcome);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record implements [Sink].
func (s *SQLiteStore) Record(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, session_id, outcome, trigger_kind, language, capture_ms, transcribe_ms, word_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.SessionID, rec.Outcome, rec.Trigger, rec.Language,
		rec.CaptureDuration.Milliseconds(), rec.TranscribeDuration.Milliseconds(),
		rec.WordCount, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("stats: insert session record: %w", err)
	}
	return nil
}

// Summarize aggregates all records created at or after since.
func (s *SQLiteStore) Summarize(ctx context.Context, since time.Time) (Summary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN outcome = 'completed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN outcome = 'cancelled' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN outcome = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(word_count), 0),
			COALESCE(SUM(capture_ms), 0),
			COALESCE(SUM(transcribe_ms), 0)
		FROM sessions
		WHERE created_at >= ?
	`, since)

	var sum Summary
	var captureMS, transcribeMS int64
	if err := row.Scan(&sum.Sessions, &sum.Completed, &sum.Cancelled, &sum.Failed,
		&sum.Words, &captureMS, &transcribeMS); err != nil {
		return Summary{}, fmt.Errorf("stats: summarize: %w", err)
	}
	sum.CaptureTotal = time.Duration(captureMS) * time.Millisecond
	sum.TranscribeTotal = time.Duration(transcribeMS) * time.Millisecond
	return sum, nil
}

// WordsByLanguage returns the total word count per language for records
// created at or after since.
func (s *SQLiteStore) WordsByLanguage(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT language, COALESCE(SUM(word_count), 0)
		FROM sessions
		WHERE created_at >= ?
		GROUP BY language
	`, since)
	if err != nil {
		return nil, fmt.Errorf("stats: words by language: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var lang string
		var words int
		if err := rows.Scan(&lang, &words); err != nil {
			return nil, fmt.Errorf("stats: scan row: %w", err)
		}
		out[lang] = words
	}
	return out, rows.Err()
}

// Prune deletes records older than the retention window and returns how many
// rows were removed.
func (s *SQLiteStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("stats: prune: %w", err)
	}
	return res.RowsAffected()
}

// PingContext verifies the database connection is usable. Health checks
// call this through the readiness endpoint.
func (s *SQLiteStore) PingContext(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements [Sink].
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
