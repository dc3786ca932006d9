// Package store persists meetings, transcription results and
// highlights in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/patdiletx/DevMeet/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS meetings (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  TEXT NOT NULL UNIQUE,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	metadata    TEXT NOT NULL DEFAULT '',
	summary     TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMP NOT NULL,
	ended_at    TIMESTAMP
);

CREATE TABLE IF NOT EXISTS transcriptions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	content    TEXT NOT NULL,
	speaker    TEXT NOT NULL DEFAULT '',
	confidence REAL NOT NULL,
	timestamp  TIMESTAMP NOT NULL,
	metadata   TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_transcriptions_session ON transcriptions(session_id);

CREATE TABLE IF NOT EXISTS highlights (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  TEXT NOT NULL,
	description TEXT NOT NULL,
	assignee    TEXT NOT NULL DEFAULT '',
	priority    TEXT NOT NULL DEFAULT 'medium',
	detected_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_highlights_session ON highlights(session_id);
`

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	// The drain loop is the only writer per session, but multiple
	// sessions write concurrently; serialize at the pool level.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Ping checks database reachability, for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateMeeting inserts the meeting row backing a new session.
func (s *Store) CreateMeeting(ctx context.Context, sessionID, title, description, metadata string, startedAt time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO meetings (session_id, title, description, metadata, started_at) VALUES (?, ?, ?, ?, ?)`,
		sessionID, title, description, metadata, startedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("insert meeting: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("meeting id: %w", err)
	}
	return id, nil
}

// EndMeeting stamps the meeting row with its end time.
func (s *Store) EndMeeting(ctx context.Context, sessionID string, endedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE meetings SET ended_at = ? WHERE session_id = ?`,
		endedAt.UTC(), sessionID)
	if err != nil {
		return fmt.Errorf("end meeting: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("end meeting rows: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetSummary stores the generated meeting summary.
func (s *Store) SetSummary(ctx context.Context, sessionID, summary string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE meetings SET summary = ? WHERE session_id = ?`,
		summary, sessionID)
	if err != nil {
		return fmt.Errorf("set summary: %w", err)
	}
	return nil
}

// SaveResult persists one transcription result and returns its id.
func (s *Store) SaveResult(ctx context.Context, r *models.TranscriptionResult) (int64, error) {
	meta := ""
	if r.Metadata != nil {
		raw, err := json.Marshal(r.Metadata)
		if err != nil {
			return 0, fmt.Errorf("marshal result metadata: %w", err)
		}
		meta = string(raw)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO transcriptions (session_id, content, speaker, confidence, timestamp, metadata) VALUES (?, ?, ?, ?, ?, ?)`,
		r.SessionID, r.Content, r.Speaker, r.Confidence, r.Timestamp.UTC(), meta)
	if err != nil {
		return 0, fmt.Errorf("insert transcription: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("transcription id: %w", err)
	}
	return id, nil
}

// RecentResults returns the most recent results for a session, oldest
// first, capped at limit.
func (s *Store) RecentResults(ctx context.Context, sessionID string, limit int) ([]models.TranscriptionResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, speaker, confidence, timestamp FROM (
			SELECT id, content, speaker, confidence, timestamp
			FROM transcriptions WHERE session_id = ?
			ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query transcriptions: %w", err)
	}
	defer rows.Close()

	var results []models.TranscriptionResult
	for rows.Next() {
		var (
			id      int64
			r       models.TranscriptionResult
			speaker sql.NullString
		)
		if err := rows.Scan(&id, &r.Content, &speaker, &r.Confidence, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan transcription: %w", err)
		}
		r.SessionID = sessionID
		r.ResultID = fmt.Sprintf("%d", id)
		if speaker.Valid {
			r.Speaker = speaker.String
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return results, nil
}

// SaveHighlight persists one extracted highlight.
func (s *Store) SaveHighlight(ctx context.Context, h *models.Highlight) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO highlights (session_id, description, assignee, priority, detected_at) VALUES (?, ?, ?, ?, ?)`,
		h.SessionID, h.Description, h.Assignee, h.Priority, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert highlight: %w", err)
	}
	return nil
}

// Summary returns the stored summary for a session.
func (s *Store) Summary(ctx context.Context, sessionID string) (string, error) {
	var summary string
	err := s.db.QueryRowContext(ctx,
		`SELECT summary FROM meetings WHERE session_id = ?`, sessionID).Scan(&summary)
	if err != nil {
		return "", fmt.Errorf("query summary: %w", err)
	}
	return summary, nil
}
