// Package models defines the data structures shared across the
// transcription pipeline.
package models

import "time"

// AudioChunk is one unit of audio submitted for transcription.
// Immutable once enqueued.
type AudioChunk struct {
	SessionID    string
	ConnectionID string
	Payload      []byte
	Sequence     int
	Format       string
	ReceivedAt   time.Time
}

// TranscriptionResult is a produced transcript segment for a session.
// Immutable once produced; persisted first, then fanned out.
type TranscriptionResult struct {
	SessionID  string                 `json:"sessionId"`
	ResultID   string                 `json:"resultId"`
	Content    string                 `json:"content"`
	Speaker    string                 `json:"speaker,omitempty"`
	Confidence float64                `json:"confidence"`
	Timestamp  time.Time              `json:"timestamp"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Highlight is an action item or notable moment extracted from
// recent transcript text by the analysis collaborator.
type Highlight struct {
	SessionID   string `json:"sessionId"`
	Description string `json:"description"`
	Assignee    string `json:"assignee,omitempty"`
	Priority    string `json:"priority"`
	DetectedAt  string `json:"detectedAt"`
}

// Meeting is the persisted record behind a live session.
type Meeting struct {
	ID          int64
	SessionID   string
	Title       string
	Description string
	Metadata    string
	Summary     string
	StartedAt   time.Time
	EndedAt     *time.Time
}

// TranscriptEvent is the payload mirrored to the event stream when a
// transcription result is produced.
type TranscriptEvent struct {
	EventType  string  `json:"eventType"`
	SessionID  string  `json:"sessionId"`
	ResultID   string  `json:"resultId"`
	Text       string  `json:"text"`
	Speaker    string  `json:"speaker,omitempty"`
	Confidence float64 `json:"confidence"`
	Timestamp  int64   `json:"timestamp"`
}

// HighlightEvent is the payload mirrored to the event stream when the
// analysis collaborator extracts a highlight.
type HighlightEvent struct {
	EventType   string `json:"eventType"`
	SessionID   string `json:"sessionId"`
	Description string `json:"description"`
	Assignee    string `json:"assignee,omitempty"`
	Priority    string `json:"priority"`
	Timestamp   int64  `json:"timestamp"`
}
