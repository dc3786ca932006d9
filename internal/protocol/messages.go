// Package protocol defines the JSON wire protocol spoken over the
// WebSocket connection. Every message is an envelope with a type
// discriminator, an ISO-8601 timestamp and a type-specific data
// payload. The discriminator is matched exhaustively at the dispatch
// boundary; unknown types produce an error reply, never a dropped
// connection.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Client → server message types.
const (
	TypeStartMeeting = "start_meeting"
	TypeEndMeeting   = "end_meeting"
	TypeAudioChunk   = "audio_chunk"
	TypeSubscribe    = "subscribe"
	TypePing         = "ping"
)

// Server → client message types.
const (
	TypeMeetingStarted = "meeting_started"
	TypeMeetingEnded   = "meeting_ended"
	TypeTranscription  = "transcription"
	TypeSubscribed     = "subscribed"
	TypeError          = "error"
	TypePong           = "pong"
)

// Error codes surfaced on the wire.
const (
	CodeInvalidMessage     = "INVALID_MESSAGE"
	CodeUnknownMessageType = "UNKNOWN_MESSAGE_TYPE"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeMeetingNotFound    = "MEETING_NOT_FOUND"
	CodeNoActiveMeeting    = "NO_ACTIVE_MEETING"
	CodeMeetingStartFailed = "MEETING_START_FAILED"
	CodeMeetingEndFailed   = "MEETING_END_FAILED"
	CodeAudioFailed        = "AUDIO_PROCESSING_FAILED"
)

// Envelope is the outer frame carried on every message.
type Envelope struct {
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// StartMeeting asks the server to allocate a new session.
type StartMeeting struct {
	Title       string                 `json:"title"`
	Description string                 `json:"description,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// EndMeeting asks the server to end a session owned by the sender.
type EndMeeting struct {
	SessionID string `json:"sessionId"`
}

// AudioChunk carries one base64-encoded unit of audio.
type AudioChunk struct {
	SessionID string `json:"sessionId"`
	Chunk     string `json:"chunk"`
	Sequence  int    `json:"sequence"`
	Format    string `json:"format,omitempty"`
}

// Subscribe attaches the sender as a viewer of a running session.
type Subscribe struct {
	SessionID string `json:"sessionId"`
}

// MeetingStarted confirms session allocation.
type MeetingStarted struct {
	SessionID string `json:"sessionId"`
	Title     string `json:"title"`
	StartedAt string `json:"startedAt"`
}

// MeetingEnded confirms session teardown after the queue drained.
type MeetingEnded struct {
	SessionID       string `json:"sessionId"`
	EndedAt         string `json:"endedAt"`
	DurationSeconds int64  `json:"durationSeconds"`
}

// Transcription delivers one produced result to a subscriber.
type Transcription struct {
	SessionID  string  `json:"sessionId"`
	ResultID   string  `json:"resultId"`
	Content    string  `json:"content"`
	Speaker    string  `json:"speaker,omitempty"`
	Confidence float64 `json:"confidence"`
	Timestamp  string  `json:"timestamp"`
}

// Subscribed confirms a viewer attachment.
type Subscribed struct {
	SessionID string `json:"sessionId"`
}

// ErrorPayload is the error reply sent to the offending connection only.
type ErrorPayload struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// ParseEnvelope decodes an inbound frame. The payload stays raw; the
// dispatcher decodes it once the type is known.
func ParseEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("missing type discriminator")
	}
	return &env, nil
}

// Marshal wraps a payload in an envelope stamped with the current time.
func Marshal(msgType string, payload interface{}) ([]byte, error) {
	env := Envelope{
		Type:      msgType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// MarshalError builds an error envelope.
func MarshalError(code, message string, details interface{}) []byte {
	raw, err := Marshal(TypeError, ErrorPayload{Code: code, Message: message, Details: details})
	if err != nil {
		// ErrorPayload always marshals; keep the compiler honest.
		return []byte(`{"type":"error"}`)
	}
	return raw
}
