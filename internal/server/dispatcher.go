package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/patdiletx/DevMeet/internal/models"
	"github.com/patdiletx/DevMeet/internal/observability/metrics"
	"github.com/patdiletx/DevMeet/internal/pipeline"
	"github.com/patdiletx/DevMeet/internal/protocol"
	"github.com/patdiletx/DevMeet/internal/session"
	"github.com/patdiletx/DevMeet/internal/ws"
)

// MeetingStore is the slice of persistence the dispatcher needs.
type MeetingStore interface {
	CreateMeeting(ctx context.Context, sessionID, title, description, metadata string, startedAt time.Time) (int64, error)
}

// Dispatcher routes inbound wire messages to the session store and the
// pipeline. One instance serves all connections; per-message errors go
// back to the sending connection only.
type Dispatcher struct {
	hub          *ws.Hub
	sessions     *session.Store
	orchestrator *pipeline.Orchestrator
	meetings     MeetingStore
	metrics      *metrics.Metrics
	logger       zerolog.Logger
}

// NewDispatcher wires the dispatcher and installs it as the hub's
// message handler.
func NewDispatcher(hub *ws.Hub, sessions *session.Store, orch *pipeline.Orchestrator, meetings MeetingStore) *Dispatcher {
	d := &Dispatcher{
		hub:          hub,
		sessions:     sessions,
		orchestrator: orch,
		meetings:     meetings,
		metrics:      metrics.DefaultMetrics,
		logger:       log.With().Str("component", "dispatcher").Logger(),
	}
	hub.SetHandler(d.Handle)
	return d
}

// Handle processes one inbound frame. Unknown or malformed payloads
// produce an error reply; the connection is never dropped for a bad
// message.
func (d *Dispatcher) Handle(c *ws.Client, raw []byte) {
	start := time.Now()

	env, err := protocol.ParseEnvelope(raw)
	if err != nil {
		d.sendError(c, protocol.CodeInvalidMessage, "Failed to parse message", nil)
		return
	}
	d.metrics.MessagesReceived.WithLabelValues(env.Type).Inc()

	switch env.Type {
	case protocol.TypeStartMeeting:
		d.handleStartMeeting(c, env.Data)
	case protocol.TypeEndMeeting:
		d.handleEndMeeting(c, env.Data)
	case protocol.TypeAudioChunk:
		d.handleAudioChunk(c, env.Data)
	case protocol.TypeSubscribe:
		d.handleSubscribe(c, env.Data)
	case protocol.TypePing:
		d.send(c, protocol.TypePong, nil)
	default:
		d.sendError(c, protocol.CodeUnknownMessageType, "Unknown message type: "+env.Type, nil)
	}

	d.logger.Debug().
		Str("clientId", c.ID).
		Str("type", env.Type).
		Dur("duration", time.Since(start)).
		Msg("Message dispatched")
}

func (d *Dispatcher) handleStartMeeting(c *ws.Client, data json.RawMessage) {
	var msg protocol.StartMeeting
	if err := json.Unmarshal(data, &msg); err != nil {
		d.sendError(c, protocol.CodeInvalidMessage, "Malformed start_meeting payload", nil)
		return
	}

	sess := d.sessions.Create(msg.Title, c.ID)

	metadata := ""
	if msg.Metadata != nil {
		if raw, err := json.Marshal(msg.Metadata); err == nil {
			metadata = string(raw)
		}
	}

	if _, err := d.meetings.CreateMeeting(context.Background(), sess.ID, msg.Title, msg.Description, metadata, sess.StartedAt); err != nil {
		d.sessions.Remove(sess.ID)
		d.logger.Error().Err(err).Str("clientId", c.ID).Msg("Failed to create meeting record")
		d.sendError(c, protocol.CodeMeetingStartFailed, "Failed to start meeting", nil)
		return
	}

	// The owner is also the first subscriber.
	d.hub.Subscribe(c.ID, sess.ID)
	d.metrics.RecordSessionStart()

	d.send(c, protocol.TypeMeetingStarted, protocol.MeetingStarted{
		SessionID: sess.ID,
		Title:     sess.Title,
		StartedAt: sess.StartedAt.Format(time.RFC3339),
	})
	d.logger.Info().
		Str("sessionId", sess.ID).
		Str("clientId", c.ID).
		Str("title", sess.Title).
		Msg("Meeting started")
}

func (d *Dispatcher) handleEndMeeting(c *ws.Client, data json.RawMessage) {
	var msg protocol.EndMeeting
	if err := json.Unmarshal(data, &msg); err != nil {
		d.sendError(c, protocol.CodeInvalidMessage, "Malformed end_meeting payload", nil)
		return
	}

	sess := d.sessions.Get(msg.SessionID)
	if sess == nil {
		d.sendError(c, protocol.CodeMeetingNotFound, "Meeting not found", nil)
		return
	}
	if sess.OwnerConn != c.ID {
		d.sendError(c, protocol.CodeUnauthorized, "Meeting does not belong to this client", nil)
		return
	}

	if err := d.orchestrator.EndSession(sess); err != nil {
		d.sendError(c, protocol.CodeMeetingEndFailed, "Failed to end meeting", err.Error())
		return
	}

	// meeting_ended is broadcast once the queue has drained.
	d.logger.Info().
		Str("sessionId", sess.ID).
		Str("clientId", c.ID).
		Int("queued", sess.QueueLen()).
		Msg("Meeting end requested, draining")
}

func (d *Dispatcher) handleAudioChunk(c *ws.Client, data json.RawMessage) {
	var msg protocol.AudioChunk
	if err := json.Unmarshal(data, &msg); err != nil {
		d.sendError(c, protocol.CodeInvalidMessage, "Malformed audio_chunk payload", nil)
		return
	}

	subscribed, ok := d.hub.SubscriptionOf(c.ID)
	if !ok || subscribed != msg.SessionID {
		d.sendError(c, protocol.CodeNoActiveMeeting, "No active meeting for this client", nil)
		return
	}

	sess := d.sessions.Get(msg.SessionID)
	if sess == nil {
		d.sendError(c, protocol.CodeMeetingNotFound, "Meeting not found", nil)
		return
	}

	payload, err := base64.StdEncoding.DecodeString(msg.Chunk)
	if err != nil {
		d.sendError(c, protocol.CodeAudioFailed, "Failed to decode audio chunk", nil)
		return
	}

	d.orchestrator.Enqueue(sess, &models.AudioChunk{
		SessionID:    msg.SessionID,
		ConnectionID: c.ID,
		Payload:      payload,
		Sequence:     msg.Sequence,
		Format:       msg.Format,
		ReceivedAt:   time.Now().UTC(),
	})
}

func (d *Dispatcher) handleSubscribe(c *ws.Client, data json.RawMessage) {
	var msg protocol.Subscribe
	if err := json.Unmarshal(data, &msg); err != nil {
		d.sendError(c, protocol.CodeInvalidMessage, "Malformed subscribe payload", nil)
		return
	}

	sess := d.sessions.Get(msg.SessionID)
	if sess == nil {
		d.sendError(c, protocol.CodeMeetingNotFound, "Meeting not found", nil)
		return
	}

	d.hub.Subscribe(c.ID, sess.ID)
	d.send(c, protocol.TypeSubscribed, protocol.Subscribed{SessionID: sess.ID})
	d.logger.Info().
		Str("sessionId", sess.ID).
		Str("clientId", c.ID).
		Msg("Client subscribed to session")
}

func (d *Dispatcher) send(c *ws.Client, msgType string, payload interface{}) {
	raw, err := protocol.Marshal(msgType, payload)
	if err != nil {
		d.logger.Error().Err(err).Str("type", msgType).Msg("Failed to marshal outbound message")
		return
	}
	d.hub.SendTo(c.ID, raw)
	d.metrics.MessagesSent.WithLabelValues(msgType).Inc()
}

func (d *Dispatcher) sendError(c *ws.Client, code, message string, details interface{}) {
	d.hub.SendTo(c.ID, protocol.MarshalError(code, message, details))
	d.metrics.ProtocolErrors.WithLabelValues(code).Inc()
	d.metrics.MessagesSent.WithLabelValues(protocol.TypeError).Inc()
}
