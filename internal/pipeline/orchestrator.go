// Package pipeline implements the ordered audio-processing pipeline:
// chunk validation, per-session FIFO draining, transcription,
// persistence and fan-out. The drain discipline guarantees at most one
// transcription call in flight per session, which is what yields
// per-session result ordering.
package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/patdiletx/DevMeet/internal/analysis"
	"github.com/patdiletx/DevMeet/internal/events"
	"github.com/patdiletx/DevMeet/internal/models"
	"github.com/patdiletx/DevMeet/internal/observability/metrics"
	"github.com/patdiletx/DevMeet/internal/protocol"
	"github.com/patdiletx/DevMeet/internal/session"
	"github.com/patdiletx/DevMeet/internal/stt"
)

// ResultStore is the persistence collaborator contract.
type ResultStore interface {
	SaveResult(ctx context.Context, r *models.TranscriptionResult) (int64, error)
	RecentResults(ctx context.Context, sessionID string, limit int) ([]models.TranscriptionResult, error)
	SaveHighlight(ctx context.Context, h *models.Highlight) error
	EndMeeting(ctx context.Context, sessionID string, endedAt time.Time) error
	SetSummary(ctx context.Context, sessionID, summary string) error
}

// Broadcaster delivers a marshaled envelope to a session's subscribers.
type Broadcaster interface {
	BroadcastToSession(sessionID string, message []byte) int
}

// Limits bounds chunk payloads before they enter a queue.
type Limits struct {
	MinChunkBytes int
	MaxChunkBytes int
}

// DefaultLimits rejects sub-1KiB noise and over-100MiB abuse.
func DefaultLimits() Limits {
	return Limits{
		MinChunkBytes: 1024,
		MaxChunkBytes: 100 * 1024 * 1024,
	}
}

// Orchestrator drains session queues strictly in order and pushes each
// produced result through persistence, the event mirror and fan-out.
type Orchestrator struct {
	transcriber stt.Transcriber
	store       ResultStore
	analyzer    analysis.Analyzer
	publisher   *events.Publisher
	broadcaster Broadcaster
	sessions    *session.Store
	metrics     *metrics.Metrics
	logger      zerolog.Logger

	limits        Limits
	analysisEvery int
	sweepInterval time.Duration

	stop chan struct{}
}

// Options configures an Orchestrator.
type Options struct {
	Transcriber stt.Transcriber
	Store       ResultStore
	Analyzer    analysis.Analyzer // optional
	Publisher   *events.Publisher // optional
	Broadcaster Broadcaster
	Sessions    *session.Store

	Limits        Limits
	AnalysisEvery int
	SweepInterval time.Duration
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	if opts.AnalysisEvery <= 0 {
		opts.AnalysisEvery = 5
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 2 * time.Second
	}
	if opts.Limits.MaxChunkBytes == 0 {
		opts.Limits = DefaultLimits()
	}
	if opts.Publisher == nil {
		opts.Publisher = events.New(nil)
	}
	return &Orchestrator{
		transcriber:   opts.Transcriber,
		store:         opts.Store,
		analyzer:      opts.Analyzer,
		publisher:     opts.Publisher,
		broadcaster:   opts.Broadcaster,
		sessions:      opts.Sessions,
		metrics:       metrics.DefaultMetrics,
		logger:        log.With().Str("component", "pipeline").Logger(),
		limits:        opts.Limits,
		analysisEvery: opts.AnalysisEvery,
		sweepInterval: opts.SweepInterval,
		stop:          make(chan struct{}),
	}
}

// Enqueue validates a chunk and appends it to the session's queue.
// Invalid chunks are logged and dropped; the pipeline continues and
// the caller gets no error. A drain attempt is triggered immediately
// after a successful append.
func (o *Orchestrator) Enqueue(sess *session.Session, chunk *models.AudioChunk) {
	size := len(chunk.Payload)
	if size < o.limits.MinChunkBytes {
		o.metrics.RecordChunkRejected("too_small")
		o.logger.Warn().
			Str("sessionId", chunk.SessionID).
			Int("sequence", chunk.Sequence).
			Int("bytes", size).
			Msg("Audio chunk below minimum size, dropping")
		return
	}
	if size > o.limits.MaxChunkBytes {
		o.metrics.RecordChunkRejected("too_large")
		o.logger.Warn().
			Str("sessionId", chunk.SessionID).
			Int("sequence", chunk.Sequence).
			Int("bytes", size).
			Msg("Audio chunk above maximum size, dropping")
		return
	}

	if chunk.Format == "" {
		chunk.Format = DetectFormat(chunk.Payload)
	}

	if err := sess.Enqueue(chunk); err != nil {
		o.metrics.RecordChunkRejected("session_state")
		o.logger.Warn().
			Err(err).
			Str("sessionId", chunk.SessionID).
			Int("sequence", chunk.Sequence).
			Msg("Audio chunk refused by session")
		return
	}

	o.metrics.RecordChunkAccepted(size)
	o.TriggerDrain(sess)
}

// TriggerDrain starts a drain goroutine if the session has queued work
// and no drain is running.
func (o *Orchestrator) TriggerDrain(sess *session.Session) {
	if sess.TryBeginDrain() {
		go o.drain(sess)
	}
}

// EndSession moves the session to DRAINING. Already-queued chunks are
// processed to completion; teardown runs once the queue quiesces.
func (o *Orchestrator) EndSession(sess *session.Session) error {
	if err := sess.BeginDraining(); err != nil {
		return err
	}
	// Nothing queued and nothing in flight: tear down right away.
	if sess.ClaimClose() {
		o.finalize(sess)
	}
	return nil
}

// drain processes the session's queue one chunk at a time until empty.
// The processing flag stays set for the whole pass, so a second drain
// can never start concurrently.
func (o *Orchestrator) drain(sess *session.Session) {
	ctx := context.Background()

	for {
		chunk, ok := sess.Dequeue()
		if !ok {
			if sess.FinishDrain() {
				// New chunks arrived between the last Dequeue and
				// FinishDrain; keep going.
				continue
			}
			break
		}
		o.metrics.RecordChunkDequeued()
		o.processChunk(ctx, sess, chunk)
	}

	if sess.ClaimClose() {
		o.finalize(sess)
	}
}

// processChunk runs one chunk through transcription, persistence,
// context update and fan-out. Failures skip the chunk, never the
// session.
func (o *Orchestrator) processChunk(ctx context.Context, sess *session.Session, chunk *models.AudioChunk) {
	prompt := sess.Window().BuildPrompt()

	start := time.Now()
	res, err := o.transcriber.Transcribe(ctx, stt.Request{
		Audio:  chunk.Payload,
		Format: chunk.Format,
		Prompt: prompt,
	})
	if err != nil {
		o.metrics.RecordTranscribeError(o.transcriber.Name())
		o.metrics.ChunksSkipped.WithLabelValues("provider_error").Inc()
		o.logger.Error().
			Err(err).
			Str("sessionId", sess.ID).
			Int("sequence", chunk.Sequence).
			Msg("Transcription failed, skipping chunk")
		return
	}
	o.metrics.RecordTranscription(o.transcriber.Name(), time.Since(start).Seconds())

	text := strings.TrimSpace(res.Text)
	if text == "" {
		o.metrics.ChunksSkipped.WithLabelValues("empty_text").Inc()
		o.logger.Debug().
			Str("sessionId", sess.ID).
			Int("sequence", chunk.Sequence).
			Msg("Empty transcription, skipping chunk")
		return
	}

	result := &models.TranscriptionResult{
		SessionID:  sess.ID,
		Content:    text,
		Speaker:    detectSpeaker(text),
		Confidence: confidence(res),
		Timestamp:  chunk.ReceivedAt,
		Metadata: map[string]interface{}{
			"language":     res.Language,
			"duration":     res.DurationSeconds,
			"segmentCount": len(res.Segments),
		},
	}

	if id, err := o.store.SaveResult(ctx, result); err != nil {
		// Availability over completeness: fan out anyway under a
		// synthetic id.
		result.ResultID = uuid.NewString()
		o.logger.Error().
			Err(err).
			Str("sessionId", sess.ID).
			Int("sequence", chunk.Sequence).
			Msg("Failed to persist transcription result")
	} else {
		result.ResultID = fmt.Sprintf("%d", id)
	}

	sess.Window().Append(text)
	processed := sess.IncProcessed()

	o.deliver(sess.ID, result)

	if err := o.publisher.PublishTranscript(ctx, sess.ID, models.TranscriptEvent{
		EventType:  "meeting.transcript.final",
		SessionID:  sess.ID,
		ResultID:   result.ResultID,
		Text:       result.Content,
		Speaker:    result.Speaker,
		Confidence: result.Confidence,
		Timestamp:  time.Now().UnixMilli(),
	}); err != nil {
		o.logger.Error().Err(err).Str("sessionId", sess.ID).Msg("Failed to mirror transcript event")
	}

	if processed%o.analysisEvery == 0 {
		go o.analyze(sess.ID)
	}
}

// deliver marshals the result and fans it out to subscribers.
func (o *Orchestrator) deliver(sessionID string, result *models.TranscriptionResult) {
	raw, err := protocol.Marshal(protocol.TypeTranscription, protocol.Transcription{
		SessionID:  result.SessionID,
		ResultID:   result.ResultID,
		Content:    result.Content,
		Speaker:    result.Speaker,
		Confidence: result.Confidence,
		Timestamp:  result.Timestamp.UTC().Format(time.RFC3339),
	})
	if err != nil {
		o.logger.Error().Err(err).Str("sessionId", sessionID).Msg("Failed to marshal transcription message")
		return
	}
	n := o.broadcaster.BroadcastToSession(sessionID, raw)
	o.logger.Debug().
		Str("sessionId", sessionID).
		Str("resultId", result.ResultID).
		Int("subscribers", n).
		Msg("Transcription delivered")
}

// analyze runs the best-effort highlight extraction over recent
// transcripts. Failures are logged only; the primary pipeline is
// already past this point.
func (o *Orchestrator) analyze(sessionID string) {
	if o.analyzer == nil {
		return
	}
	o.metrics.AnalysisRuns.Inc()

	ctx := context.Background()
	recent, err := o.store.RecentResults(ctx, sessionID, 50)
	if err != nil {
		o.metrics.AnalysisErrors.Inc()
		o.logger.Error().Err(err).Str("sessionId", sessionID).Msg("Failed to load transcripts for analysis")
		return
	}
	if len(recent) == 0 {
		return
	}

	highlights, err := o.analyzer.ExtractHighlights(ctx, sessionID, formatTranscript(recent))
	if err != nil {
		o.metrics.AnalysisErrors.Inc()
		o.logger.Error().Err(err).Str("sessionId", sessionID).Msg("Highlight analysis failed")
		return
	}

	for _, h := range highlights {
		if err := o.store.SaveHighlight(ctx, &h); err != nil {
			o.logger.Error().Err(err).Str("sessionId", sessionID).Msg("Failed to persist highlight")
		}
		if err := o.publisher.PublishHighlight(ctx, sessionID, models.HighlightEvent{
			EventType:   "meeting.highlight",
			SessionID:   sessionID,
			Description: h.Description,
			Assignee:    h.Assignee,
			Priority:    h.Priority,
			Timestamp:   time.Now().UnixMilli(),
		}); err != nil {
			o.logger.Error().Err(err).Str("sessionId", sessionID).Msg("Failed to mirror highlight event")
		}
	}
	o.logger.Info().
		Str("sessionId", sessionID).
		Int("highlights", len(highlights)).
		Msg("Highlight analysis completed")
}

// finalize tears down a fully drained session: stamp the meeting row,
// notify subscribers, generate the summary and release the record.
func (o *Orchestrator) finalize(sess *session.Session) {
	ctx := context.Background()
	endedAt := time.Now().UTC()

	if err := o.store.EndMeeting(ctx, sess.ID, endedAt); err != nil {
		o.logger.Error().Err(err).Str("sessionId", sess.ID).Msg("Failed to stamp meeting end")
	}

	duration := int64(endedAt.Sub(sess.StartedAt).Seconds())
	if duration < 0 {
		duration = 0
	}

	raw, err := protocol.Marshal(protocol.TypeMeetingEnded, protocol.MeetingEnded{
		SessionID:       sess.ID,
		EndedAt:         endedAt.Format(time.RFC3339),
		DurationSeconds: duration,
	})
	if err == nil {
		o.broadcaster.BroadcastToSession(sess.ID, raw)
	}

	o.summarize(sess.ID)

	sess.MarkClosed()
	o.sessions.Remove(sess.ID)
	o.metrics.RecordSessionEnd(endedAt.Sub(sess.StartedAt).Seconds())

	o.logger.Info().
		Str("sessionId", sess.ID).
		Int("chunksProcessed", sess.Processed()).
		Int64("durationSeconds", duration).
		Msg("Session closed")
}

// summarize generates and stores the final meeting summary. Best
// effort, like the highlight pass.
func (o *Orchestrator) summarize(sessionID string) {
	if o.analyzer == nil {
		return
	}

	ctx := context.Background()
	results, err := o.store.RecentResults(ctx, sessionID, 1000)
	if err != nil || len(results) == 0 {
		return
	}

	summary, err := o.analyzer.Summarize(ctx, formatTranscript(results))
	if err != nil {
		o.logger.Error().Err(err).Str("sessionId", sessionID).Msg("Summary generation failed")
		return
	}
	if err := o.store.SetSummary(ctx, sessionID, summary); err != nil {
		o.logger.Error().Err(err).Str("sessionId", sessionID).Msg("Failed to persist summary")
	}
}

// StartSweep launches the periodic sweep that re-triggers drains for
// idle non-empty queues and finalizes quiesced draining sessions. This
// defends against a missed drain trigger.
func (o *Orchestrator) StartSweep() {
	go func() {
		ticker := time.NewTicker(o.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				for _, sess := range o.sessions.List() {
					o.TriggerDrain(sess)
					if sess.ClaimClose() {
						o.finalize(sess)
					}
				}
			case <-o.stop:
				return
			}
		}
	}()
}

// Shutdown stops the sweep.
func (o *Orchestrator) Shutdown() {
	close(o.stop)
}

var speakerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^([a-zA-Z][\w ]*):`),
	regexp.MustCompile(`\[([a-zA-Z][\w ]*)\]`),
}

// detectSpeaker pulls a speaker label out of the text when the
// transcript carries one ("Maria: ..." or "[Diego] ...").
func detectSpeaker(text string) string {
	for _, pattern := range speakerPatterns {
		if m := pattern.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

// confidence estimates a confidence score when the provider supplies
// none: more segments and longer text both read as higher confidence,
// scaled into [0.1, 1.0].
func confidence(res *stt.Result) float64 {
	if len(res.Segments) == 0 {
		return 0.7
	}

	segmentScore := float64(len(res.Segments)) / 10
	if segmentScore > 1 {
		segmentScore = 1
	}
	lengthScore := float64(len(res.Text)) / 100
	if lengthScore > 1 {
		lengthScore = 1
	}

	return (segmentScore*0.4+lengthScore*0.6)*0.9 + 0.1
}

// formatTranscript renders results as the line-per-utterance text the
// analysis collaborator expects.
func formatTranscript(results []models.TranscriptionResult) string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		speaker := r.Speaker
		if speaker == "" {
			speaker = "Unknown"
		}
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", r.Timestamp.Format(time.RFC3339), speaker, r.Content))
	}
	return strings.Join(lines, "\n")
}
