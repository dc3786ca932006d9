// Package openai implements the stt.Transcriber interface against the
// OpenAI audio transcription API.
package openai

import (
	"bytes"
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	goopenai "github.com/sashabaranov/go-openai"

	"github.com/patdiletx/DevMeet/internal/stt"
)

// Config holds provider configuration.
type Config struct {
	APIKey   string
	Model    string // defaults to whisper-1
	Language string // optional ISO language hint
}

// Transcriber calls the OpenAI transcription endpoint once per chunk.
type Transcriber struct {
	client   *goopenai.Client
	model    string
	language string
}

// New creates a new OpenAI transcriber.
func New(cfg Config) (*Transcriber, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = goopenai.Whisper1
	}
	return &Transcriber{
		client:   goopenai.NewClient(cfg.APIKey),
		model:    model,
		language: cfg.Language,
	}, nil
}

// Name identifies the provider in logs and metrics.
func (t *Transcriber) Name() string { return "openai" }

// Transcribe sends one chunk to the transcription API. The verbose
// response format is requested so segment timings come back for the
// confidence heuristic downstream.
func (t *Transcriber) Transcribe(ctx context.Context, req stt.Request) (*stt.Result, error) {
	format := req.Format
	if format == "" {
		format = "webm"
	}

	resp, err := t.client.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    t.model,
		FilePath: "chunk." + format,
		Reader:   bytes.NewReader(req.Audio),
		Prompt:   req.Prompt,
		Language: t.language,
		// Slightly above zero so unclear real-time audio still decodes.
		Temperature: 0.2,
		Format:      goopenai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("openai transcription: %w", err)
	}

	segments := make([]stt.Segment, 0, len(resp.Segments))
	for _, seg := range resp.Segments {
		segments = append(segments, stt.Segment{
			Start: seg.Start,
			End:   seg.End,
			Text:  seg.Text,
		})
	}

	log.Debug().
		Str("language", resp.Language).
		Float64("duration", resp.Duration).
		Int("segments", len(segments)).
		Msg("OpenAI transcription completed")

	return &stt.Result{
		Text:            resp.Text,
		Language:        resp.Language,
		DurationSeconds: resp.Duration,
		Segments:        segments,
	}, nil
}
