// Package mock provides a scripted stt.Transcriber for development and
// tests: no credentials, no network, deterministic ordering.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/patdiletx/DevMeet/internal/stt"
)

// DefaultScript is the cycle of texts returned for successive chunks.
var DefaultScript = []string{
	"Let's get started with the standup",
	"Maria: yesterday I finished the ingestion pipeline",
	"I will pick up the reconnect handling next",
	"Can someone review the persistence change today",
	"[Diego] action item assign the release notes to me",
	"That covers everything, thanks all",
}

// Transcriber cycles through a fixed script, one entry per chunk.
type Transcriber struct {
	mu     sync.Mutex
	script []string
	next   int

	// Delay simulates provider latency. Zero disables it.
	Delay time.Duration
}

// New creates a mock transcriber over the default script.
func New() *Transcriber {
	return &Transcriber{script: DefaultScript}
}

// NewWithScript creates a mock transcriber over a custom script.
func NewWithScript(script []string) *Transcriber {
	return &Transcriber{script: script}
}

// Name identifies the provider in logs and metrics.
func (t *Transcriber) Name() string { return "mock" }

// Transcribe returns the next scripted text. The segment list is a
// single span sized off the payload so the confidence heuristic has
// something to work with.
func (t *Transcriber) Transcribe(ctx context.Context, req stt.Request) (*stt.Result, error) {
	if t.Delay > 0 {
		select {
		case <-time.After(t.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	t.mu.Lock()
	text := t.script[t.next%len(t.script)]
	t.next++
	t.mu.Unlock()

	duration := float64(len(req.Audio)) / 16000.0

	return &stt.Result{
		Text:            text,
		Language:        "en",
		DurationSeconds: duration,
		Segments: []stt.Segment{
			{Start: 0, End: duration, Text: text},
		},
	}, nil
}
