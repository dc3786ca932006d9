// Package stt defines the interface for speech-to-text providers.
package stt

import "context"

// Request carries one audio chunk to the provider. Prompt is the
// context built from recent transcripts and primes the provider for
// continuity across chunks.
type Request struct {
	Audio  []byte
	Format string
	Prompt string
}

// Segment is one timed span of the transcribed text.
type Segment struct {
	Start float64
	End   float64
	Text  string
}

// Result is the provider's response for a single chunk.
type Result struct {
	Text            string
	Language        string
	DurationSeconds float64
	Segments        []Segment
}

// Transcriber is implemented by STT providers (OpenAI, mock, etc.).
// One call per chunk; the orchestrator guarantees at most one call is
// in flight per session.
type Transcriber interface {
	// Name identifies the provider in logs and metrics.
	Name() string

	// Transcribe converts one audio chunk into text.
	Transcribe(ctx context.Context, req Request) (*Result, error)
}
