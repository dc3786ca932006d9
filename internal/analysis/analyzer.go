// Package analysis extracts highlights (action items) and summaries
// from transcript text. Everything here is best-effort: callers log
// failures and move on, the primary pipeline never waits on analysis
// correctness.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/patdiletx/DevMeet/internal/models"
)

// Analyzer is the collaborator contract consumed by the pipeline.
type Analyzer interface {
	// ExtractHighlights pulls action items from recent transcript text.
	ExtractHighlights(ctx context.Context, sessionID, transcript string) ([]models.Highlight, error)

	// Summarize produces a short meeting summary from the full transcript.
	Summarize(ctx context.Context, transcript string) (string, error)
}

const highlightsPrompt = `You are an assistant that extracts action items from meeting transcripts.
Given the transcript below, return a JSON array where each element has
"description", "assignee" (empty string if unknown) and "priority"
("low", "medium" or "high"). Return only the JSON array, nothing else.

Transcript:
%s`

const summaryPrompt = `Summarize the following meeting transcript in a short paragraph
covering the main topics discussed and the decisions made.

Transcript:
%s`

// OpenAI implements Analyzer over the chat completions API.
type OpenAI struct {
	client *goopenai.Client
	model  string
}

// NewOpenAI creates an analyzer backed by the given API key.
func NewOpenAI(apiKey, model string) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("analysis: API key is required")
	}
	if model == "" {
		model = goopenai.GPT4oMini
	}
	return &OpenAI{
		client: goopenai.NewClient(apiKey),
		model:  model,
	}, nil
}

// ExtractHighlights asks the model for action items in recent
// transcript text and parses the JSON reply.
func (a *OpenAI) ExtractHighlights(ctx context.Context, sessionID, transcript string) ([]models.Highlight, error) {
	reply, err := a.complete(ctx, fmt.Sprintf(highlightsPrompt, transcript))
	if err != nil {
		return nil, err
	}

	highlights, err := ParseHighlights(reply)
	if err != nil {
		return nil, err
	}
	for i := range highlights {
		highlights[i].SessionID = sessionID
	}
	return highlights, nil
}

// Summarize produces the final meeting summary.
func (a *OpenAI) Summarize(ctx context.Context, transcript string) (string, error) {
	return a.complete(ctx, fmt.Sprintf(summaryPrompt, transcript))
}

func (a *OpenAI) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := a.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: a.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// ParseHighlights decodes the model's JSON reply. Models occasionally
// wrap the array in a markdown fence; strip it before decoding.
func ParseHighlights(reply string) ([]models.Highlight, error) {
	cleaned := strings.TrimSpace(reply)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var highlights []models.Highlight
	if err := json.Unmarshal([]byte(cleaned), &highlights); err != nil {
		return nil, fmt.Errorf("parse highlights reply: %w", err)
	}

	out := highlights[:0]
	for _, h := range highlights {
		if strings.TrimSpace(h.Description) == "" {
			continue
		}
		switch h.Priority {
		case "low", "medium", "high":
		default:
			h.Priority = "medium"
		}
		out = append(out, h)
	}
	return out, nil
}
