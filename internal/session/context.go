package session

import (
	"strings"
	"sync"
)

// promptEntries is how many of the retained entries feed the prompt.
const promptEntries = 3

// ContextWindow keeps the most recent transcript texts for a session
// and builds the continuity prompt for the next transcription call.
// Purely additive and evicting; past entries are never mutated.
type ContextWindow struct {
	mu         sync.Mutex
	entries    []string
	maxEntries int
	budget     int
}

// NewContextWindow creates a window retaining at most maxEntries texts
// and producing prompts of at most budget characters.
func NewContextWindow(maxEntries, budget int) *ContextWindow {
	return &ContextWindow{
		maxEntries: maxEntries,
		budget:     budget,
	}
}

// Append records a transcript text, evicting the oldest entry once the
// window is full.
func (w *ContextWindow) Append(text string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.entries = append(w.entries, text)
	if len(w.entries) > w.maxEntries {
		w.entries = w.entries[len(w.entries)-w.maxEntries:]
	}
}

// Len returns how many entries the window currently retains.
func (w *ContextWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

// BuildPrompt joins the most recent entries and truncates from the
// front so the most recent text survives the character budget.
func (w *ContextWindow) BuildPrompt() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	recent := w.entries
	if len(recent) > promptEntries {
		recent = recent[len(recent)-promptEntries:]
	}
	prompt := strings.Join(recent, " ")
	if w.budget > 0 && len(prompt) > w.budget {
		prompt = prompt[len(prompt)-w.budget:]
	}
	return prompt
}

// Entries returns a copy of the retained entries, oldest first.
func (w *ContextWindow) Entries() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.entries))
	copy(out, w.entries)
	return out
}
