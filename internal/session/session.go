// Package session owns the per-session mutable state: the ordered
// chunk queue, the single in-flight processing flag, the rolling
// context window and the lifecycle state machine.
package session

import (
	"sync"
	"time"

	"github.com/patdiletx/DevMeet/internal/models"
)

// Session is one live audio-capture-and-transcription episode. Its
// queue, context window and processing flag are mutated only through
// the methods below; the drain loop is the single logical consumer.
//
// State transitions:
//
//	ACTIVE → DRAINING → CLOSED
//
// DRAINING stops chunk acceptance but the queue is still processed to
// completion before the session closes.
type Session struct {
	ID        string
	Title     string
	OwnerConn string
	StartedAt time.Time

	window *ContextWindow

	mu         sync.Mutex
	state      State
	queue      []*models.AudioChunk
	processing bool
	processed  int
	closing    bool
}

func newSession(id, title, ownerConn string, window *ContextWindow) *Session {
	return &Session{
		ID:        id,
		Title:     title,
		OwnerConn: ownerConn,
		StartedAt: time.Now().UTC(),
		window:    window,
		state:     StateActive,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Window returns the session's context window.
func (s *Session) Window() *ContextWindow {
	return s.window
}

// Enqueue appends a validated chunk to the ordered queue. Chunks are
// refused once the session leaves ACTIVE.
func (s *Session) Enqueue(chunk *models.AudioChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateActive:
		s.queue = append(s.queue, chunk)
		return nil
	case StateDraining:
		return ErrSessionDraining
	default:
		return ErrSessionClosed
	}
}

// TryBeginDrain claims the drain if nothing is processing and the
// queue is non-empty. The caller that receives true owns the drain
// until FinishDrain reports no more work; this is what guarantees at
// most one in-flight transcription per session.
func (s *Session) TryBeginDrain() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.processing || len(s.queue) == 0 {
		return false
	}
	s.processing = true
	return true
}

// Dequeue pops the oldest queued chunk. Only the drain owner calls it.
func (s *Session) Dequeue() (*models.AudioChunk, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return nil, false
	}
	chunk := s.queue[0]
	s.queue = s.queue[1:]
	return chunk, true
}

// FinishDrain releases the processing flag if the queue stayed empty.
// When chunks arrived while the last one was transcribing it keeps the
// flag and tells the caller to continue, so no trigger is lost.
func (s *Session) FinishDrain() (more bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) > 0 {
		return true
	}
	s.processing = false
	return false
}

// Processing reports whether a drain currently owns the session.
func (s *Session) Processing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processing
}

// QueueLen returns the number of queued chunks.
func (s *Session) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// IncProcessed bumps the processed-chunk counter and returns it.
func (s *Session) IncProcessed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed++
	return s.processed
}

// Processed returns the processed-chunk counter.
func (s *Session) Processed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processed
}

// BeginDraining moves ACTIVE → DRAINING.
func (s *Session) BeginDraining() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateActive:
		s.state = StateDraining
		return nil
	case StateDraining:
		return ErrAlreadyDraining
	default:
		return ErrSessionClosed
	}
}

// ReadyToClose reports whether a draining session has fully quiesced.
func (s *Session) ReadyToClose() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateDraining && len(s.queue) == 0 && !s.processing
}

// ClaimClose grants exactly one caller the right to finalize a
// quiesced draining session. Both the drain loop and the periodic
// sweep race for this; only the winner runs teardown.
func (s *Session) ClaimClose() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateDraining || len(s.queue) > 0 || s.processing || s.closing {
		return false
	}
	s.closing = true
	return true
}

// MarkClosed moves the session to its terminal state.
func (s *Session) MarkClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateClosed
}
