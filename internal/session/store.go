package session

import (
	"sync"

	"github.com/google/uuid"
)

// Store maps session identifiers to live session state. Insert and
// remove are explicit: sessions exist from Create until Remove, never
// cleaned up implicitly.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	contextEntries int
	contextBudget  int
}

// NewStore creates an empty session store. The context parameters size
// each new session's rolling window.
func NewStore(contextEntries, contextBudget int) *Store {
	return &Store{
		sessions:       make(map[string]*Session),
		contextEntries: contextEntries,
		contextBudget:  contextBudget,
	}
}

// Create allocates a fresh session owned by the given connection.
func (st *Store) Create(title, ownerConn string) *Session {
	s := newSession(
		uuid.NewString(),
		title,
		ownerConn,
		NewContextWindow(st.contextEntries, st.contextBudget),
	)

	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	return s
}

// Get returns the session for id, or nil when unknown.
func (st *Store) Get(id string) *Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.sessions[id]
}

// Remove releases the session record. The session itself should
// already be CLOSED.
func (st *Store) Remove(id string) {
	st.mu.Lock()
	delete(st.sessions, id)
	st.mu.Unlock()
}

// List snapshots the live sessions, in no particular order.
func (st *Store) List() []*Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s)
	}
	return out
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
