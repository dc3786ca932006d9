package session

import (
	"errors"
	"fmt"
)

// State represents the lifecycle state of a session.
type State int

const (
	// StateActive - session accepts chunks and drains its queue.
	StateActive State = iota
	// StateDraining - end requested; no new chunks accepted, the
	// already-enqueued chunks are still processed to completion.
	StateDraining
	// StateClosed - resources released. Terminal.
	StateClosed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateDraining:
		return "DRAINING"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// Errors for invalid state transitions.
var (
	ErrSessionClosed   = errors.New("session is closed")
	ErrSessionDraining = errors.New("session is draining, no new chunks accepted")
	ErrAlreadyDraining = errors.New("session is already draining")
)
