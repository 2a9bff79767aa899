package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState means a local action was attempted outside its legal phase
	ErrInvalidState = errors.New("invalid state for action")
	// ErrNoActiveMatch means the action needs a current match
	ErrNoActiveMatch = fmt.Errorf("%w: no active match", ErrInvalidState)
	// ErrNoActiveRound means the action needs an active round
	ErrNoActiveRound = fmt.Errorf("%w: no active round", ErrInvalidState)
	// ErrRoundNotActive means a guess was attempted outside ROUND_ACTIVE
	ErrRoundNotActive = fmt.Errorf("%w: round is not active", ErrInvalidState)
)

// RemoteError is an opaque server-pushed error, forwarded to the consumer
// for display. It never mutates session state.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "game server error: " + e.Message
}
