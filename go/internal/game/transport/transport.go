package transport

import (
	"context"
	"errors"
)

// ErrNotConnected is returned by outbound calls made before Connect succeeds
// or after the connection is lost.
var ErrNotConnected = errors.New("not connected to game server")

// Transport is the persistent channel to the game server: five outbound
// calls plus a stream of named push events delivered on the Bus. Responses
// to GetMatchStatus arrive as a MatchStatus push event, not as a return
// value, so a reconciliation pull and a server-initiated status update look
// identical to the engine.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool

	JoinMatchmaking(ctx context.Context, playerID string) (string, error)
	LeaveMatchmaking(ctx context.Context, playerID string) error
	StartRound(ctx context.Context, matchID string) error
	SubmitGuess(ctx context.Context, matchID, playerID string, x, y float64) error
	GetMatchStatus(ctx context.Context, matchID string) error

	Events() *Bus
}
