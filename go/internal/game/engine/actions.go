package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/geoduel/geoduel/go/internal/game/events"
)

// The action gateway: every local intent is validated against current state
// before the transport is invoked, and every transport failure is converted
// into a reported error plus a state rollback. The error is also returned so
// callers can branch on it, but state is already consistent by then.

// JoinMatchmaking puts the player in the queue, connecting first if needed.
// A transport failure reverts matchmaking to idle.
func (e *Engine) JoinMatchmaking(ctx context.Context) error {
	if !e.IsConnected() {
		if err := e.Connect(ctx); err != nil {
			e.reportErr(err)
			return err
		}
	}

	e.mu.Lock()
	e.state.MatchmakingStatus = MatchmakingSearching
	e.mu.Unlock()

	message, err := e.transport.JoinMatchmaking(ctx, e.playerID)
	if err != nil {
		e.mu.Lock()
		e.state.MatchmakingStatus = MatchmakingIdle
		e.mu.Unlock()
		wrapped := fmt.Errorf("join matchmaking: %w", err)
		e.reportErr(wrapped)
		return wrapped
	}

	log.Info().Str("player_id", e.playerID).Str("server_message", message).Msg("joined matchmaking queue")
	return nil
}

// LeaveMatchmaking removes the player from the queue. Safe to call when not
// searching; the server treats it as a no-op.
func (e *Engine) LeaveMatchmaking(ctx context.Context) error {
	if err := e.transport.LeaveMatchmaking(ctx, e.playerID); err != nil {
		wrapped := fmt.Errorf("leave matchmaking: %w", err)
		e.reportErr(wrapped)
		return wrapped
	}

	e.mu.Lock()
	e.state.MatchmakingStatus = MatchmakingIdle
	e.mu.Unlock()
	return nil
}

// StartRound asks the server for the next round. Previous round state is
// cleared before the remote call resolves so consumers never render stale
// round data while waiting for RoundStarted.
func (e *Engine) StartRound(ctx context.Context) error {
	e.mu.Lock()
	if e.state.CurrentMatch == nil {
		e.mu.Unlock()
		e.reportErr(ErrNoActiveMatch)
		return ErrNoActiveMatch
	}
	matchID := e.state.CurrentMatch.ID
	e.state.CurrentRound = nil
	e.state.CurrentLocation = nil
	e.state.MyGuess = nil
	e.state.OpponentGuess = nil
	e.state.YouSubmitted = false
	e.state.OpponentSubmitted = false
	e.state.GameStatus = GameWaiting
	e.mu.Unlock()

	if err := e.transport.StartRound(ctx, matchID); err != nil {
		wrapped := fmt.Errorf("start round: %w", err)
		e.reportErr(wrapped)
		return wrapped
	}
	return nil
}

// SubmitGuess sends the local player's guess for the active round and
// records it optimistically on success. The GuessSubmitted ack only flips
// the submission flag; it does not re-supply the coordinate.
func (e *Engine) SubmitGuess(ctx context.Context, x, y float64) error {
	e.mu.Lock()
	switch {
	case e.state.CurrentMatch == nil:
		e.mu.Unlock()
		e.reportErr(ErrNoActiveMatch)
		return ErrNoActiveMatch
	case e.state.CurrentRound == nil:
		e.mu.Unlock()
		e.reportErr(ErrNoActiveRound)
		return ErrNoActiveRound
	case e.state.GameStatus != GameRoundActive:
		e.mu.Unlock()
		e.reportErr(ErrRoundNotActive)
		return ErrRoundNotActive
	}
	matchID := e.state.CurrentMatch.ID
	e.mu.Unlock()

	if err := e.transport.SubmitGuess(ctx, matchID, e.playerID, x, y); err != nil {
		wrapped := fmt.Errorf("submit guess: %w", err)
		e.reportErr(wrapped)
		return wrapped
	}

	e.mu.Lock()
	e.state.MyGuess = &events.Coordinate{X: x, Y: y}
	e.mu.Unlock()

	log.Info().
		Str("match_id", matchID).
		Float64("x", x).
		Float64("y", y).
		Msg("guess submitted")
	return nil
}

// SyncMatchStatus requests a reconciliation pull after a reconnect. The
// server answers with a MatchStatus push event. No-op without a match.
func (e *Engine) SyncMatchStatus(ctx context.Context) error {
	e.mu.Lock()
	if e.state.CurrentMatch == nil {
		e.mu.Unlock()
		return nil
	}
	matchID := e.state.CurrentMatch.ID
	e.mu.Unlock()

	if err := e.transport.GetMatchStatus(ctx, matchID); err != nil {
		wrapped := fmt.Errorf("get match status: %w", err)
		e.reportErr(wrapped)
		return wrapped
	}
	return nil
}
