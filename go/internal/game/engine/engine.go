package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/geoduel/geoduel/go/internal/game/events"
	"github.com/geoduel/geoduel/go/internal/game/transport"
)

const defaultCountdownSeconds = 3

// Engine is the session state machine. It is the only writer of State:
// inbound events, timer callbacks and local actions all funnel through its
// mutex, so the application of any single event is atomic with respect to
// Snapshot reads.
type Engine struct {
	playerID  string
	transport transport.Transport
	clock     clockwork.Clock
	reportErr func(error)

	opponentProgress bool
	countdownSecs    int

	mu           sync.Mutex
	state        State
	connected    bool
	ledger       *Ledger
	countdown    *Countdown
	roundTimer   *RoundTimer
	unsubscribes []func()
	runCtx       context.Context
	runCancel    context.CancelFunc
}

// Option configures an Engine
type Option func(*Engine)

// WithClock replaces the wall clock. Tests pass a clockwork.FakeClock.
func WithClock(clock clockwork.Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithErrorReporter replaces the consumer-facing error sink. Reported errors
// are the user-visible ones: rolled-back action failures and server-pushed
// errors. The default logs them.
func WithErrorReporter(report func(error)) Option {
	return func(e *Engine) { e.reportErr = report }
}

// WithOpponentProgress toggles the opponent-submission indicator. When
// disabled, OpponentSubmitted events are ignored.
func WithOpponentProgress(enabled bool) Option {
	return func(e *Engine) { e.opponentProgress = enabled }
}

// WithCountdownSeconds overrides the match-found countdown length
func WithCountdownSeconds(seconds int) Option {
	return func(e *Engine) { e.countdownSecs = seconds }
}

// NewEngine creates a session engine for one local player. The player id is
// passed in explicitly; the engine never reads ambient identity state.
func NewEngine(playerID string, tp transport.Transport, opts ...Option) *Engine {
	e := &Engine{
		playerID:         playerID,
		transport:        tp,
		clock:            clockwork.NewRealClock(),
		opponentProgress: true,
		countdownSecs:    defaultCountdownSeconds,
		state:            initialState(),
		ledger:           NewLedger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.reportErr == nil {
		e.reportErr = func(err error) {
			log.Error().Err(err).Msg("game session error")
		}
	}
	e.countdown = NewCountdown(e.clock)
	e.roundTimer = NewRoundTimer(e.clock)
	return e
}

// PlayerID returns the local player identity
func (e *Engine) PlayerID() string {
	return e.playerID
}

// Connect subscribes every event handler and then starts the transport, in
// that order, so no event can arrive before a handler exists. It is a no-op
// when already connected.
func (e *Engine) Connect(ctx context.Context) error {
	e.mu.Lock()
	if e.connected {
		e.mu.Unlock()
		return nil
	}
	e.subscribeLocked()
	e.mu.Unlock()

	if err := e.transport.Connect(ctx); err != nil {
		e.mu.Lock()
		e.unsubscribeLocked()
		e.mu.Unlock()
		return fmt.Errorf("connect to game server: %w", err)
	}

	e.mu.Lock()
	e.connected = true
	e.runCtx, e.runCancel = context.WithCancel(context.Background())
	e.mu.Unlock()

	log.Info().Str("player_id", e.playerID).Msg("game session connected")
	return nil
}

// Disconnect cancels both timers, clears the dedup ledger, stops the
// transport and resets the session to its initial shape. It always succeeds
// locally even if the remote teardown fails.
func (e *Engine) Disconnect(ctx context.Context) error {
	e.countdown.Stop()
	e.roundTimer.Stop()

	e.mu.Lock()
	e.unsubscribeLocked()
	wasConnected := e.connected
	e.connected = false
	if e.runCancel != nil {
		e.runCancel()
		e.runCtx, e.runCancel = nil, nil
	}
	e.ledger.Reset()
	e.state = initialState()
	e.mu.Unlock()

	if wasConnected {
		if err := e.transport.Disconnect(ctx); err != nil {
			log.Warn().Err(err).Msg("transport teardown failed")
		}
		log.Info().Str("player_id", e.playerID).Msg("game session disconnected")
	}
	return nil
}

// IsConnected reports whether the session channel is up
func (e *Engine) IsConnected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connected && e.transport.IsConnected()
}

// Snapshot returns a deep copy of the session state plus the derived timer
// values. Consumers never see a partial update.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		State:            e.state.clone(),
		Connected:        e.connected && e.transport.IsConnected(),
		CountdownSeconds: e.countdown.Seconds(),
		RemainingSeconds: e.roundTimer.Remaining(),
	}
}

// subscribeLocked registers the dispatch handler for every event type on the
// transport bus
func (e *Engine) subscribeLocked() {
	bus := e.transport.Events()
	types := []events.EventType{
		events.EventTypeMatchFound,
		events.EventTypeRoundStarted,
		events.EventTypeGuessSubmitted,
		events.EventTypeOpponentSubmitted,
		events.EventTypeTimerAdjusted,
		events.EventTypeRoundEnded,
		events.EventTypeMatchEnded,
		events.EventTypeMatchStatus,
		events.EventTypeLeftQueue,
		events.EventTypeError,
	}
	for _, eventType := range types {
		e.unsubscribes = append(e.unsubscribes, bus.Subscribe(eventType, e.handleEvent))
	}
}

func (e *Engine) unsubscribeLocked() {
	for _, unsub := range e.unsubscribes {
		unsub()
	}
	e.unsubscribes = nil
}

// handleEvent parses the inbound envelope and dispatches the typed payload.
// Malformed payloads are logged and dropped; session state stays untouched.
func (e *Engine) handleEvent(event *events.GameEvent) {
	payload, err := events.ParseEventPayload(event)
	if err != nil {
		log.Error().
			Err(err).
			Str("event_type", string(event.Type)).
			Str("match_id", event.MatchID).
			Msg("malformed event payload")
		return
	}

	switch p := payload.(type) {
	case events.MatchFoundPayload:
		e.handleMatchFound(p)
	case events.RoundStartedPayload:
		e.handleRoundStarted(p)
	case events.GuessSubmittedPayload:
		e.handleGuessSubmitted(p)
	case events.OpponentSubmittedPayload:
		e.handleOpponentSubmitted(p)
	case events.TimerAdjustedPayload:
		e.handleTimerAdjusted(p)
	case events.RoundEndedPayload:
		e.handleRoundEnded(p)
	case events.MatchEndedPayload:
		e.handleMatchEnded(p)
	case events.MatchSnapshot:
		e.handleMatchStatus(p)
	case events.LeftQueuePayload:
		e.handleLeftQueue(p)
	case events.ErrorPayload:
		e.handleServerError(p)
	default:
		log.Warn().Str("event_type", string(event.Type)).Msg("unhandled event type")
	}
}

// handleMatchFound opens a new match: fresh dedup key space, zeroed totals,
// and the synchronized pre-round countdown.
func (e *Engine) handleMatchFound(p events.MatchFoundPayload) {
	e.mu.Lock()
	e.ledger.Reset()
	e.state.MatchmakingStatus = MatchmakingMatchFound
	e.state.GameStatus = GameWaiting
	e.state.CurrentMatch = &Match{
		ID:        p.MatchID,
		PlayerAID: p.PlayerAID,
		PlayerBID: p.PlayerBID,
		StartTime: p.StartTime,
		Rounds:    []Round{},
	}
	e.state.CurrentRound = nil
	e.state.CurrentLocation = nil
	e.state.MyGuess = nil
	e.state.OpponentGuess = nil
	e.state.YouSubmitted = false
	e.state.OpponentSubmitted = false
	e.mu.Unlock()

	log.Info().
		Str("match_id", p.MatchID).
		Str("player_a", p.PlayerAID).
		Str("player_b", p.PlayerBID).
		Msg("match found")

	e.countdown.Start(e.countdownSecs, e.onCountdownExpired)
}

// onCountdownExpired fires once after the pre-round countdown. Only the peer
// seeded as player A requests the round; requesting from both sides would
// race at the server. Both peers still observe RoundStarted identically.
func (e *Engine) onCountdownExpired() {
	e.mu.Lock()
	match := e.state.CurrentMatch
	ctx := e.runCtx
	e.mu.Unlock()

	if match == nil || match.PlayerAID != e.playerID {
		return
	}
	if ctx == nil {
		return
	}
	if err := e.StartRound(ctx); err != nil {
		log.Error().Err(err).Str("match_id", match.ID).Msg("failed to start round after countdown")
	}
}

// handleRoundStarted begins a fresh round and anchors the round timer from
// the server's (startedAt, durationSeconds) pair.
func (e *Engine) handleRoundStarted(p events.RoundStartedPayload) {
	e.mu.Lock()
	// A replayed start of a round we already recorded as completed would
	// roll round numbers backwards; drop it.
	if e.ledger.SeenRoundEnded(p.MatchID, p.RoundID) {
		e.mu.Unlock()
		log.Debug().Str("round_id", p.RoundID).Msg("ignoring replayed RoundStarted for completed round")
		return
	}

	var playerAID, playerBID string
	if e.state.CurrentMatch != nil {
		playerAID = e.state.CurrentMatch.PlayerAID
		playerBID = e.state.CurrentMatch.PlayerBID
	}

	location := p.Location
	e.state.MatchmakingStatus = MatchmakingIdle
	e.state.GameStatus = GameRoundActive
	e.state.CurrentLocation = &location
	e.state.CurrentRound = &Round{
		ID:          p.RoundID,
		MatchID:     p.MatchID,
		RoundNumber: p.RoundNumber,
		PlayerAID:   playerAID,
		PlayerBID:   playerBID,
	}
	e.state.MyGuess = nil
	e.state.OpponentGuess = nil
	e.state.YouSubmitted = false
	e.state.OpponentSubmitted = false
	e.mu.Unlock()

	e.roundTimer.Anchor(p.StartedAt, p.DurationSeconds)

	log.Info().
		Str("match_id", p.MatchID).
		Str("round_id", p.RoundID).
		Int("round_number", p.RoundNumber).
		Int("duration_sec", p.DurationSeconds).
		Msg("round started")
}

// handleGuessSubmitted is the server ack for the local guess. The coordinate
// itself stays whatever was recorded optimistically.
func (e *Engine) handleGuessSubmitted(events.GuessSubmittedPayload) {
	e.mu.Lock()
	e.state.YouSubmitted = true
	e.mu.Unlock()
}

// handleOpponentSubmitted marks the opponent's guess as locked in
func (e *Engine) handleOpponentSubmitted(events.OpponentSubmittedPayload) {
	if !e.opponentProgress {
		return
	}
	e.mu.Lock()
	e.state.OpponentSubmitted = true
	e.mu.Unlock()
}

// handleTimerAdjusted re-anchors the round timer without touching any other
// round data. A late adjustment that arrives after the timer hit zero
// locally re-anchors and resumes ticking.
func (e *Engine) handleTimerAdjusted(p events.TimerAdjustedPayload) {
	e.roundTimer.Anchor(p.StartedAt, p.DurationSeconds)
	log.Info().
		Str("match_id", p.MatchID).
		Str("round_id", p.RoundID).
		Int("duration_sec", p.DurationSeconds).
		Msg("round timer adjusted")
}

// handleRoundEnded finalizes the round: revealed answer, both guesses, both
// scores, running totals. Replays are absorbed by the ledger so totals are
// never double-counted.
func (e *Engine) handleRoundEnded(p events.RoundEndedPayload) {
	e.mu.Lock()
	if !e.ledger.MarkRoundEnded(p.MatchID, p.RoundID) {
		e.mu.Unlock()
		log.Debug().Str("round_id", p.RoundID).Msg("duplicate RoundEnded dropped")
		return
	}

	final := e.state.CurrentRound
	if final == nil || final.ID != p.RoundID {
		// Missed or mismatched RoundStarted; rebuild from the payload.
		final = &Round{ID: p.RoundID, MatchID: p.MatchID, RoundNumber: p.RoundNumber}
		if e.state.CurrentMatch != nil {
			final.PlayerAID = e.state.CurrentMatch.PlayerAID
			final.PlayerBID = e.state.CurrentMatch.PlayerBID
		}
	}
	answer := p.CorrectAnswer
	aPoints, bPoints := p.PlayerAPoints, p.PlayerBPoints
	final.CorrectAnswer = &answer
	final.PlayerAGuess = cloneCoordinate(p.PlayerAGuess)
	final.PlayerBGuess = cloneCoordinate(p.PlayerBGuess)
	final.PlayerAPoints = &aPoints
	final.PlayerBPoints = &bPoints
	final.Ended = true

	e.state.CurrentRound = final
	e.state.CurrentLocation = nil
	e.state.GameStatus = GameRoundEnded

	if e.state.CurrentMatch != nil {
		e.state.CurrentMatch.PlayerATotalPoints = p.PlayerATotalPoints
		e.state.CurrentMatch.PlayerBTotalPoints = p.PlayerBTotalPoints
		e.state.CurrentMatch.Rounds = append(e.state.CurrentMatch.Rounds, *final.clone())
		e.state.CurrentMatch.TotalRounds = len(e.state.CurrentMatch.Rounds)
	}
	e.mu.Unlock()

	e.roundTimer.Stop()

	log.Info().
		Str("match_id", p.MatchID).
		Str("round_id", p.RoundID).
		Int("player_a_points", p.PlayerAPoints).
		Int("player_b_points", p.PlayerBPoints).
		Msg("round ended")
}

// handleMatchEnded applies the terminal match result exactly once
func (e *Engine) handleMatchEnded(p events.MatchEndedPayload) {
	e.mu.Lock()
	if !e.ledger.MarkMatchEnded(p.MatchID) {
		e.mu.Unlock()
		log.Debug().Str("match_id", p.MatchID).Msg("duplicate MatchEnded dropped")
		return
	}

	e.state.GameStatus = GameMatchEnded
	e.state.CurrentLocation = nil
	if e.state.CurrentMatch != nil {
		m := e.state.CurrentMatch
		m.WinnerID = cloneString(p.WinnerID)
		m.LoserID = cloneString(p.LoserID)
		m.PlayerATotalPoints = p.PlayerATotalPoints
		m.PlayerBTotalPoints = p.PlayerBTotalPoints
		m.PointsEarned = cloneInt(p.PointsEarned)
		m.PointsLost = cloneInt(p.PointsLost)
		endTime := p.EndTime
		m.EndTime = &endTime
		m.Rounds = make([]Round, 0, len(p.Rounds))
		for i := range p.Rounds {
			m.Rounds = append(m.Rounds, *roundFromSnapshot(&p.Rounds[i]))
		}
		m.TotalRounds = len(m.Rounds)
	}
	e.mu.Unlock()

	e.countdown.Stop()
	e.roundTimer.Stop()

	log.Info().Str("match_id", p.MatchID).Msg("match ended")
}

// handleMatchStatus applies a reconciliation pull. The server's view wins:
// fields are overwritten from the payload, not merged.
func (e *Engine) handleMatchStatus(p events.MatchSnapshot) {
	e.mu.Lock()
	e.state.CurrentMatch = matchFromSnapshot(&p)

	// Adopting a round the client has not seen means any local guesses and
	// submission flags belong to an older round.
	if p.CurrentRound != nil {
		if e.state.CurrentRound == nil || e.state.CurrentRound.ID != p.CurrentRound.ID {
			e.state.MyGuess = nil
			e.state.OpponentGuess = nil
			e.state.YouSubmitted = false
			e.state.OpponentSubmitted = false
		}
	}

	switch {
	case p.CurrentRound != nil && p.CurrentLocation != nil:
		e.state.CurrentRound = roundFromSnapshot(p.CurrentRound)
		e.state.CurrentLocation = cloneLocation(p.CurrentLocation)
		e.state.GameStatus = GameRoundActive
	case p.CurrentRound != nil && e.state.CurrentLocation != nil:
		// Server omitted the location but we still hold it locally.
		e.state.CurrentRound = roundFromSnapshot(p.CurrentRound)
		e.state.GameStatus = GameRoundActive
	case p.CurrentRound != nil:
		// An active round we cannot present without its location. Wait for
		// the RoundStarted replay instead of activating half a round.
		e.state.CurrentRound = nil
		e.state.GameStatus = GameWaiting
		log.Warn().Str("match_id", p.ID).Msg("match status has active round but no location; waiting for round replay")
	case e.state.CurrentRound != nil && !e.state.CurrentRound.Ended:
		// Server has no active round but we think one is running: we missed
		// its RoundStarted counterpart ending, so clear the stale round.
		e.state.CurrentRound = nil
		e.state.CurrentLocation = nil
		e.state.GameStatus = GameWaiting
		log.Warn().Str("match_id", p.ID).Msg("server has no active round; clearing stale local round")
	}
	e.mu.Unlock()

	log.Info().Str("match_id", p.ID).Msg("match status reconciled")
}

// handleLeftQueue confirms the queue exit
func (e *Engine) handleLeftQueue(events.LeftQueuePayload) {
	e.mu.Lock()
	e.state.MatchmakingStatus = MatchmakingIdle
	e.mu.Unlock()
}

// handleServerError forwards the opaque server message to the consumer; it
// never mutates session state.
func (e *Engine) handleServerError(p events.ErrorPayload) {
	e.reportErr(&RemoteError{Message: p.Message})
}
