package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/geoduel/geoduel/go/internal/game/events"
	"github.com/geoduel/geoduel/go/internal/game/transport"
)

// fakeTransport records outbound calls and lets tests push events on the bus.
type fakeTransport struct {
	bus *transport.Bus

	mu            sync.Mutex
	connected     bool
	connectErr    error
	joinErr       error
	startRoundErr error
	submitErr     error

	joinCalls       []string
	leaveCalls      []string
	startRoundCalls []string
	submitCalls     []submittedGuess
	statusCalls     []string
}

type submittedGuess struct {
	matchID  string
	playerID string
	x, y     float64
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{bus: transport.NewBus()}
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeTransport) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) JoinMatchmaking(ctx context.Context, playerID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.joinErr != nil {
		return "", f.joinErr
	}
	f.joinCalls = append(f.joinCalls, playerID)
	return "queued", nil
}

func (f *fakeTransport) LeaveMatchmaking(ctx context.Context, playerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaveCalls = append(f.leaveCalls, playerID)
	return nil
}

func (f *fakeTransport) StartRound(ctx context.Context, matchID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startRoundErr != nil {
		return f.startRoundErr
	}
	f.startRoundCalls = append(f.startRoundCalls, matchID)
	return nil
}

func (f *fakeTransport) SubmitGuess(ctx context.Context, matchID, playerID string, x, y float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return f.submitErr
	}
	f.submitCalls = append(f.submitCalls, submittedGuess{matchID, playerID, x, y})
	return nil
}

func (f *fakeTransport) GetMatchStatus(ctx context.Context, matchID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls = append(f.statusCalls, matchID)
	return nil
}

func (f *fakeTransport) Events() *transport.Bus {
	return f.bus
}

func (f *fakeTransport) startRoundCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.startRoundCalls)
}

func (f *fakeTransport) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitCalls)
}

func newTestEngine(t *testing.T, playerID string, opts ...Option) (*Engine, *fakeTransport, *clockwork.FakeClock) {
	t.Helper()
	tp := newFakeTransport()
	fc := clockwork.NewFakeClock()
	opts = append([]Option{WithClock(fc)}, opts...)
	eng := NewEngine(playerID, tp, opts...)
	if err := eng.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return eng, tp, fc
}

func publish(t *testing.T, tp *fakeTransport, eventType events.EventType, matchID string, payload interface{}) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	tp.bus.Publish(&events.GameEvent{
		ID:        uuid.NewString(),
		MatchID:   matchID,
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	})
}

// waitFor polls until cond holds. Timer callbacks run on the clock
// goroutines, so state changes driven by clock advances are not instant.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func matchFound(t *testing.T, tp *fakeTransport) {
	t.Helper()
	publish(t, tp, events.EventTypeMatchFound, "m1", events.MatchFoundPayload{
		MatchID:   "m1",
		PlayerAID: "p1",
		PlayerBID: "p2",
		StartTime: time.Now(),
	})
}

func roundStarted(t *testing.T, tp *fakeTransport, fc *clockwork.FakeClock, roundID string, roundNumber, durationSeconds int) {
	t.Helper()
	publish(t, tp, events.EventTypeRoundStarted, "m1", events.RoundStartedPayload{
		MatchID:         "m1",
		RoundID:         roundID,
		RoundNumber:     roundNumber,
		Location:        events.Location{X: 10, Y: 20},
		StartedAt:       fc.Now(),
		DurationSeconds: durationSeconds,
	})
}

func TestMatchFoundOpensZeroedMatch(t *testing.T) {
	eng, tp, _ := newTestEngine(t, "p1")

	matchFound(t, tp)

	snap := eng.Snapshot()
	if snap.MatchmakingStatus != MatchmakingMatchFound {
		t.Fatalf("expected matchmaking status %s, got %s", MatchmakingMatchFound, snap.MatchmakingStatus)
	}
	if snap.GameStatus != GameWaiting {
		t.Fatalf("expected game status %s, got %s", GameWaiting, snap.GameStatus)
	}
	if snap.CurrentMatch == nil || snap.CurrentMatch.ID != "m1" {
		t.Fatalf("expected current match m1, got %+v", snap.CurrentMatch)
	}
	if snap.CurrentMatch.PlayerAID != "p1" || snap.CurrentMatch.PlayerBID != "p2" {
		t.Fatalf("unexpected player roles: %+v", snap.CurrentMatch)
	}
	if snap.CurrentMatch.PlayerATotalPoints != 0 || snap.CurrentMatch.PlayerBTotalPoints != 0 {
		t.Fatal("new match should start with zero totals")
	}
	if len(snap.CurrentMatch.Rounds) != 0 {
		t.Fatal("new match should have no rounds")
	}
	if snap.CurrentRound != nil || snap.CurrentLocation != nil {
		t.Fatal("new match should have no round or location")
	}
	if snap.CountdownSeconds != 3 {
		t.Fatalf("expected countdown at 3, got %d", snap.CountdownSeconds)
	}
}

func advanceCountdown(t *testing.T, eng *Engine, fc *clockwork.FakeClock, from int) {
	t.Helper()
	fc.BlockUntil(1)
	for s := from; s > 0; s-- {
		fc.Advance(time.Second)
		want := s - 1
		waitFor(t, func() bool { return eng.Snapshot().CountdownSeconds == want })
	}
}

func TestCountdownExpiryPlayerARequestsRound(t *testing.T) {
	eng, tp, fc := newTestEngine(t, "p1")

	matchFound(t, tp)
	advanceCountdown(t, eng, fc, 3)

	waitFor(t, func() bool { return tp.startRoundCount() == 1 })
	tp.mu.Lock()
	matchID := tp.startRoundCalls[0]
	tp.mu.Unlock()
	if matchID != "m1" {
		t.Fatalf("expected round request for m1, got %s", matchID)
	}
}

func TestCountdownExpiryPlayerBStaysQuiet(t *testing.T) {
	eng, tp, fc := newTestEngine(t, "p2")

	matchFound(t, tp)
	advanceCountdown(t, eng, fc, 3)

	// Give a stray round request time to land before asserting it never came.
	time.Sleep(50 * time.Millisecond)
	if tp.startRoundCount() != 0 {
		t.Fatalf("player B must not request rounds, got %d calls", tp.startRoundCount())
	}
}

func TestRoundStartedActivatesRound(t *testing.T) {
	eng, tp, fc := newTestEngine(t, "p1")

	matchFound(t, tp)
	roundStarted(t, tp, fc, "r1", 1, 90)

	snap := eng.Snapshot()
	if snap.GameStatus != GameRoundActive {
		t.Fatalf("expected game status %s, got %s", GameRoundActive, snap.GameStatus)
	}
	if snap.MatchmakingStatus != MatchmakingIdle {
		t.Fatalf("matchmaking should return to idle, got %s", snap.MatchmakingStatus)
	}
	if snap.CurrentRound == nil || snap.CurrentRound.ID != "r1" || snap.CurrentRound.RoundNumber != 1 {
		t.Fatalf("unexpected round: %+v", snap.CurrentRound)
	}
	if snap.CurrentLocation == nil || snap.CurrentLocation.X != 10 || snap.CurrentLocation.Y != 20 {
		t.Fatalf("unexpected location: %+v", snap.CurrentLocation)
	}
	if snap.RemainingSeconds != 90 {
		t.Fatalf("expected 90 seconds remaining, got %d", snap.RemainingSeconds)
	}
	if snap.MyGuess != nil || snap.OpponentGuess != nil || snap.YouSubmitted || snap.OpponentSubmitted {
		t.Fatal("fresh round should have no guesses or submission flags")
	}
}

func TestSubmitGuessRecordsOptimistically(t *testing.T) {
	eng, tp, fc := newTestEngine(t, "p1")

	matchFound(t, tp)
	roundStarted(t, tp, fc, "r1", 1, 90)

	if err := eng.SubmitGuess(context.Background(), 12.5, -3.25); err != nil {
		t.Fatalf("submit guess: %v", err)
	}
	snap := eng.Snapshot()
	if snap.MyGuess == nil || snap.MyGuess.X != 12.5 || snap.MyGuess.Y != -3.25 {
		t.Fatalf("expected optimistic guess recorded, got %+v", snap.MyGuess)
	}
	if snap.YouSubmitted {
		t.Fatal("YouSubmitted should stay false until the server acks")
	}

	publish(t, tp, events.EventTypeGuessSubmitted, "m1", events.GuessSubmittedPayload{Message: "ok"})
	snap = eng.Snapshot()
	if !snap.YouSubmitted {
		t.Fatal("server ack should flip YouSubmitted")
	}
	if snap.MyGuess.X != 12.5 || snap.MyGuess.Y != -3.25 {
		t.Fatal("ack must not change the recorded coordinate")
	}
}

func TestSubmitGuessOutsideRoundIsRejected(t *testing.T) {
	eng, tp, _ := newTestEngine(t, "p1")

	err := eng.SubmitGuess(context.Background(), 1, 2)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if tp.submitCount() != 0 {
		t.Fatal("transport must not be invoked for a rejected guess")
	}

	matchFound(t, tp)
	err = eng.SubmitGuess(context.Background(), 1, 2)
	if !errors.Is(err, ErrNoActiveRound) {
		t.Fatalf("expected ErrNoActiveRound, got %v", err)
	}
	if tp.submitCount() != 0 {
		t.Fatal("transport must not be invoked for a rejected guess")
	}
}

func TestOpponentSubmittedFlag(t *testing.T) {
	eng, tp, fc := newTestEngine(t, "p1")

	matchFound(t, tp)
	roundStarted(t, tp, fc, "r1", 1, 90)

	publish(t, tp, events.EventTypeOpponentSubmitted, "m1", events.OpponentSubmittedPayload{MatchID: "m1", RoundID: "r1"})
	if !eng.Snapshot().OpponentSubmitted {
		t.Fatal("opponent submission should be flagged")
	}
}

func TestOpponentSubmittedIgnoredWhenDisabled(t *testing.T) {
	eng, tp, fc := newTestEngine(t, "p1", WithOpponentProgress(false))

	matchFound(t, tp)
	roundStarted(t, tp, fc, "r1", 1, 90)

	publish(t, tp, events.EventTypeOpponentSubmitted, "m1", events.OpponentSubmittedPayload{MatchID: "m1", RoundID: "r1"})
	if eng.Snapshot().OpponentSubmitted {
		t.Fatal("opponent submission indicator is disabled")
	}
}

func TestTimerAdjustedReAnchorsWithoutTouchingRound(t *testing.T) {
	eng, tp, fc := newTestEngine(t, "p1")

	matchFound(t, tp)
	roundStarted(t, tp, fc, "r1", 1, 90)
	if err := eng.SubmitGuess(context.Background(), 7, 8); err != nil {
		t.Fatalf("submit guess: %v", err)
	}

	fc.Advance(30 * time.Second)
	if got := eng.Snapshot().RemainingSeconds; got != 60 {
		t.Fatalf("expected 60 remaining before adjustment, got %d", got)
	}

	// The server restarts the clock at 60 seconds from now. Remaining snaps
	// to the new anchor, not to old-remaining minus elapsed.
	publish(t, tp, events.EventTypeTimerAdjusted, "m1", events.TimerAdjustedPayload{
		MatchID:         "m1",
		RoundID:         "r1",
		StartedAt:       fc.Now(),
		DurationSeconds: 60,
	})

	snap := eng.Snapshot()
	if snap.RemainingSeconds != 60 {
		t.Fatalf("expected 60 remaining after adjustment, got %d", snap.RemainingSeconds)
	}
	if snap.GameStatus != GameRoundActive {
		t.Fatalf("adjustment must not change the phase, got %s", snap.GameStatus)
	}
	if snap.CurrentRound == nil || snap.CurrentRound.ID != "r1" || snap.CurrentRound.RoundNumber != 1 {
		t.Fatalf("adjustment must not touch the round: %+v", snap.CurrentRound)
	}
	if snap.CurrentLocation == nil || snap.MyGuess == nil || snap.MyGuess.X != 7 {
		t.Fatal("adjustment must not touch the location or guesses")
	}

	fc.Advance(45 * time.Second)
	if got := eng.Snapshot().RemainingSeconds; got != 15 {
		t.Fatalf("expected 15 remaining after 45s on the new anchor, got %d", got)
	}
}

func TestMalformedPayloadDropped(t *testing.T) {
	eng, tp, fc := newTestEngine(t, "p1")

	matchFound(t, tp)
	roundStarted(t, tp, fc, "r1", 1, 90)
	before := eng.Snapshot()

	tp.bus.Publish(&events.GameEvent{
		ID:        uuid.NewString(),
		MatchID:   "m1",
		Type:      events.EventTypeRoundEnded,
		Timestamp: time.Now(),
		Data:      json.RawMessage(`{"playerAPoints":"not a number"`),
	})

	after := eng.Snapshot()
	if after.GameStatus != before.GameStatus {
		t.Fatalf("malformed payload must not change the phase, got %s", after.GameStatus)
	}
	if after.CurrentRound == nil || after.CurrentRound.Ended {
		t.Fatal("malformed payload must not end the round")
	}
}

func roundEndedPayload() events.RoundEndedPayload {
	return events.RoundEndedPayload{
		MatchID:            "m1",
		RoundID:            "r1",
		RoundNumber:        1,
		CorrectAnswer:      events.Coordinate{X: 11, Y: 21},
		PlayerAGuess:       &events.Coordinate{X: 10, Y: 20},
		PlayerBGuess:       &events.Coordinate{X: 30, Y: 40},
		PlayerAPoints:      4500,
		PlayerBPoints:      3000,
		PlayerATotalPoints: 4500,
		PlayerBTotalPoints: 3000,
	}
}

func TestRoundEndedFinalizesRound(t *testing.T) {
	eng, tp, fc := newTestEngine(t, "p1")

	matchFound(t, tp)
	roundStarted(t, tp, fc, "r1", 1, 90)
	publish(t, tp, events.EventTypeRoundEnded, "m1", roundEndedPayload())

	snap := eng.Snapshot()
	if snap.GameStatus != GameRoundEnded {
		t.Fatalf("expected game status %s, got %s", GameRoundEnded, snap.GameStatus)
	}
	if snap.CurrentLocation != nil {
		t.Fatal("location must be cleared outside an active round")
	}
	if snap.CurrentRound == nil || !snap.CurrentRound.Ended {
		t.Fatalf("round should be marked ended: %+v", snap.CurrentRound)
	}
	if snap.CurrentRound.CorrectAnswer == nil || snap.CurrentRound.CorrectAnswer.X != 11 {
		t.Fatalf("expected revealed answer, got %+v", snap.CurrentRound.CorrectAnswer)
	}
	if snap.CurrentRound.PlayerAPoints == nil || *snap.CurrentRound.PlayerAPoints != 4500 {
		t.Fatalf("unexpected player A points: %+v", snap.CurrentRound.PlayerAPoints)
	}
	if snap.CurrentMatch.PlayerATotalPoints != 4500 || snap.CurrentMatch.PlayerBTotalPoints != 3000 {
		t.Fatalf("unexpected totals: %+v", snap.CurrentMatch)
	}
	if len(snap.CurrentMatch.Rounds) != 1 || snap.CurrentMatch.TotalRounds != 1 {
		t.Fatalf("expected one completed round, got %d", len(snap.CurrentMatch.Rounds))
	}
	if snap.RemainingSeconds != 0 {
		t.Fatalf("round timer should be stopped, got %d", snap.RemainingSeconds)
	}
}

func TestRoundEndedReplayIsIdempotent(t *testing.T) {
	eng, tp, fc := newTestEngine(t, "p1")

	matchFound(t, tp)
	roundStarted(t, tp, fc, "r1", 1, 90)
	publish(t, tp, events.EventTypeRoundEnded, "m1", roundEndedPayload())
	publish(t, tp, events.EventTypeRoundEnded, "m1", roundEndedPayload())

	snap := eng.Snapshot()
	if len(snap.CurrentMatch.Rounds) != 1 {
		t.Fatalf("expected exactly one entry for r1, got %d", len(snap.CurrentMatch.Rounds))
	}
	if snap.CurrentMatch.PlayerATotalPoints != 4500 {
		t.Fatalf("totals must not double-count on replay, got %d", snap.CurrentMatch.PlayerATotalPoints)
	}
}

func TestReplayedRoundStartedForCompletedRoundIsDropped(t *testing.T) {
	eng, tp, fc := newTestEngine(t, "p1")

	matchFound(t, tp)
	roundStarted(t, tp, fc, "r1", 1, 90)
	publish(t, tp, events.EventTypeRoundEnded, "m1", roundEndedPayload())
	roundStarted(t, tp, fc, "r2", 2, 90)

	// Replay of round 1's start must not roll the round number backwards.
	roundStarted(t, tp, fc, "r1", 1, 90)

	snap := eng.Snapshot()
	if snap.CurrentRound == nil || snap.CurrentRound.ID != "r2" {
		t.Fatalf("expected round r2 to stay current, got %+v", snap.CurrentRound)
	}
	if snap.CurrentRound.RoundNumber != 2 {
		t.Fatalf("round number rolled backwards: %d", snap.CurrentRound.RoundNumber)
	}
}

func TestMatchEndedAppliesTerminalResult(t *testing.T) {
	eng, tp, fc := newTestEngine(t, "p1")

	matchFound(t, tp)
	roundStarted(t, tp, fc, "r1", 1, 90)
	publish(t, tp, events.EventTypeRoundEnded, "m1", roundEndedPayload())

	winner := "p1"
	loser := "p2"
	earned := 25
	aPoints, bPoints := 4500, 3000
	payload := events.MatchEndedPayload{
		MatchID:            "m1",
		WinnerID:           &winner,
		LoserID:            &loser,
		PlayerATotalPoints: 4500,
		PlayerBTotalPoints: 3000,
		PointsEarned:       &earned,
		EndTime:            time.Now(),
		Rounds: []events.RoundSnapshot{{
			ID:            "r1",
			MatchID:       "m1",
			RoundNumber:   1,
			PlayerAID:     "p1",
			PlayerBID:     "p2",
			PlayerAPoints: &aPoints,
			PlayerBPoints: &bPoints,
			Ended:         true,
		}},
	}
	publish(t, tp, events.EventTypeMatchEnded, "m1", payload)
	publish(t, tp, events.EventTypeMatchEnded, "m1", payload)

	snap := eng.Snapshot()
	if snap.GameStatus != GameMatchEnded {
		t.Fatalf("expected game status %s, got %s", GameMatchEnded, snap.GameStatus)
	}
	if snap.CurrentMatch.WinnerID == nil || *snap.CurrentMatch.WinnerID != "p1" {
		t.Fatalf("unexpected winner: %+v", snap.CurrentMatch.WinnerID)
	}
	if snap.CurrentMatch.PointsEarned == nil || *snap.CurrentMatch.PointsEarned != 25 {
		t.Fatalf("unexpected points earned: %+v", snap.CurrentMatch.PointsEarned)
	}
	if len(snap.CurrentMatch.Rounds) != 1 || snap.CurrentMatch.TotalRounds != 1 {
		t.Fatalf("replayed MatchEnded must not duplicate rounds, got %d", len(snap.CurrentMatch.Rounds))
	}
	if snap.CurrentLocation != nil {
		t.Fatal("location must be cleared when the match ends")
	}
}

func TestMatchStatusAdoptsActiveRound(t *testing.T) {
	eng, tp, fc := newTestEngine(t, "p1")

	matchFound(t, tp)
	roundStarted(t, tp, fc, "r1", 1, 90)
	if err := eng.SubmitGuess(context.Background(), 1, 2); err != nil {
		t.Fatalf("submit guess: %v", err)
	}

	publish(t, tp, events.EventTypeMatchStatus, "m1", events.MatchSnapshot{
		ID:        "m1",
		PlayerAID: "p1",
		PlayerBID: "p2",
		StartTime: fc.Now(),
		CurrentRound: &events.RoundSnapshot{
			ID:          "r3",
			MatchID:     "m1",
			RoundNumber: 3,
			PlayerAID:   "p1",
			PlayerBID:   "p2",
		},
		CurrentLocation:    &events.Location{X: 5, Y: 6},
		PlayerATotalPoints: 9000,
		PlayerBTotalPoints: 6000,
	})

	snap := eng.Snapshot()
	if snap.GameStatus != GameRoundActive {
		t.Fatalf("expected game status %s, got %s", GameRoundActive, snap.GameStatus)
	}
	if snap.CurrentRound == nil || snap.CurrentRound.ID != "r3" {
		t.Fatalf("expected adopted round r3, got %+v", snap.CurrentRound)
	}
	if snap.CurrentLocation == nil || snap.CurrentLocation.X != 5 {
		t.Fatalf("expected adopted location, got %+v", snap.CurrentLocation)
	}
	if snap.CurrentMatch.PlayerATotalPoints != 9000 {
		t.Fatalf("server totals should win, got %d", snap.CurrentMatch.PlayerATotalPoints)
	}
	if snap.MyGuess != nil || snap.YouSubmitted {
		t.Fatal("guesses from the previous round must not leak into an adopted round")
	}
}

func TestMatchStatusClearsStaleLocalRound(t *testing.T) {
	eng, tp, fc := newTestEngine(t, "p1")

	matchFound(t, tp)
	roundStarted(t, tp, fc, "r1", 1, 90)

	// Server reports no active round: the local unended round is stale.
	publish(t, tp, events.EventTypeMatchStatus, "m1", events.MatchSnapshot{
		ID:        "m1",
		PlayerAID: "p1",
		PlayerBID: "p2",
		StartTime: fc.Now(),
	})

	snap := eng.Snapshot()
	if snap.CurrentRound != nil {
		t.Fatalf("stale round should be cleared, got %+v", snap.CurrentRound)
	}
	if snap.CurrentLocation != nil {
		t.Fatal("stale location should be cleared")
	}
	if snap.GameStatus != GameWaiting {
		t.Fatalf("expected game status %s, got %s", GameWaiting, snap.GameStatus)
	}
}

func TestJoinMatchmakingRollsBackOnFailure(t *testing.T) {
	var reported []error
	eng, tp, _ := newTestEngine(t, "p1", WithErrorReporter(func(err error) {
		reported = append(reported, err)
	}))

	tp.mu.Lock()
	tp.joinErr = errors.New("queue unavailable")
	tp.mu.Unlock()

	err := eng.JoinMatchmaking(context.Background())
	if err == nil {
		t.Fatal("expected join failure")
	}
	if eng.Snapshot().MatchmakingStatus != MatchmakingIdle {
		t.Fatal("failed join must roll matchmaking back to idle")
	}
	if len(reported) != 1 {
		t.Fatalf("expected one reported error, got %d", len(reported))
	}
}

func TestJoinMatchmakingOptimisticSearching(t *testing.T) {
	eng, tp, _ := newTestEngine(t, "p1")

	if err := eng.JoinMatchmaking(context.Background()); err != nil {
		t.Fatalf("join: %v", err)
	}
	if eng.Snapshot().MatchmakingStatus != MatchmakingSearching {
		t.Fatalf("expected searching, got %s", eng.Snapshot().MatchmakingStatus)
	}
	tp.mu.Lock()
	calls := len(tp.joinCalls)
	tp.mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected one join call, got %d", calls)
	}
}

func TestLeftQueueReturnsToIdle(t *testing.T) {
	eng, tp, _ := newTestEngine(t, "p1")

	if err := eng.JoinMatchmaking(context.Background()); err != nil {
		t.Fatalf("join: %v", err)
	}
	publish(t, tp, events.EventTypeLeftQueue, "", events.LeftQueuePayload{Message: "left"})
	if eng.Snapshot().MatchmakingStatus != MatchmakingIdle {
		t.Fatalf("expected idle, got %s", eng.Snapshot().MatchmakingStatus)
	}
}

func TestStartRoundWithoutMatchFails(t *testing.T) {
	eng, tp, _ := newTestEngine(t, "p1")

	err := eng.StartRound(context.Background())
	if !errors.Is(err, ErrNoActiveMatch) {
		t.Fatalf("expected ErrNoActiveMatch, got %v", err)
	}
	if tp.startRoundCount() != 0 {
		t.Fatal("transport must not be invoked without a match")
	}
}

func TestStartRoundClearsPreviousRoundState(t *testing.T) {
	eng, tp, fc := newTestEngine(t, "p1")

	matchFound(t, tp)
	roundStarted(t, tp, fc, "r1", 1, 90)
	publish(t, tp, events.EventTypeRoundEnded, "m1", roundEndedPayload())

	if err := eng.StartRound(context.Background()); err != nil {
		t.Fatalf("start round: %v", err)
	}
	snap := eng.Snapshot()
	if snap.CurrentRound != nil || snap.CurrentLocation != nil {
		t.Fatal("previous round state should be cleared before the next round arrives")
	}
	if snap.GameStatus != GameWaiting {
		t.Fatalf("expected game status %s, got %s", GameWaiting, snap.GameStatus)
	}
	if snap.CurrentMatch == nil || len(snap.CurrentMatch.Rounds) != 1 {
		t.Fatal("completed rounds must survive the clear")
	}
}

func TestServerErrorReportedWithoutStateChange(t *testing.T) {
	var reported []error
	eng, tp, fc := newTestEngine(t, "p1", WithErrorReporter(func(err error) {
		reported = append(reported, err)
	}))

	matchFound(t, tp)
	roundStarted(t, tp, fc, "r1", 1, 90)
	before := eng.Snapshot()

	publish(t, tp, events.EventTypeError, "m1", events.ErrorPayload{Message: "boom"})

	after := eng.Snapshot()
	if after.GameStatus != before.GameStatus || after.MatchmakingStatus != before.MatchmakingStatus {
		t.Fatal("server errors must not mutate session state")
	}
	if after.CurrentRound == nil || after.CurrentRound.ID != before.CurrentRound.ID {
		t.Fatal("server errors must not touch the current round")
	}
	if len(reported) != 1 {
		t.Fatalf("expected one reported error, got %d", len(reported))
	}
	var remote *RemoteError
	if !errors.As(reported[0], &remote) || remote.Message != "boom" {
		t.Fatalf("expected RemoteError with server message, got %v", reported[0])
	}
}

func TestDisconnectResetsSession(t *testing.T) {
	eng, tp, fc := newTestEngine(t, "p1")

	matchFound(t, tp)
	roundStarted(t, tp, fc, "r1", 1, 90)

	if err := eng.Disconnect(context.Background()); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	snap := eng.Snapshot()
	if snap.Connected {
		t.Fatal("session should report disconnected")
	}
	if snap.CurrentMatch != nil || snap.CurrentRound != nil || snap.CurrentLocation != nil {
		t.Fatal("disconnect should reset to the initial shape")
	}
	if snap.MatchmakingStatus != MatchmakingIdle || snap.GameStatus != GameWaiting {
		t.Fatalf("unexpected reset state: %s/%s", snap.MatchmakingStatus, snap.GameStatus)
	}
	if snap.RemainingSeconds != 0 || snap.CountdownSeconds != 0 {
		t.Fatal("timers should be stopped after disconnect")
	}

	// Events published after disconnect must not resurrect state.
	matchFound(t, tp)
	if eng.Snapshot().CurrentMatch != nil {
		t.Fatal("handlers must be unsubscribed after disconnect")
	}
}

func TestSyncMatchStatusWithoutMatchIsNoOp(t *testing.T) {
	eng, tp, _ := newTestEngine(t, "p1")

	if err := eng.SyncMatchStatus(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	tp.mu.Lock()
	calls := len(tp.statusCalls)
	tp.mu.Unlock()
	if calls != 0 {
		t.Fatal("no status pull should happen without a match")
	}
}
