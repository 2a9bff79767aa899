package engine

import (
	"time"

	"github.com/geoduel/geoduel/go/internal/game/events"
)

// MatchmakingStatus is the queue/lobby phase, independent of the in-match phase
type MatchmakingStatus string

const (
	MatchmakingIdle       MatchmakingStatus = "idle"
	MatchmakingSearching  MatchmakingStatus = "searching"
	MatchmakingMatchFound MatchmakingStatus = "match_found"
)

// GameStatus is the in-match phase
type GameStatus string

const (
	GameWaiting     GameStatus = "waiting"
	GameRoundActive GameStatus = "round_active"
	GameRoundEnded  GameStatus = "round_ended"
	GameMatchEnded  GameStatus = "match_ended"
)

// Round is one challenge within a match. It transitions to ended exactly
// once; the ended copy is appended to Match.Rounds.
type Round struct {
	ID            string             `json:"id"`
	MatchID       string             `json:"match_id"`
	RoundNumber   int                `json:"round_number"`
	PlayerAID     string             `json:"player_a_id"`
	PlayerBID     string             `json:"player_b_id"`
	PlayerAPoints *int               `json:"player_a_points"`
	PlayerBPoints *int               `json:"player_b_points"`
	CorrectAnswer *events.Coordinate `json:"correct_answer"`
	PlayerAGuess  *events.Coordinate `json:"player_a_guess"`
	PlayerBGuess  *events.Coordinate `json:"player_b_guess"`
	Ended         bool               `json:"ended"`
}

// Match is one complete game between two players. PlayerAID/PlayerBID are
// assigned once by the server and immutable for the match's lifetime; the
// ordering is what breaks symmetry for round starts.
type Match struct {
	ID                 string     `json:"id"`
	PlayerAID          string     `json:"player_a_id"`
	PlayerBID          string     `json:"player_b_id"`
	StartTime          time.Time  `json:"start_time"`
	EndTime            *time.Time `json:"end_time"`
	WinnerID           *string    `json:"winner_id"`
	LoserID            *string    `json:"loser_id"`
	PlayerATotalPoints int        `json:"player_a_total_points"`
	PlayerBTotalPoints int        `json:"player_b_total_points"`
	PointsEarned       *int       `json:"points_earned"`
	PointsLost         *int       `json:"points_lost"`
	Rounds             []Round    `json:"rounds"`
	TotalRounds        int        `json:"total_rounds"`
}

// State is the single source of truth for the session. It is owned
// exclusively by the Engine; consumers read copies via Snapshot.
type State struct {
	MatchmakingStatus MatchmakingStatus  `json:"matchmaking_status"`
	GameStatus        GameStatus         `json:"game_status"`
	CurrentMatch      *Match             `json:"current_match"`
	CurrentRound      *Round             `json:"current_round"`
	CurrentLocation   *events.Location   `json:"current_location"`
	MyGuess           *events.Coordinate `json:"my_guess"`
	OpponentGuess     *events.Coordinate `json:"opponent_guess"`
	YouSubmitted      bool               `json:"you_submitted"`
	OpponentSubmitted bool               `json:"opponent_submitted"`
}

// Snapshot is the read surface for consumers: a deep copy of State plus the
// derived timer values.
type Snapshot struct {
	State
	Connected        bool `json:"connected"`
	CountdownSeconds int  `json:"countdown_seconds"`
	RemainingSeconds int  `json:"remaining_seconds"`
}

// initialState returns the IDLE/WAITING/all-null shape
func initialState() State {
	return State{
		MatchmakingStatus: MatchmakingIdle,
		GameStatus:        GameWaiting,
	}
}

// clone returns a deep copy safe to hand to consumers
func (s *State) clone() State {
	out := *s
	out.CurrentMatch = s.CurrentMatch.clone()
	out.CurrentRound = s.CurrentRound.clone()
	out.CurrentLocation = cloneLocation(s.CurrentLocation)
	out.MyGuess = cloneCoordinate(s.MyGuess)
	out.OpponentGuess = cloneCoordinate(s.OpponentGuess)
	return out
}

func (m *Match) clone() *Match {
	if m == nil {
		return nil
	}
	out := *m
	out.EndTime = cloneTime(m.EndTime)
	out.WinnerID = cloneString(m.WinnerID)
	out.LoserID = cloneString(m.LoserID)
	out.PointsEarned = cloneInt(m.PointsEarned)
	out.PointsLost = cloneInt(m.PointsLost)
	out.Rounds = make([]Round, len(m.Rounds))
	for i := range m.Rounds {
		out.Rounds[i] = *m.Rounds[i].clone()
	}
	return &out
}

func (r *Round) clone() *Round {
	if r == nil {
		return nil
	}
	out := *r
	out.PlayerAPoints = cloneInt(r.PlayerAPoints)
	out.PlayerBPoints = cloneInt(r.PlayerBPoints)
	out.CorrectAnswer = cloneCoordinate(r.CorrectAnswer)
	out.PlayerAGuess = cloneCoordinate(r.PlayerAGuess)
	out.PlayerBGuess = cloneCoordinate(r.PlayerBGuess)
	return &out
}

func cloneCoordinate(c *events.Coordinate) *events.Coordinate {
	if c == nil {
		return nil
	}
	out := *c
	return &out
}

func cloneLocation(l *events.Location) *events.Location {
	if l == nil {
		return nil
	}
	out := *l
	return &out
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

// roundFromSnapshot converts the server's view of a round to the domain type
func roundFromSnapshot(s *events.RoundSnapshot) *Round {
	if s == nil {
		return nil
	}
	return &Round{
		ID:            s.ID,
		MatchID:       s.MatchID,
		RoundNumber:   s.RoundNumber,
		PlayerAID:     s.PlayerAID,
		PlayerBID:     s.PlayerBID,
		PlayerAPoints: cloneInt(s.PlayerAPoints),
		PlayerBPoints: cloneInt(s.PlayerBPoints),
		CorrectAnswer: cloneCoordinate(s.CorrectAnswer),
		PlayerAGuess:  cloneCoordinate(s.PlayerAGuess),
		PlayerBGuess:  cloneCoordinate(s.PlayerBGuess),
		Ended:         s.Ended,
	}
}

// matchFromSnapshot converts the server's view of a match to the domain type
func matchFromSnapshot(s *events.MatchSnapshot) *Match {
	if s == nil {
		return nil
	}
	m := &Match{
		ID:                 s.ID,
		PlayerAID:          s.PlayerAID,
		PlayerBID:          s.PlayerBID,
		StartTime:          s.StartTime,
		EndTime:            cloneTime(s.EndTime),
		WinnerID:           cloneString(s.WinnerID),
		LoserID:            cloneString(s.LoserID),
		PlayerATotalPoints: s.PlayerATotalPoints,
		PlayerBTotalPoints: s.PlayerBTotalPoints,
		PointsEarned:       cloneInt(s.PointsEarned),
		PointsLost:         cloneInt(s.PointsLost),
		TotalRounds:        s.TotalRounds,
	}
	m.Rounds = make([]Round, 0, len(s.Rounds))
	for i := range s.Rounds {
		m.Rounds = append(m.Rounds, *roundFromSnapshot(&s.Rounds[i]))
	}
	return m
}
