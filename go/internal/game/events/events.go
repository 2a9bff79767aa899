package events

import (
	"encoding/json"
	"time"
)

// GameEvent represents the base structure for all events pushed by the game server
type GameEvent struct {
	ID        string          `json:"id"`        // Event UUID
	MatchID   string          `json:"match_id"`  // Match UUID, empty for queue-level events
	Type      EventType       `json:"type"`      // Event type
	Timestamp time.Time       `json:"timestamp"` // Event creation time
	Data      json.RawMessage `json:"data"`      // Event-specific payload
}

// EventType represents the type of game event
type EventType string

const (
	EventTypeMatchFound        EventType = "MatchFound"
	EventTypeRoundStarted      EventType = "RoundStarted"
	EventTypeGuessSubmitted    EventType = "GuessSubmitted"
	EventTypeOpponentSubmitted EventType = "OpponentSubmitted"
	EventTypeTimerAdjusted     EventType = "TimerAdjusted"
	EventTypeRoundEnded        EventType = "RoundEnded"
	EventTypeMatchEnded        EventType = "MatchEnded"
	EventTypeMatchStatus       EventType = "MatchStatus"
	EventTypeLeftQueue         EventType = "LeftQueue"
	EventTypeError             EventType = "Error"
)

// Coordinate is a guess or answer position on the map
type Coordinate struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Location is the challenge shown to both players during a round
type Location struct {
	X       float64 `json:"x"` // Latitude
	Y       float64 `json:"y"` // Longitude
	Heading float64 `json:"heading"`
	Pitch   float64 `json:"pitch"`
}

// MatchFoundPayload announces a new match and the fixed player roles
type MatchFoundPayload struct {
	MatchID   string    `json:"matchId"`
	PlayerAID string    `json:"playerAId"`
	PlayerBID string    `json:"playerBId"`
	StartTime time.Time `json:"startTime"`
}

// RoundStartedPayload carries the challenge location and the authoritative timer anchor
type RoundStartedPayload struct {
	MatchID         string    `json:"matchId"`
	RoundID         string    `json:"roundId"`
	RoundNumber     int       `json:"roundNumber"`
	Location        Location  `json:"location"`
	StartedAt       time.Time `json:"startedAt"`
	DurationSeconds int       `json:"durationSeconds"`
}

// GuessSubmittedPayload acks the local player's guess. The coordinate is not
// echoed back; the client keeps its optimistic copy.
type GuessSubmittedPayload struct {
	Message string `json:"message"`
}

// OpponentSubmittedPayload signals the opponent has locked in a guess
type OpponentSubmittedPayload struct {
	MatchID string `json:"matchId"`
	RoundID string `json:"roundId"`
}

// TimerAdjustedPayload replaces the round-timer anchor mid-round. Both fields
// are applied together; no other round data changes.
type TimerAdjustedPayload struct {
	MatchID         string    `json:"matchId"`
	RoundID         string    `json:"roundId"`
	StartedAt       time.Time `json:"startedAt"`
	DurationSeconds int       `json:"durationSeconds"`
}

// RoundEndedPayload carries the revealed answer, both guesses and both scores
type RoundEndedPayload struct {
	MatchID            string      `json:"matchId"`
	RoundID            string      `json:"roundId"`
	RoundNumber        int         `json:"roundNumber"`
	CorrectAnswer      Coordinate  `json:"correctAnswer"`
	PlayerAGuess       *Coordinate `json:"playerAGuess"`
	PlayerBGuess       *Coordinate `json:"playerBGuess"`
	PlayerAPoints      int         `json:"playerAPoints"`
	PlayerBPoints      int         `json:"playerBPoints"`
	PlayerATotalPoints int         `json:"playerATotalPoints"`
	PlayerBTotalPoints int         `json:"playerBTotalPoints"`
	RoundWinnerID      *string     `json:"roundWinnerId"`
}

// MatchEndedPayload finalizes the match
type MatchEndedPayload struct {
	MatchID            string          `json:"matchId"`
	WinnerID           *string         `json:"winnerId"`
	LoserID            *string         `json:"loserId"`
	PlayerATotalPoints int             `json:"playerATotalPoints"`
	PlayerBTotalPoints int             `json:"playerBTotalPoints"`
	PointsEarned       *int            `json:"pointsEarned"`
	PointsLost         *int            `json:"pointsLost"`
	EndTime            time.Time       `json:"endTime"`
	Rounds             []RoundSnapshot `json:"rounds"`
}

// RoundSnapshot is the server's view of one round, used in MatchEnded and
// MatchStatus payloads
type RoundSnapshot struct {
	ID            string      `json:"id"`
	MatchID       string      `json:"gameMatchId"`
	RoundNumber   int         `json:"roundNumber"`
	PlayerAID     string      `json:"playerAId"`
	PlayerBID     string      `json:"playerBId"`
	PlayerAPoints *int        `json:"playerAPoints"`
	PlayerBPoints *int        `json:"playerBPoints"`
	CorrectAnswer *Coordinate `json:"gameResponse"`
	PlayerAGuess  *Coordinate `json:"playerAGuess"`
	PlayerBGuess  *Coordinate `json:"playerBGuess"`
	Ended         bool        `json:"gameRoundEnded"`
}

// MatchSnapshot is the server's full view of a match, delivered on a
// MatchStatus reconciliation pull
type MatchSnapshot struct {
	ID                 string          `json:"id"`
	PlayerAID          string          `json:"playerAId"`
	PlayerBID          string          `json:"playerBId"`
	StartTime          time.Time       `json:"startTime"`
	EndTime            *time.Time      `json:"endTime"`
	WinnerID           *string         `json:"playerWinnerId"`
	LoserID            *string         `json:"playerLoserId"`
	PlayerATotalPoints int             `json:"playerATotalPoints"`
	PlayerBTotalPoints int             `json:"playerBTotalPoints"`
	PointsEarned       *int            `json:"pointsEarned"`
	PointsLost         *int            `json:"pointsLost"`
	Rounds             []RoundSnapshot `json:"gameRounds"`
	CurrentRound       *RoundSnapshot  `json:"currentGameRound"`
	CurrentLocation    *Location       `json:"currentLocation"`
	TotalRounds        int             `json:"totalRounds"`
}

// LeftQueuePayload confirms the player left the matchmaking queue
type LeftQueuePayload struct {
	Message string `json:"message"`
}

// ErrorPayload is an opaque server-side error message
type ErrorPayload struct {
	Message string `json:"message"`
}

// ParseEventPayload parses event data into the appropriate payload struct
func ParseEventPayload(event *GameEvent) (interface{}, error) {
	switch event.Type {
	case EventTypeMatchFound:
		var payload MatchFoundPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeRoundStarted:
		var payload RoundStartedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeGuessSubmitted:
		var payload GuessSubmittedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeOpponentSubmitted:
		var payload OpponentSubmittedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeTimerAdjusted:
		var payload TimerAdjustedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeRoundEnded:
		var payload RoundEndedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeMatchEnded:
		var payload MatchEndedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeMatchStatus:
		var payload MatchSnapshot
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeLeftQueue:
		var payload LeftQueuePayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeError:
		var payload ErrorPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	default:
		return nil, nil // Unknown event type
	}
}
