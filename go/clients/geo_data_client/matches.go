package geo_data_client

import (
	"context"
	"encoding/json"
	"fmt"
)

type MatchRecord struct {
	ID                 string  `json:"id"`
	PlayerAID          string  `json:"playerAId"`
	PlayerBID          string  `json:"playerBId"`
	PlayerATotalPoints int     `json:"playerATotalPoints"`
	PlayerBTotalPoints int     `json:"playerBTotalPoints"`
	WinnerID           *string `json:"winnerId"`
	LoserID            *string `json:"loserId"`
	StartedAt          string  `json:"startedAt"`
	EndedAt            *string `json:"endedAt"`
	IsCompleted        bool    `json:"isCompleted"`
}

func (c *GeoDataClient) GetMatchByID(ctx context.Context, matchID string) (*MatchRecord, error) {
	body, err := c.Get(ctx, fmt.Sprintf("%s/%s", MatchesEndpoint, matchID))
	if err != nil {
		return nil, fmt.Errorf("failed to get match: %w", err)
	}

	var match MatchRecord
	if err := json.Unmarshal(body, &match); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &match, nil
}

func (c *GeoDataClient) GetPlayerMatches(ctx context.Context, playerID string, skip, take int) ([]MatchRecord, error) {
	body, err := c.Get(ctx, fmt.Sprintf("%s/player/%s?skip=%d&take=%d", MatchesEndpoint, playerID, skip, take))
	if err != nil {
		return nil, fmt.Errorf("failed to get player matches: %w", err)
	}

	var matches []MatchRecord
	if err := json.Unmarshal(body, &matches); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return matches, nil
}
