package geo_data_client

import (
	"context"
	"encoding/json"
	"fmt"
)

type PlayerStats struct {
	PlayerID              string  `json:"playerId"`
	TotalMatches          int     `json:"totalMatches"`
	Wins                  int     `json:"wins"`
	Losses                int     `json:"losses"`
	Draws                 int     `json:"draws"`
	WinRate               float64 `json:"winRate"`
	TotalRoundsPlayed     int     `json:"totalRoundsPlayed"`
	TotalPoints           int     `json:"totalPoints"`
	HighestScore          int     `json:"highestScore"`
	AveragePointsPerRound float64 `json:"averagePointsPerRound"`
	AverageDistanceKm     float64 `json:"averageDistanceErrorKm"`
	RankingPoints         int     `json:"rankingPoints"`
	LastMatchAt           *string `json:"lastMatchAt"`
}

func (c *GeoDataClient) GetPlayerStats(ctx context.Context, playerID string) (*PlayerStats, error) {
	body, err := c.Get(ctx, fmt.Sprintf("%s/%s/stats", PlayersEndpoint, playerID))
	if err != nil {
		return nil, fmt.Errorf("failed to get player stats: %w", err)
	}

	var stats PlayerStats
	if err := json.Unmarshal(body, &stats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &stats, nil
}

func (c *GeoDataClient) GetRanking(ctx context.Context, count int) ([]PlayerStats, error) {
	body, err := c.Get(ctx, fmt.Sprintf("%s?count=%d", RankingEndpoint, count))
	if err != nil {
		return nil, fmt.Errorf("failed to get ranking: %w", err)
	}

	var ranking []PlayerStats
	if err := json.Unmarshal(body, &ranking); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return ranking, nil
}
