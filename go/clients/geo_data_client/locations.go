package geo_data_client

import (
	"context"
	"encoding/json"
	"fmt"
)

type Coordinate struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Location struct {
	ID               string     `json:"id"`
	Coordinate       Coordinate `json:"coordinate"`
	Name             string     `json:"name"`
	Country          string     `json:"country"`
	Region           string     `json:"region"`
	Heading          *float64   `json:"heading"`
	Pitch            *float64   `json:"pitch"`
	TimesUsed        int        `json:"timesUsed"`
	AveragePoints    *float64   `json:"averagePoints"`
	DifficultyRating *float64   `json:"difficultyRating"`
	Tags             []string   `json:"tags"`
	IsActive         bool       `json:"isActive"`
}

func (c *GeoDataClient) GetAllLocations(ctx context.Context, activeOnly bool) ([]Location, error) {
	endpoint := LocationsEndpoint
	if activeOnly {
		endpoint = fmt.Sprintf("%s?activeOnly=true", LocationsEndpoint)
	}
	body, err := c.Get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to get locations: %w", err)
	}

	var locations []Location
	if err := json.Unmarshal(body, &locations); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return locations, nil
}

func (c *GeoDataClient) GetLocationByID(ctx context.Context, id string) (*Location, error) {
	body, err := c.Get(ctx, fmt.Sprintf("%s/%s", LocationsEndpoint, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get location: %w", err)
	}

	var location Location
	if err := json.Unmarshal(body, &location); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &location, nil
}

func (c *GeoDataClient) GetRandomLocation(ctx context.Context) (*Location, error) {
	body, err := c.Get(ctx, RandomLocationEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to get random location: %w", err)
	}

	var location Location
	if err := json.Unmarshal(body, &location); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &location, nil
}
