package geo_data_client

import (
	"github.com/geoduel/geoduel/go/clients"
)

// GeoDataClient reads the game's REST API: the location catalog, player
// stats and the ranking ladder. Game-session traffic goes over the hub
// transport, not through here.
type GeoDataClient struct {
	*clients.BaseClient
}

func NewGeoDataClient(baseURL string) *GeoDataClient {
	return &GeoDataClient{
		BaseClient: clients.NewBaseClient(baseURL),
	}
}
