package geo_data_client

const (
	// API Endpoints
	LocationsEndpoint      = "/api/locations"
	RandomLocationEndpoint = "/api/locations/random"
	PlayersEndpoint        = "/api/players"
	RankingEndpoint        = "/api/players/ranking"
	MatchesEndpoint        = "/api/matches"
	HealthEndpoint         = "/health"
)
