package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/geoduel/geoduel/go/clients/geo_data_client"
	"github.com/geoduel/geoduel/go/internal/game/engine"
	"github.com/geoduel/geoduel/go/internal/game/transport"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	config, err := loadConfig(getEnv("GEODUEL_CONFIG", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if config.Game.PlayerID == "" {
		log.Fatal().Msg("GEODUEL_PLAYER_ID is required")
	}

	log.Info().
		Str("player_id", config.Game.PlayerID).
		Str("transport", config.Game.Transport).
		Str("api_url", config.API.BaseURL).
		Msg("starting geoduel agent")

	// Verify the player exists before opening a game session
	apiClient := geo_data_client.NewGeoDataClient(config.API.BaseURL)
	statsCtx, cancelStats := context.WithTimeout(context.Background(), 10*time.Second)
	stats, err := apiClient.GetPlayerStats(statsCtx, config.Game.PlayerID)
	cancelStats()
	if err != nil {
		log.Warn().Err(err).Msg("could not fetch player stats; continuing without them")
	} else {
		log.Info().
			Int("ranking_points", stats.RankingPoints).
			Int("total_matches", stats.TotalMatches).
			Msg("player profile loaded")
	}

	eng, err := buildEngine(config)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build session engine")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := eng.Connect(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to game server")
	}

	server := setupServer(eng, config.Server.Port)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("overlay API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("overlay API failed")
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("overlay API shutdown failed")
	}
	if err := eng.Disconnect(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("session teardown failed")
	}
}

func buildEngine(config *Config) (*engine.Engine, error) {
	bus := transport.NewBus()

	var tp transport.Transport
	switch config.Game.Transport {
	case "nats":
		natsConfig := transport.DefaultNATSConfig(config.Game.PlayerID)
		if config.Game.NATSURL != "" {
			natsConfig.URL = config.Game.NATSURL
		}
		tp = transport.NewNATSClient(natsConfig, bus)
	default:
		tp = transport.NewWebSocketClient(transport.DefaultWebSocketConfig(config.Game.HubURL), bus)
	}

	opts := []engine.Option{
		engine.WithCountdownSeconds(config.Game.CountdownSeconds),
	}
	if config.Game.OpponentProgress != nil {
		opts = append(opts, engine.WithOpponentProgress(*config.Game.OpponentProgress))
	}

	return engine.NewEngine(config.Game.PlayerID, tp, opts...), nil
}
