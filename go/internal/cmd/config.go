package main

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Game struct {
		PlayerID         string `yaml:"player_id"`
		Transport        string `yaml:"transport"` // "websocket" or "nats"
		HubURL           string `yaml:"hub_url"`
		NATSURL          string `yaml:"nats_url"`
		CountdownSeconds int    `yaml:"countdown_seconds"`
		OpponentProgress *bool  `yaml:"opponent_progress"`
	} `yaml:"game"`
	API struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"api"`
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func loadConfig(path string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file; environment and defaults decide everything.
			applyEnvOverrides(&config)
			return &config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnvOverrides(&config)
	return &config, nil
}

func applyEnvOverrides(config *Config) {
	config.Game.PlayerID = getEnv("GEODUEL_PLAYER_ID", config.Game.PlayerID)
	config.Game.Transport = getEnv("GEODUEL_TRANSPORT", config.Game.Transport)
	config.Game.HubURL = getEnv("GEODUEL_HUB_URL", config.Game.HubURL)
	config.Game.NATSURL = getEnv("NATS_URL", config.Game.NATSURL)
	config.API.BaseURL = getEnv("GEODUEL_API_URL", config.API.BaseURL)
	config.Server.Port = getEnv("PORT", config.Server.Port)

	if config.Game.Transport == "" {
		config.Game.Transport = "websocket"
	}
	if config.Game.HubURL == "" {
		config.Game.HubURL = "ws://localhost:5000/gamehub"
	}
	if config.API.BaseURL == "" {
		config.API.BaseURL = "http://localhost:5000"
	}
	if config.Server.Port == "" {
		config.Server.Port = "8080"
	}
	if config.Game.CountdownSeconds == 0 {
		config.Game.CountdownSeconds = getEnvAsInt("GEODUEL_COUNTDOWN_SECONDS", 3)
	}
}
