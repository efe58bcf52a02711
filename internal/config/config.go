package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port int

	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string

	AnthropicKey   string
	AnthropicModel string

	// Tunables for command resolution; the engine ships reasonable
	// defaults but every threshold is overridable.
	ConfidenceThreshold float64
	MatchThreshold      float64
	MatchMargin         float64

	ParserTimeout time.Duration
	StoreTimeout  time.Duration
}

func Load() *Config {
	model := os.Getenv("ANTHROPIC_MODEL")
	if model == "" {
		model = "claude-3-5-sonnet-latest"
	}

	return &Config{
		Port: envInt("PORT", 8080),

		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     envInt("DB_PORT", 5432),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),

		AnthropicKey:   os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel: model,

		ConfidenceThreshold: envFloat("CONFIDENCE_THRESHOLD", 0.6),
		MatchThreshold:      envFloat("MATCH_THRESHOLD", 0.55),
		MatchMargin:         envFloat("MATCH_MARGIN", 0.1),

		ParserTimeout: time.Duration(envInt("PARSER_TIMEOUT_SECONDS", 15)) * time.Second,
		StoreTimeout:  time.Duration(envInt("STORE_TIMEOUT_SECONDS", 5)) * time.Second,
	}
}

func (c *Config) ConnString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName,
	)
}

// HasDatabase reports whether a Postgres store is configured; without
// one the server runs on the in-memory store.
func (c *Config) HasDatabase() bool {
	return c.DBHost != ""
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func envFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return fallback
	}
	return v
}
