package config

import (
	"github.com/rs/zerolog/log"
)

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// WebPort is the port the dashboard API and /metrics listen on.
	WebPort string
	// AllowedOrigin is returned in Access-Control-Allow-Origin.
	AllowedOrigin string

	// PostgreSQL connection used by the cycle store.
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
)

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	WebPort = getEnvOrDefault("WEB_PORT", "8080")
	AllowedOrigin = getEnvOrDefault("CORS_ALLOWED_ORIGIN", "*")

	DBHost = getEnvOrDefault("DB_HOST", "localhost")
	port, err := getEnvAsInt64("DB_PORT", 5432)
	if err != nil {
		return err
	}
	DBPort = int(port)
	DBUser, err = getEnv("DB_USER")
	if err != nil {
		return err
	}
	DBName, err = getEnv("DB_NAME")
	if err != nil {
		return err
	}
	DBPassword = getEnvOrDefault("DB_PASSWORD", "")
	DBSSLMode = getEnvOrDefault("DB_SSLMODE", "disable")

	log.Debug().
		Str("WebPort", WebPort).
		Str("AllowedOrigin", AllowedOrigin).
		Str("DBHost", DBHost).
		Int("DBPort", DBPort).
		Str("DBName", DBName).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}
