package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// DBHost is the PostgreSQL host.
	DBHost string
	// DBPort is the PostgreSQL port.
	DBPort int
	// DBUser is the PostgreSQL user.
	DBUser string
	// DBPassword is the PostgreSQL password.
	DBPassword string
	// DBName is the PostgreSQL database name.
	DBName string
	// DBSSLMode is the PostgreSQL sslmode ("disable", "require", ...).
	DBSSLMode string

	// HTTPListenAddr is the bind address of the JSON API server.
	HTTPListenAddr string

	// AccrueMarkets lists the market addresses the daemon accrues interest
	// on periodically. Optional; empty disables the accrual loop.
	AccrueMarkets []string

	// LogLevel controls the global log level ("debug", "info", "warn", "error").
	LogLevel string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// All environment variables are required and must be set, except LOG_LEVEL
// which defaults to "info".
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	DBHost, err = getEnv("BENTO_DB_HOST")
	if err != nil {
		return err
	}

	DBPort, err = getEnvAsInt("BENTO_DB_PORT")
	if err != nil {
		return err
	}

	DBUser, err = getEnv("BENTO_DB_USER")
	if err != nil {
		return err
	}

	DBPassword, err = getEnv("BENTO_DB_PASSWORD")
	if err != nil {
		return err
	}

	DBName, err = getEnv("BENTO_DB_NAME")
	if err != nil {
		return err
	}

	DBSSLMode, err = getEnv("BENTO_DB_SSLMODE")
	if err != nil {
		return err
	}

	HTTPListenAddr, err = getEnv("BENTO_HTTP_LISTEN")
	if err != nil {
		return err
	}

	if value, exists := os.LookupEnv("BENTO_ACCRUE_MARKETS"); exists && value != "" {
		for _, id := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(id); trimmed != "" {
				AccrueMarkets = append(AccrueMarkets, trimmed)
			}
		}
	}

	if value, exists := os.LookupEnv("LOG_LEVEL"); exists {
		LogLevel = value
	} else {
		LogLevel = "info"
	}

	log.Debug().
		Str("DBHost", DBHost).
		Str("DBName", DBName).
		Str("HTTPListenAddr", HTTPListenAddr).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvAsInt retrieves an environment variable as an int. Returns error if not set or invalid.
func getEnvAsInt(key string) (int, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid int, got: " + valueStr)
	}
	return value, nil
}
