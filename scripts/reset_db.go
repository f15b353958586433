package main

import (
	"fmt"
	"os"

	"github.com/abraca-finance/bento/internal/logger"
	"github.com/abraca-finance/bento/internal/state"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	// Initialize logger
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logger.Initialize(logLevel)
	log.Info().Msg("Starting database reset script...")

	// Load environment variables from .env file
	err := godotenv.Load()
	if err != nil {
		log.Warn().Msg("Warning: .env file not found or error loading .env file. Relying on OS environment variables.")
	}

	// Get database configuration from environment variables
	dbHost := os.Getenv("BENTO_DB_HOST")
	dbPortStr := os.Getenv("BENTO_DB_PORT")
	dbUser := os.Getenv("BENTO_DB_USER")
	dbPassword := os.Getenv("BENTO_DB_PASSWORD")
	dbName := os.Getenv("BENTO_DB_NAME")
	dbSSLMode := os.Getenv("BENTO_DB_SSLMODE")

	// Set defaults for missing values
	if dbHost == "" {
		dbHost = "localhost"
	}
	if dbPortStr == "" {
		dbPortStr = "5432"
	}
	if dbUser == "" {
		log.Fatal().Msg("BENTO_DB_USER environment variable not set.")
	}
	if dbName == "" {
		log.Fatal().Msg("BENTO_DB_NAME environment variable not set.")
	}
	if dbSSLMode == "" {
		dbSSLMode = "disable"
	}

	// Convert dbPort to integer
	dbPort := 5432
	if dbPortStr != "" {
		fmt.Sscanf(dbPortStr, "%d", &dbPort)
	}

	// Initialize database connection
	dbCfg := state.DBConfig{
		Host:     dbHost,
		Port:     dbPort,
		User:     dbUser,
		Password: dbPassword,
		DBName:   dbName,
		SSLMode:  dbSSLMode,
	}

	log.Info().
		Str("host", dbCfg.Host).
		Int("port", dbCfg.Port).
		Str("user", dbCfg.User).
		Str("dbname", dbCfg.DBName).
		Msg("Connecting to database")

	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database connection")
	}
	defer state.CloseDB()

	log.Info().Msg("Connected to database. Attempting to drop all tables...")

	// Drop all tables - this is the "reset" part
	dropTablesQuery := `
		DROP TABLE IF EXISTS liquidator_accounts CASCADE;
		DROP TABLE IF EXISTS cauldron_user_balances CASCADE;
		DROP TABLE IF EXISTS cauldron_totals CASCADE;
		DROP TABLE IF EXISTS cauldrons CASCADE;
		DROP TABLE IF EXISTS master_contract_approvals CASCADE;
		DROP TABLE IF EXISTS master_contract_whitelists CASCADE;
		DROP TABLE IF EXISTS strategy_data CASCADE;
		DROP TABLE IF EXISTS bento_balances CASCADE;
		DROP TABLE IF EXISTS bento_totals CASCADE;
		DROP TABLE IF EXISTS bento_boxes CASCADE;
	`

	_, err = state.DB.Exec(dropTablesQuery)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to drop tables")
	}
	log.Info().Msg("Successfully dropped all tables")

	// Recreate the schema
	log.Info().Msg("Recreating database schema...")
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to recreate database schema")
	}
	log.Info().Msg("Database schema successfully recreated")

	log.Info().Msg("Database reset complete!")
}
