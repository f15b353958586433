// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var err error
	DB, err = sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	// Balances and totals are NUMERIC(78, 0): wide enough for 256-bit
	// integers, stored exactly.
	schemaSQL := `
		CREATE TABLE IF NOT EXISTS bento_boxes (
			id TEXT PRIMARY KEY,
			authority TEXT NOT NULL,
			pending_authority TEXT NOT NULL DEFAULT '',
			renounced BOOLEAN NOT NULL DEFAULT FALSE,
			strategy_delay BIGINT NOT NULL,
			minimum_share_balance NUMERIC(78, 0) NOT NULL,
			max_target_percentage SMALLINT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS bento_totals (
			bentobox TEXT NOT NULL,
			mint TEXT NOT NULL,
			base NUMERIC(78, 0) NOT NULL,
			elastic NUMERIC(78, 0) NOT NULL,
			PRIMARY KEY (bentobox, mint)
		);

		CREATE TABLE IF NOT EXISTS bento_balances (
			bentobox TEXT NOT NULL,
			mint TEXT NOT NULL,
			owner TEXT NOT NULL,
			share NUMERIC(78, 0) NOT NULL,
			PRIMARY KEY (bentobox, mint, owner)
		);
		CREATE INDEX IF NOT EXISTS idx_bento_balances_owner ON bento_balances(owner);

		CREATE TABLE IF NOT EXISTS strategy_data (
			bentobox TEXT NOT NULL,
			mint TEXT NOT NULL,
			pending TEXT NOT NULL DEFAULT '',
			active TEXT NOT NULL DEFAULT '',
			start_date BIGINT NOT NULL DEFAULT 0,
			target_percentage SMALLINT NOT NULL DEFAULT 0,
			balance NUMERIC(78, 0) NOT NULL,
			PRIMARY KEY (bentobox, mint)
		);

		CREATE TABLE IF NOT EXISTS master_contract_whitelists (
			id TEXT PRIMARY KEY,
			bentobox TEXT NOT NULL,
			master_contract TEXT NOT NULL,
			whitelisted BOOLEAN NOT NULL
		);

		CREATE TABLE IF NOT EXISTS master_contract_approvals (
			id TEXT PRIMARY KEY,
			bentobox TEXT NOT NULL,
			master_contract TEXT NOT NULL,
			owner TEXT NOT NULL,
			approved BOOLEAN NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_master_contract_approvals_owner ON master_contract_approvals(owner);

		CREATE TABLE IF NOT EXISTS cauldrons (
			id TEXT PRIMARY KEY,
			authority TEXT NOT NULL,
			bentobox TEXT NOT NULL,
			collateral_mint TEXT NOT NULL,
			asset_mint TEXT NOT NULL,
			oracle_feed TEXT NOT NULL,
			fee_to TEXT NOT NULL,
			collaterization_rate NUMERIC(78, 0) NOT NULL,
			liquidation_multiplier NUMERIC(78, 0) NOT NULL,
			borrow_opening_fee NUMERIC(78, 0) NOT NULL,
			interest_per_second NUMERIC(78, 0) NOT NULL,
			last_accrued BIGINT NOT NULL,
			fees_earned NUMERIC(78, 0) NOT NULL,
			borrow_limit_total NUMERIC(78, 0) NOT NULL,
			borrow_limit_per_address NUMERIC(78, 0) NOT NULL,
			last_interest_update BIGINT NOT NULL,
			stale_after_slots BIGINT NOT NULL,
			liquidation_deadline BIGINT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS cauldron_totals (
			cauldron TEXT PRIMARY KEY,
			collateral_share NUMERIC(78, 0) NOT NULL,
			borrow_base NUMERIC(78, 0) NOT NULL,
			borrow_elastic NUMERIC(78, 0) NOT NULL
		);

		CREATE TABLE IF NOT EXISTS cauldron_user_balances (
			cauldron TEXT NOT NULL,
			owner TEXT NOT NULL,
			collateral_share NUMERIC(78, 0) NOT NULL,
			borrow_part NUMERIC(78, 0) NOT NULL,
			PRIMARY KEY (cauldron, owner)
		);
		CREATE INDEX IF NOT EXISTS idx_cauldron_user_balances_owner ON cauldron_user_balances(owner);

		CREATE TABLE IF NOT EXISTS liquidator_accounts (
			id TEXT PRIMARY KEY,
			cauldron TEXT NOT NULL,
			origin_liquidator TEXT NOT NULL,
			state SMALLINT NOT NULL,
			collateral_share NUMERIC(78, 0) NOT NULL,
			collateral_amount NUMERIC(78, 0) NOT NULL,
			borrow_amount NUMERIC(78, 0) NOT NULL,
			borrow_share NUMERIC(78, 0) NOT NULL,
			real_amount NUMERIC(78, 0) NOT NULL,
			deadline BIGINT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_liquidator_accounts_cauldron ON liquidator_accounts(cauldron);
	`
	_, err := DB.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
