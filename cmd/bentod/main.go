package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abraca-finance/bento/internal/bentobox"
	"github.com/abraca-finance/bento/internal/cauldron"
	"github.com/abraca-finance/bento/internal/config"
	"github.com/abraca-finance/bento/internal/logger"
	"github.com/abraca-finance/bento/internal/state"
	"github.com/abraca-finance/bento/internal/token"
	"github.com/abraca-finance/bento/internal/types"
	"github.com/abraca-finance/bento/internal/web"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	ACCRUE_INTERVAL = 10 * time.Minute
)

// main is the entry point for the bento ledger daemon.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(config.LogLevel)
	log.Info().Msg("Bento ledger daemon starting...")

	// Initialize Database Connection
	dbCfg := state.DBConfig{
		Host: config.DBHost, Port: config.DBPort,
		User: config.DBUser, Password: config.DBPassword,
		DBName: config.DBName, SSLMode: config.DBSSLMode,
	}
	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	// --- 2. Engine Wiring ---
	store := state.NewStore(state.DB)
	ledger := token.NewMemLedger()
	log.Warn().Msg("Token ledger is in-memory: balances reset on restart while share records persist")

	vaultEngine := bentobox.NewEngine(state.VaultStore{Store: store}, ledger)
	marketEngine := cauldron.NewEngine(vaultEngine, store)
	log.Info().Msg("Vault and market engines ready")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- 3. Interest Accrual Loop ---
	if len(config.AccrueMarkets) > 0 {
		log.Info().
			Int("markets", len(config.AccrueMarkets)).
			Str("interval", ACCRUE_INTERVAL.String()).
			Msg("Starting interest accrual loop")
		go runAccrueLoop(ctx, marketEngine, config.AccrueMarkets)
	}

	// --- 4. Start Web Server ---
	webServer := web.NewWebServer(config.HTTPListenAddr, store)
	go func() {
		log.Info().Str("port", config.HTTPListenAddr).Msg("Starting bento API server")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 5. Wait for Shutdown ---
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop

	log.Info().Str("signal", sig.String()).Msg("Shutting down")
}

// runAccrueLoop ticks interest forward on the configured markets so idle
// markets stay current even without user traffic.
func runAccrueLoop(ctx context.Context, engine *cauldron.Engine, markets []string) {
	ticker := time.NewTicker(ACCRUE_INTERVAL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, id := range markets {
				if err := engine.Accrue(ctx, types.Address(id)); err != nil {
					log.Error().Err(err).Str("cauldron", id).Msg("Accrual failed")
				}
			}
		}
	}
}
