package web

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/abraca-finance/bento/internal/cauldron"
	"github.com/abraca-finance/bento/internal/logger"
	"github.com/abraca-finance/bento/internal/state"
	"github.com/abraca-finance/bento/internal/types"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var webLogger = logger.GetForComponent("web_server")

// WebServer serves the read-only JSON API over vault and market records.
type WebServer struct {
	router *mux.Router
	store  cauldron.Store
	port   string
}

// NewWebServer creates a new web server instance
func NewWebServer(port string, store cauldron.Store) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router: mux.NewRouter(),
		store:  store,
		port:   port,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	// Health endpoint (direct route)
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	// Prometheus scrape endpoint
	ws.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// API endpoints
	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/bentobox/{box}", ws.handleGetBentoBox).Methods("GET")
	api.HandleFunc("/bentobox/{box}/totals/{mint}", ws.handleGetTotal).Methods("GET")
	api.HandleFunc("/bentobox/{box}/balances/{mint}/{owner}", ws.handleGetBalance).Methods("GET")
	api.HandleFunc("/bentobox/{box}/strategy/{mint}", ws.handleGetStrategyData).Methods("GET")
	api.HandleFunc("/cauldron/{id}", ws.handleGetCauldron).Methods("GET")
	api.HandleFunc("/cauldron/{id}/positions/{owner}", ws.handleGetPosition).Methods("GET")
	api.HandleFunc("/cauldron/{id}/liquidations/{liquidator}", ws.handleGetLiquidation).Methods("GET")

	// Add CORS middleware
	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
	ws.router.Use(ws.metricsMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// read opens a read-only unit of work. Callers roll it back when done.
func (ws *WebServer) read(r *http.Request) (cauldron.Tx, error) {
	return ws.store.Begin(r.Context())
}

// handleHealth returns comprehensive server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	// Get runtime memory stats
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	// Get database connection status
	dbHealthy := true
	hasErrors := false
	if err := state.TestDBConnection(); err != nil {
		dbHealthy = false
		hasErrors = true
	}

	// Determine overall status
	overallStatus := "OK"
	if hasErrors {
		overallStatus = "DEGRADED"
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":            runtime.Version(),
			"goroutines_count":   runtime.NumGoroutine(),
			"total_alloc_bytes":  memStats.TotalAlloc,
			"heap_objects_count": memStats.HeapObjects,
			"alloc_bytes":        memStats.Alloc,
			"sys_bytes":          memStats.Sys,
			"gc_cycles":          memStats.NumGC,
		},
		"component": map[string]interface{}{
			"name":    "bentod",
			"version": "1.0.0",
		},
		"database_healthy": dbHealthy,
	}

	// Set appropriate HTTP status code
	statusCode := http.StatusOK
	if hasErrors {
		statusCode = http.StatusServiceUnavailable
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// handleGetBentoBox returns a vault's root record
func (ws *WebServer) handleGetBentoBox(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	box := types.Address(vars["box"])

	tx, err := ws.read(r)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to open read transaction")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to read vault")
		return
	}
	defer tx.Rollback()

	record, err := tx.BentoBox(box)
	if err != nil {
		webLogger.Error().Err(err).Str("box", box.String()).Msg("Failed to get vault")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to read vault")
		return
	}
	if record == nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Vault not found")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"id":                    record.ID,
		"authority":             record.Authority,
		"pending_authority":     record.PendingAuthority,
		"renounced":             record.Renounced,
		"strategy_delay":        record.StrategyDelay,
		"minimum_share_balance": record.MinimumShareBalance.String(),
		"max_target_percentage": record.MaxTargetPercentage,
	})
}

// handleGetTotal returns a vault's per-token share pool
func (ws *WebServer) handleGetTotal(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	box := types.Address(vars["box"])
	mint := types.Address(vars["mint"])

	tx, err := ws.read(r)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to open read transaction")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to read totals")
		return
	}
	defer tx.Rollback()

	total, err := tx.Total(box, mint)
	if err != nil {
		webLogger.Error().Err(err).Str("box", box.String()).Str("mint", mint.String()).Msg("Failed to get totals")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to read totals")
		return
	}
	if total == nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Token pool not found")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"bentobox": total.BentoBox,
		"mint":     total.Mint,
		"base":     total.Amount.Base.String(),
		"elastic":  total.Amount.Elastic.String(),
	})
}

// handleGetBalance returns one principal's share balance for a token
func (ws *WebServer) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	box := types.Address(vars["box"])
	mint := types.Address(vars["mint"])
	owner := types.Address(vars["owner"])

	tx, err := ws.read(r)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to open read transaction")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to read balance")
		return
	}
	defer tx.Rollback()

	balance, err := tx.Balance(box, mint, owner)
	if err != nil {
		webLogger.Error().Err(err).Str("owner", owner.String()).Msg("Failed to get balance")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to read balance")
		return
	}
	if balance == nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Balance not found")
		return
	}

	response := map[string]interface{}{
		"bentobox": balance.BentoBox,
		"mint":     balance.Mint,
		"owner":    balance.Owner,
		"share":    balance.Share.String(),
	}

	// Report the amount the shares represent alongside the raw share count.
	if total, err := tx.Total(box, mint); err == nil && total != nil {
		response["amount"] = total.Amount.ToElastic(balance.Share, false).String()
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetStrategyData returns the allocator state for a token
func (ws *WebServer) handleGetStrategyData(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	box := types.Address(vars["box"])
	mint := types.Address(vars["mint"])

	tx, err := ws.read(r)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to open read transaction")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to read strategy data")
		return
	}
	defer tx.Rollback()

	sd, err := tx.StrategyData(box, mint)
	if err != nil {
		webLogger.Error().Err(err).Str("box", box.String()).Str("mint", mint.String()).Msg("Failed to get strategy data")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to read strategy data")
		return
	}
	if sd == nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Strategy data not found")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"bentobox":          sd.BentoBox,
		"mint":              sd.Mint,
		"pending":           sd.Pending,
		"active":            sd.Active,
		"start_date":        sd.StartDate,
		"target_percentage": sd.TargetPercentage,
		"balance":           sd.Balance.String(),
	})
}

// handleGetCauldron returns a market's configuration and aggregates
func (ws *WebServer) handleGetCauldron(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := types.Address(vars["id"])

	tx, err := ws.read(r)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to open read transaction")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to read market")
		return
	}
	defer tx.Rollback()

	c, err := tx.Cauldron(id)
	if err != nil {
		webLogger.Error().Err(err).Str("cauldron", id.String()).Msg("Failed to get market")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to read market")
		return
	}
	if c == nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Market not found")
		return
	}

	response := map[string]interface{}{
		"id":                    c.ID,
		"authority":             c.Authority,
		"bentobox":              c.BentoBox,
		"collateral_mint":       c.CollateralMint,
		"asset_mint":            c.AssetMint,
		"oracle_feed":           c.OracleFeed,
		"fee_to":                c.FeeTo,
		"collaterization_rate":  c.Constants.CollaterizationRate.String(),
		"liquidation_multiplier": c.Constants.LiquidationMultiplier.String(),
		"borrow_opening_fee":    c.Constants.BorrowOpeningFee.String(),
		"interest_per_second":   c.Constants.InterestPerSecond.String(),
		"last_accrued":          c.Accrue.LastAccrued,
		"fees_earned":           c.Accrue.FeesEarned.String(),
		"borrow_limit_total":    c.Limit.Total.String(),
		"borrow_limit_per_address": c.Limit.PerAddress.String(),
	}

	if total, err := tx.CauldronTotal(id); err == nil && total != nil {
		response["total_collateral_share"] = total.CollateralShare.String()
		response["total_borrow_part"] = total.Borrow.Base.String()
		response["total_borrow_amount"] = total.Borrow.Elastic.String()
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetPosition returns one user's position on a market
func (ws *WebServer) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := types.Address(vars["id"])
	owner := types.Address(vars["owner"])

	tx, err := ws.read(r)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to open read transaction")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to read position")
		return
	}
	defer tx.Rollback()

	ub, err := tx.UserBalance(id, owner)
	if err != nil {
		webLogger.Error().Err(err).Str("owner", owner.String()).Msg("Failed to get position")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to read position")
		return
	}
	if ub == nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Position not found")
		return
	}

	response := map[string]interface{}{
		"cauldron":         ub.Cauldron,
		"owner":            ub.Owner,
		"collateral_share": ub.CollateralShare.String(),
		"borrow_part":      ub.BorrowPart.String(),
	}

	// Translate the part into current owed amount when the pool exists.
	if total, err := tx.CauldronTotal(id); err == nil && total != nil {
		response["borrow_amount"] = total.Borrow.ToElastic(ub.BorrowPart, true).String()
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetLiquidation returns an in-flight phased liquidation, if any
func (ws *WebServer) handleGetLiquidation(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := types.Address(vars["id"])
	liquidator := types.Address(vars["liquidator"])

	tx, err := ws.read(r)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to open read transaction")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to read liquidation")
		return
	}
	defer tx.Rollback()

	account, err := tx.LiquidatorAccount(types.LiquidatorAccountAddress(id, liquidator))
	if err != nil {
		webLogger.Error().Err(err).Str("liquidator", liquidator.String()).Msg("Failed to get liquidation")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to read liquidation")
		return
	}
	if account == nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Liquidation not found")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"id":                account.ID,
		"cauldron":          account.Cauldron,
		"origin_liquidator": account.OriginLiquidator,
		"state":             account.State.String(),
		"collateral_share":  account.CollateralShare.String(),
		"collateral_amount": account.CollateralAmount.String(),
		"borrow_amount":     account.BorrowAmount.String(),
		"borrow_share":      account.BorrowShare.String(),
		"real_amount":       account.RealAmount.String(),
		"deadline":          account.Deadline,
	})
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", duration).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
