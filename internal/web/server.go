package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/elys-network/perpvault/internal/config"
	"github.com/elys-network/perpvault/internal/logger"
	"github.com/elys-network/perpvault/internal/state"
	"github.com/elys-network/perpvault/internal/types"
)

var webLogger = logger.GetForComponent("web_server")

// StateProvider is the read side of the keeper's store.
type StateProvider interface {
	RecentCycles(limit int) ([]state.StoredSnapshot, error)
	CycleByID(id int64) (*state.StoredSnapshot, error)
	LatestCycle() (*state.StoredSnapshot, error)
	SubscriptionHistory(limit int) ([]types.SubscriptionState, error)
	ActiveFeePolicy() (*types.FeePolicyParams, int64, error)
	VaultSummary() (*state.VaultSummary, error)
	Performance() (*state.PerformanceMetrics, error)
	Healthy() error
}

// WebServer serves keeper data and prometheus metrics over HTTP
type WebServer struct {
	router   *mux.Router
	port     string
	provider StateProvider
	gatherer prometheus.Gatherer
	origin   string
	started  time.Time
}

// NewWebServer creates a new web server instance
func NewWebServer(port string, provider StateProvider, gatherer prometheus.Gatherer) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:   mux.NewRouter(),
		port:     port,
		provider: provider,
		gatherer: gatherer,
		origin:   config.AllowedOrigin,
		started:  time.Now(),
	}
	if server.origin == "" {
		server.origin = "*"
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	ws.router.Handle("/metrics", promhttp.HandlerFor(ws.gatherer, promhttp.HandlerOpts{})).Methods("GET")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/cycles", ws.handleGetCycles).Methods("GET")
	api.HandleFunc("/cycles/latest", ws.handleGetLatestCycle).Methods("GET")
	api.HandleFunc("/cycles/{id:[0-9]+}", ws.handleGetCycle).Methods("GET")
	api.HandleFunc("/subscription", ws.handleGetSubscription).Methods("GET")
	api.HandleFunc("/subscription/history", ws.handleGetSubscriptionHistory).Methods("GET")
	api.HandleFunc("/fee-policy", ws.handleGetFeePolicy).Methods("GET")
	api.HandleFunc("/vault/summary", ws.handleGetVaultSummary).Methods("GET")
	api.HandleFunc("/performance", ws.handleGetPerformanceMetrics).Methods("GET")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Handler exposes the router, mostly for tests.
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (ws *WebServer) Start(ctx context.Context) error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		webLogger.Info().Msg("Shutting down web server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// handleHealth reports database connectivity and the outcome of the latest cycle
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	hasErrors := false
	cycleInfo := map[string]interface{}{
		"current_cycle":     0,
		"last_cycle_time":   nil,
		"last_cycle_status": "unknown",
		"actions_executed":  0,
	}
	latest, err := ws.provider.LatestCycle()
	switch {
	case err == nil:
		status := "completed"
		if !latest.Success {
			status = "failed"
			hasErrors = true
		}
		cycleInfo = map[string]interface{}{
			"current_cycle":     latest.CycleNumber,
			"last_cycle_time":   latest.Timestamp,
			"last_cycle_status": status,
			"actions_executed":  len(latest.ActionReceipts),
		}
	case errors.Is(err, state.ErrNotFound):
		// nothing recorded yet
	default:
		hasErrors = true
	}

	dbHealthy := true
	if err := ws.provider.Healthy(); err != nil {
		dbHealthy = false
		hasErrors = true
	}

	overallStatus := "OK"
	if hasErrors {
		overallStatus = "DEGRADED"
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
			"uptime_seconds":   int64(time.Since(ws.started).Seconds()),
		},
		"component": map[string]interface{}{
			"name":    "perpvault-keeper",
			"version": "1.0.0",
		},
		"avm_status": map[string]interface{}{
			"database_healthy":  dbHealthy,
			"has_recent_errors": hasErrors,
			"cycle_info":        cycleInfo,
		},
	}

	statusCode := http.StatusOK
	if hasErrors {
		statusCode = http.StatusServiceUnavailable
	}
	ws.writeJSONResponse(w, statusCode, response)
}

func parseLimit(r *http.Request, def int) int {
	limit := def
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	return limit
}

// handleGetCycles returns paginated cycle data
func (ws *WebServer) handleGetCycles(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 20)

	cycles, err := ws.provider.RecentCycles(limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent cycles")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve cycles")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"cycles": cycles,
		"count":  len(cycles),
		"limit":  limit,
	})
}

// handleGetCycle returns a specific cycle by ID
func (ws *WebServer) handleGetCycle(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid cycle ID")
		return
	}

	cycle, err := ws.provider.CycleByID(id)
	if err != nil {
		ws.writeLookupError(w, err, "Cycle not found")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, cycle)
}

// handleGetLatestCycle returns the most recent cycle
func (ws *WebServer) handleGetLatestCycle(w http.ResponseWriter, r *http.Request) {
	cycle, err := ws.provider.LatestCycle()
	if err != nil {
		ws.writeLookupError(w, err, "No cycles found")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, cycle)
}

// handleGetSubscription returns the subscription state the latest cycle ended with
func (ws *WebServer) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	cycle, err := ws.provider.LatestCycle()
	if err != nil {
		ws.writeLookupError(w, err, "No cycles found")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"subscription":      cycle.FinalState,
		"deviation_ratio":   cycle.FinalDeviationRatio,
		"rollover_fee_perc": cycle.RolloverFeePerc,
		"perp_price":        cycle.PerpPrice,
		"cycle_number":      cycle.CycleNumber,
		"timestamp":         cycle.Timestamp,
	})
}

func (ws *WebServer) handleGetSubscriptionHistory(w http.ResponseWriter, r *http.Request) {
	history, err := ws.provider.SubscriptionHistory(parseLimit(r, 50))
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get subscription history")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve subscription history")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"history": history,
		"count":   len(history),
	})
}

// handleGetFeePolicy returns the active fee policy version
func (ws *WebServer) handleGetFeePolicy(w http.ResponseWriter, r *http.Request) {
	params, paramsID, err := ws.provider.ActiveFeePolicy()
	if err != nil {
		ws.writeLookupError(w, err, "No active fee policy")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"params_id":  paramsID,
		"parameters": params,
		"timestamp":  time.Now().UTC(),
	})
}

// handleGetVaultSummary returns vault summary statistics
func (ws *WebServer) handleGetVaultSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := ws.provider.VaultSummary()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get vault summary")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve vault summary")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, summary)
}

// handleGetPerformanceMetrics returns performance metrics
func (ws *WebServer) handleGetPerformanceMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := ws.provider.Performance()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get performance metrics")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve performance metrics")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, metrics)
}

// writeLookupError maps ErrNotFound to 404 and everything else to 500
func (ws *WebServer) writeLookupError(w http.ResponseWriter, err error, notFound string) {
	if errors.Is(err, state.ErrNotFound) {
		ws.writeErrorResponse(w, http.StatusNotFound, notFound)
		return
	}
	webLogger.Error().Err(err).Msg("Lookup failed")
	ws.writeErrorResponse(w, http.StatusInternalServerError, "Internal error")
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
	ws.writeJSONResponse(w, statusCode, map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	})
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", ws.origin)
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
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		webLogger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
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
