// Package api provides the HTTP server for the vitals gateway.
// It exposes the per-player snapshot, recompute, config, transaction
// entry, and sweep endpoints consumed by the dashboard.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vitalgate/vitalgate/internal/app/sweep"
	"github.com/vitalgate/vitalgate/internal/domain"
	"github.com/vitalgate/vitalgate/internal/vitals"
)

// Version is the daemon version reported by /api/version.
const Version = "0.1.0"

// Server is the vitals gateway HTTP API server.
type Server struct {
	engine         *vitals.Engine
	sweeper        *sweep.Sweeper
	store          domain.DocumentStore
	txs            domain.TransactionStore
	metricsEnabled bool
}

// NewServer creates a new API server.
func NewServer(engine *vitals.Engine, sweeper *sweep.Sweeper, store domain.DocumentStore, txs domain.TransactionStore) *Server {
	return &Server{engine: engine, sweeper: sweeper, store: store, txs: txs}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Minute))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/api/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "vitalgate is running"})
	})

	r.Get("/api/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"version": Version})
	})

	r.Route("/api/vitals/{player}", func(r chi.Router) {
		r.Get("/", s.handleGetSnapshot)
		r.Post("/recompute", s.handleRecompute)
		r.Get("/config", s.handleGetConfig)
		r.Put("/config", s.handlePutConfig)
		r.Post("/transactions", s.handlePostTransaction)
		r.Post("/sweep", s.handleSweep)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}

// corsMiddleware adds CORS headers for the dashboard dev server.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
