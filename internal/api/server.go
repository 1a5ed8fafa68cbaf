// Package api provides the HTTP server for the carbon core.
// It exposes the settlement, account-status and transfer operations to the
// presentation layer, which is an external collaborator.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cct-network/carbond/internal/ledger"
	"github.com/cct-network/carbond/internal/oracle"
)

// Version is the carbond release version.
const Version = "0.1.0"

// Server is the carbond HTTP API server.
type Server struct {
	settlement     *SettlementAPI
	metricsEnabled bool
}

// NewServer creates a new API server.
func NewServer(o *oracle.Oracle, l *ledger.Ledger) *Server {
	return &Server{settlement: &SettlementAPI{Oracle: o, Ledger: l}}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetEvents wires the persisted audit journal into the events endpoint.
func (s *Server) SetEvents(ev EventSource) { s.settlement.Events = ev }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
	})

	r.Get("/api/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version": Version,
		})
	})

	// Core operations
	r.Route("/api", func(r chi.Router) {
		r.Post("/settlements/project", s.settlement.HandleProjectSettlement)
		r.Post("/settlements/period", s.settlement.HandlePeriodSettlement)
		r.Get("/accounts/{address}", s.settlement.HandleAccountStatus)
		r.Get("/accounts/{address}/events", s.settlement.HandleAccountEvents)
		r.Get("/accounts/{address}/emissions", s.settlement.HandleEmissionHistory)
		r.Get("/accounts/{address}/projects", s.settlement.HandleAvailableProjects)
		r.Post("/transfers", s.settlement.HandleTransfer)
	})

	// Prometheus metrics endpoint
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

// corsMiddleware adds CORS headers for the dashboard frontend.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
