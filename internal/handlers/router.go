package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/xelth-com/eckclockgo/internal/buildinfo"
	"github.com/xelth-com/eckclockgo/internal/metrics"
	"github.com/xelth-com/eckclockgo/internal/middleware"
	"github.com/xelth-com/eckclockgo/internal/repository"
	"github.com/xelth-com/eckclockgo/internal/timeclock"
	"github.com/xelth-com/eckclockgo/internal/websocket"
)

// Runner executes sync requests
type Runner interface {
	Run(ctx context.Context, req timeclock.Request) (*timeclock.Response, error)
}

// Deps wires the router. Metrics and Hub are optional.
type Deps struct {
	Runner    Runner
	Store     repository.Store
	Metrics   *metrics.Collector
	Hub       *websocket.Hub
	JWTSecret string
}

// Router wraps the mux router and the services behind it
type Router struct {
	*mux.Router
	runner Runner
	store  repository.Store
}

// NewRouter creates a new HTTP router with all routes
func NewRouter(d Deps) *Router {
	r := &Router{
		Router: mux.NewRouter(),
		runner: d.Runner,
		store:  d.Store,
	}
	r.Use(middleware.RequestLogger)

	r.HandleFunc("/health", r.healthCheck).Methods("GET")
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler()).Methods("GET")
	}
	if d.Hub != nil {
		r.HandleFunc("/ws", func(w http.ResponseWriter, req *http.Request) {
			websocket.ServeWs(d.Hub, w, req)
		})
	}

	api := r.PathPrefix("/api/timeclock").Subrouter()
	api.Use(middleware.AuthMiddleware(d.JWTSecret))
	api.HandleFunc("/sync", r.runSync).Methods("POST")
	api.HandleFunc("/devices/{id}/sync-logs", r.listSyncLogs).Methods("GET")
	api.HandleFunc("/devices/{id}/users", r.listDeviceUsers).Methods("GET")

	return r
}

// Handler returns the router as an http.Handler
func (r *Router) Handler() http.Handler {
	return r.Router
}

// healthCheck returns the health status of the API
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	body := buildinfo.Fields()
	body["status"] = "ok"
	body["service"] = "eckclock"
	respondJSON(w, http.StatusOK, body)
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
