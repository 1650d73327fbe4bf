// Package server exposes deployment history and bytecode checks over HTTP.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pendergraft/contraship/internal/auth"
	"github.com/pendergraft/contraship/internal/config"
	deploymentsDomain "github.com/pendergraft/contraship/internal/deployments/domain"
	deploymentsTransport "github.com/pendergraft/contraship/internal/deployments/transport"
	"github.com/pendergraft/contraship/internal/middleware/logging"
	"github.com/pendergraft/contraship/internal/middleware/ratelimit"
	"github.com/pendergraft/contraship/internal/middleware/realip"
	"github.com/pendergraft/contraship/internal/observability/metrics"
	"github.com/pendergraft/contraship/internal/storage"
	verificationTransport "github.com/pendergraft/contraship/internal/verification/transport"
)

// probePaths are exempt from rate limiting and logged at debug level
var probePaths = []string{"/health", "/healthz", "/readyz", "/metrics"}

// Server is the HTTP server
type Server struct {
	cfg    *config.Config
	store  storage.Store
	logger *slog.Logger
	router *chi.Mux

	deploymentsSvc  deploymentsTransport.Service
	verificationSvc verificationTransport.Service
}

// New creates a server. A nil store disables the history routes; checker
// serves POST /api/v1/check.
func New(cfg *config.Config, store storage.Store, checker verificationTransport.Service, logger *slog.Logger) *Server {
	s := &Server{
		cfg:             cfg,
		store:           store,
		logger:          logger,
		router:          chi.NewRouter(),
		verificationSvc: checker,
	}
	if store != nil {
		s.deploymentsSvc = deploymentsDomain.LoggingMiddleware(logger)(deploymentsDomain.NewService(store))
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	// realip runs first so every later middleware sees the client address
	s.router.Use(realip.Middleware(realip.Config{
		TrustProxy:     s.cfg.Server.TrustProxy,
		TrustedProxies: s.cfg.Server.TrustedProxies,
	}))
	s.router.Use(ratelimit.Middleware(ratelimit.Config{
		Enabled:        s.cfg.RateLimit.Enabled,
		RequestsPerMin: s.cfg.RateLimit.RequestsPerMin,
		BurstSize:      s.cfg.RateLimit.BurstSize,
		CleanupMinutes: s.cfg.RateLimit.CleanupMinutes,
		ExemptPaths:    probePaths,
	}))
	s.router.Use(middleware.RequestID)
	s.router.Use(logging.Middleware(s.logger, probePaths...))
	s.router.Use(metrics.Middleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(MaxBodySize(int64(s.cfg.Server.MaxBodySizeMB) << 20))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/readyz", s.handleReady)
	if metrics.Enabled() {
		s.router.Handle("/metrics", metrics.Handler())
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		if s.deploymentsSvc != nil {
			r.Route("/deployments", deploymentsTransport.NewHandler(s.deploymentsSvc).RegisterRoutes)
		} else {
			disabled := func(w http.ResponseWriter, r *http.Request) {
				writeError(w, http.StatusServiceUnavailable, "HISTORY_DISABLED", "Deployment history storage is disabled")
			}
			r.HandleFunc("/deployments", disabled)
			r.HandleFunc("/deployments/*", disabled)
		}

		// Checks dial RPC endpoints, so they sit behind the API keys
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(s.cfg.Server.APIKeys, writeError))
			verificationTransport.NewHandler(s.verificationSvc).RegisterRoutes(r)
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports whether the history store answers
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "storage": "none"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "storage": s.cfg.Storage.Type})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "storage": s.cfg.Storage.Type})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
