package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/driftwatch/driftwatch/internal/analyzer"
	"github.com/driftwatch/driftwatch/internal/audit"
	"github.com/driftwatch/driftwatch/internal/baseline"
	"github.com/driftwatch/driftwatch/internal/config"
	"github.com/driftwatch/driftwatch/internal/middleware"
	"github.com/driftwatch/driftwatch/internal/store"
)

// analyzeRateLimit bounds analyze requests per client per minute. Each
// request can fan out into an LLM call, so floods are expensive.
const analyzeRateLimit = 60

// Package server exposes the service over HTTP.
//
// Responsibilities:
//   - POST /api/v1/baselines/calculate: run a baseline calculation
//   - GET  /api/v1/baselines/{metric}/latest: the current baseline
//   - POST /api/v1/anomalies/analyze: analyze an externally detected anomaly
//   - GET  /api/v1/analyses: recent analyses, feedback updates, reliability
//   - /healthz liveness and /metrics Prometheus exposition
//
// Error contract: validation failures map to 400, missing records to 404,
// data source and persistence failures to 500. The data source diagnostic
// is passed through verbatim so operators see the store's own message.

// Server hosts the driftwatch HTTP API.
type Server struct {
	cfg      *config.Config
	store    store.Store
	engine   baseline.Engine
	analyzer analyzer.Analyzer
	auditor  audit.Logger
	logger   *zap.Logger
	limiter  *middleware.RateLimiter

	httpServer *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	running bool
}

// New creates a server wired to its collaborators. auditor may be nil.
func New(cfg *config.Config, st store.Store, eng baseline.Engine, an analyzer.Analyzer, auditor audit.Logger, logger *zap.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:      cfg,
		store:    st,
		engine:   eng,
		analyzer: an,
		auditor:  auditor,
		logger:   logger,
		limiter:  middleware.NewRateLimiter(analyzeRateLimit),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Router builds the HTTP routing table. Exposed for handler tests.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.observeMiddleware)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/baselines/calculate", s.handleCalculateBaseline).Methods(http.MethodPost)
	api.HandleFunc("/baselines/{metric}/latest", s.handleLatestBaseline).Methods(http.MethodGet)
	api.HandleFunc("/baselines/{metric}", s.handleListBaselines).Methods(http.MethodGet)

	api.Handle("/anomalies/analyze",
		s.limiter.Middleware(http.HandlerFunc(s.handleAnalyzeAnomaly))).Methods(http.MethodPost)
	api.HandleFunc("/analyses", s.handleListAnalyses).Methods(http.MethodGet)
	api.HandleFunc("/analyses/reliability", s.handleReliability).Methods(http.MethodGet)
	api.HandleFunc("/analyses/{id}", s.handleGetAnalysis).Methods(http.MethodGet)
	api.HandleFunc("/analyses/{id}/feedback", s.handleUpdateFeedback).Methods(http.MethodPut)

	return r
}

// Start begins serving HTTP. Non-blocking; use Wait to block.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.running = true
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("HTTP server listening",
			zap.String("host", s.cfg.Server.Host),
			zap.Int("port", s.cfg.Server.Port),
		)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
			s.cancel()
		}
	}()

	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is not running")
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("stopping HTTP server")

	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("HTTP server shutdown error", zap.Error(err))
		}
	}

	s.limiter.Stop()
	s.cancel()
	s.wg.Wait()
	return nil
}

// Wait blocks until the server is stopped or fails.
func (s *Server) Wait() {
	<-s.ctx.Done()
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
