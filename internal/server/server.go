// File: internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/nft-trade-watcher/internal/poller"
	"github.com/smartdevs17/nft-trade-watcher/internal/storage"
	"github.com/smartdevs17/nft-trade-watcher/pkg/utils"
)

// Config holds HTTP server configuration
type Config struct {
	Port          int           `json:"port"`
	Host          string        `json:"host"`
	ReadTimeout   time.Duration `json:"read_timeout"`
	WriteTimeout  time.Duration `json:"write_timeout"`
	EnableMetrics bool          `json:"enable_metrics"`
	EnableHealth  bool          `json:"enable_health"`
}

// HTTPServer exposes the operational surface: health, status and
// Prometheus metrics. User-facing interaction goes through Telegram,
// not here.
type HTTPServer struct {
	config  *Config
	server  *http.Server
	router  *mux.Router
	storage storage.Storage
	engine  *poller.Engine
	logger  *logrus.Logger
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(config *Config, store storage.Storage, engine *poller.Engine) (*HTTPServer, error) {
	server := &HTTPServer{
		config:  config,
		storage: store,
		engine:  engine,
		logger:  utils.GetLogger(),
	}

	server.setupRouter()

	server.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      server.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return server, nil
}

// setupRouter sets up the HTTP routes
func (s *HTTPServer) setupRouter() {
	s.router = mux.NewRouter()

	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)

	api := s.router.PathPrefix("/api/v1").Subrouter()

	if s.config.EnableHealth {
		api.HandleFunc("/health", s.healthHandler).Methods("GET")
		api.HandleFunc("/health/detailed", s.detailedHealthHandler).Methods("GET")
	}

	if s.config.EnableMetrics {
		s.router.Handle("/metrics", promhttp.Handler())
	}

	api.HandleFunc("/status", s.statusHandler).Methods("GET")
	api.HandleFunc("/collections", s.listCollectionsHandler).Methods("GET")

	api.HandleFunc("/poller/start", s.startPollerHandler).Methods("POST")
	api.HandleFunc("/poller/stop", s.stopPollerHandler).Methods("POST")
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.WithFields(logrus.Fields{
		"address":         s.server.Addr,
		"metrics_enabled": s.config.EnableMetrics,
	}).Info("Starting HTTP server")

	errChan := make(chan error, 1)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error: ", err)
			errChan <- err
		}
	}()

	// Catch immediate binding errors before reporting success.
	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Stop stops the HTTP server
func (s *HTTPServer) Stop() error {
	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// healthHandler returns basic health status
func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"version":   "1.0.0",
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// detailedHealthHandler returns per-component health
func (s *HTTPServer) detailedHealthHandler(w http.ResponseWriter, r *http.Request) {
	storageHealthy := s.storage.Ping() == nil

	status := "healthy"
	if !storageHealthy {
		status = "degraded"
	}

	health := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now(),
		"components": map[string]interface{}{
			"storage": storageHealthy,
			"poller":  s.engine.IsRunning(),
		},
	}
	s.writeJSON(w, http.StatusOK, health)
}

// statusHandler returns application statistics
func (s *HTTPServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	collections, err := s.storage.ListTrackedCollections(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve collections", err)
		return
	}

	status := map[string]interface{}{
		"timestamp":           time.Now(),
		"poller_running":      s.engine.IsRunning(),
		"tracked_collections": len(collections),
	}
	s.writeJSON(w, http.StatusOK, status)
}

// listCollectionsHandler lists the distinct tracked collections
func (s *HTTPServer) listCollectionsHandler(w http.ResponseWriter, r *http.Request) {
	collections, err := s.storage.ListTrackedCollections(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve collections", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"collections": collections,
		"total":       len(collections),
	})
}

// startPollerHandler starts the polling engine
func (s *HTTPServer) startPollerHandler(w http.ResponseWriter, r *http.Request) {
	if s.engine.IsRunning() {
		s.writeError(w, http.StatusConflict, "Poller is already running", nil)
		return
	}

	if err := s.engine.Start(context.Background()); err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to start poller", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Poller started successfully",
	})
}

// stopPollerHandler stops the polling engine
func (s *HTTPServer) stopPollerHandler(w http.ResponseWriter, r *http.Request) {
	if !s.engine.IsRunning() {
		s.writeError(w, http.StatusConflict, "Poller is not running", nil)
		return
	}

	if err := s.engine.Stop(); err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to stop poller", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Poller stopped successfully",
	})
}

// writeJSON writes a JSON response
func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response: ", err)
	}
}

// writeError writes an error response
func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string, err error) {
	errorResponse := map[string]interface{}{
		"error":     message,
		"status":    status,
		"timestamp": time.Now(),
	}

	if err != nil {
		errorResponse["details"] = err.Error()
		s.logger.WithFields(logrus.Fields{
			"status":  status,
			"message": message,
		}).Error("HTTP error: ", err)
	}

	s.writeJSON(w, status, errorResponse)
}
