// File: internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/token-recycle/internal/metrics"
	"github.com/smartdevs17/token-recycle/internal/notification"
	"github.com/smartdevs17/token-recycle/internal/recycle"
	"github.com/smartdevs17/token-recycle/internal/storage"
	"github.com/smartdevs17/token-recycle/pkg/utils"
)

const apiVersion = "1.0.0"

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port          int           `json:"port"`
	Host          string        `json:"host"`
	ReadTimeout   time.Duration `json:"read_timeout"`
	WriteTimeout  time.Duration `json:"write_timeout"`
	EnableMetrics bool          `json:"enable_metrics"`
	EnableHealth  bool          `json:"enable_health"`
}

// HTTPServer exposes the recycling ledger over HTTP
type HTTPServer struct {
	config         *ServerConfig
	server         *http.Server
	router         *mux.Router
	storage        storage.Storage
	registry       *recycle.Registry
	ledger         *recycle.Ledger
	notification   *notification.NotificationManager
	metricsManager *metrics.Manager
	logger         *logrus.Entry

	stopOnce sync.Once
	done     chan struct{}
}

// NewHTTPServer creates a new HTTP server. notifier and metricsManager may
// be nil.
func NewHTTPServer(
	config *ServerConfig,
	storage storage.Storage,
	registry *recycle.Registry,
	ledger *recycle.Ledger,
	notifier *notification.NotificationManager,
	metricsManager *metrics.Manager,
) (*HTTPServer, error) {
	if storage == nil || registry == nil || ledger == nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "HTTP server needs storage, registry and ledger", "")
	}

	server := &HTTPServer{
		config:         config,
		storage:        storage,
		registry:       registry,
		ledger:         ledger,
		notification:   notifier,
		metricsManager: metricsManager,
		logger:         utils.ComponentLogger("http_server"),
		done:           make(chan struct{}),
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

// Handler returns the routed handler
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

func (s *HTTPServer) setupRouter() {
	s.router = mux.NewRouter()

	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)
	if s.metricsManager != nil {
		s.router.Use(s.metricsMiddleware)
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()

	if s.config.EnableHealth {
		api.HandleFunc("/health", s.healthHandler).Methods("GET")
		api.HandleFunc("/health/detailed", s.detailedHealthHandler).Methods("GET")
	}

	if s.config.EnableMetrics && s.metricsManager != nil {
		s.router.Handle("/metrics", s.metricsManager.Handler())
		api.HandleFunc("/stats", s.statsHandler).Methods("GET")
	}

	// Station endpoints; /stations/nearby must precede /stations/{id}
	api.HandleFunc("/stations", s.listStationsHandler).Methods("GET")
	api.HandleFunc("/stations", s.createStationHandler).Methods("POST")
	api.HandleFunc("/stations/nearby", s.nearbyStationsHandler).Methods("GET")
	api.HandleFunc("/stations/{id}", s.getStationHandler).Methods("GET")
	api.HandleFunc("/stations/{id}/records", s.stationActivityHandler).Methods("GET")
	api.HandleFunc("/stations/{id}/dispose", s.disposeHandler).Methods("POST")

	// Record endpoints
	api.HandleFunc("/records/{id}", s.getRecordHandler).Methods("GET")

	// User endpoints
	api.HandleFunc("/users/{address}/records", s.userRecordsHandler).Methods("GET")
	api.HandleFunc("/users/{address}/summary", s.userSummaryHandler).Methods("GET")
	api.HandleFunc("/users/{address}/claim-xp", s.claimXPHandler).Methods("POST")

	// Operations
	api.HandleFunc("/journals", s.listJournalsHandler).Methods("GET")
	api.HandleFunc("/journals/reconciliation", s.reconciliationHandler).Methods("GET")
	api.HandleFunc("/journals/{id}", s.getJournalHandler).Methods("GET")
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.WithFields(logrus.Fields{
		"address":         s.server.Addr,
		"metrics_enabled": s.config.EnableMetrics,
	}).Info("Starting HTTP server")

	if s.metricsManager != nil {
		s.updateComponentMetrics()
		go s.systemMetricsUpdater()
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("HTTP server error")
			errChan <- err
		}
	}()

	// surface immediate bind errors
	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

func (s *HTTPServer) systemMetricsUpdater() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.updateComponentMetrics()
		}
	}
}

func (s *HTTPServer) updateComponentMetrics() {
	s.metricsManager.UpdateSystemMetrics()
	prom := s.metricsManager.GetPrometheusMetrics()
	prom.UpdateComponentHealth("storage", s.storage.GetHealth().Healthy)
	if s.notification != nil {
		prom.UpdateComponentHealth("notification", s.notification.GetHealth().Healthy)
	}
}

// Stop gracefully stops the HTTP server
func (s *HTTPServer) Stop() error {
	s.logger.Info("Stopping HTTP server")
	s.stopOnce.Do(func() { close(s.done) })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// Health Handlers

func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "healthy",
		"timestamp":       time.Now().UTC().Format(time.RFC3339Nano),
		"version":         apiVersion,
		"metrics_enabled": s.config.EnableMetrics,
	})
}

func (s *HTTPServer) detailedHealthHandler(w http.ResponseWriter, r *http.Request) {
	storageHealth := s.storage.GetHealth()
	components := map[string]interface{}{
		"storage": storageHealth,
	}
	healthy := storageHealth.Healthy

	if s.notification != nil {
		notifierHealth := s.notification.GetHealth()
		components["notification"] = notifierHealth
		healthy = healthy && notifierHealth.Healthy
	}

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	s.writeJSON(w, code, map[string]interface{}{
		"status":     status,
		"timestamp":  time.Now().UTC(),
		"version":    apiVersion,
		"components": components,
	})
}

func (s *HTTPServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	storageStats, err := s.storage.GetStorageStats()
	if err != nil {
		s.writeAppError(w, err)
		return
	}

	stats := map[string]interface{}{
		"timestamp":      time.Now().UTC(),
		"uptime_seconds": s.metricsManager.Uptime().Seconds(),
		"storage":        storageStats,
	}
	if s.notification != nil {
		stats["notification"] = s.notification.GetStats()
		stats["outbox_poller"] = s.notification.GetPollerStats()
	}

	s.writeJSON(w, http.StatusOK, stats)
}

// Utility Methods

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

func (s *HTTPServer) writeBinary(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.WithError(err).Error("Failed to write binary response")
	}
}

// writeError writes an error response
func (s *HTTPServer) writeError(w http.ResponseWriter, status int, code, message, details string) {
	errorResponse := map[string]interface{}{
		"error":     message,
		"code":      code,
		"status":    status,
		"timestamp": time.Now().UTC(),
	}
	if details != "" {
		errorResponse["details"] = details
	}

	entry := s.logger.WithFields(logrus.Fields{
		"status":  status,
		"code":    code,
		"message": message,
	})
	if status >= http.StatusInternalServerError {
		entry.Error("HTTP error")
	} else {
		entry.Debug("HTTP error")
	}

	s.writeJSON(w, status, errorResponse)
}

// writeAppError maps an error onto its HTTP status
func (s *HTTPServer) writeAppError(w http.ResponseWriter, err error) {
	var appErr *utils.AppError
	if !errors.As(err, &appErr) {
		s.writeError(w, http.StatusInternalServerError, utils.ErrCodeInternal, "Internal error", err.Error())
		return
	}
	s.writeError(w, StatusForCode(appErr.Code), appErr.Code, appErr.Message, appErr.Details)
}

// StatusForCode returns the HTTP status for an error code
func StatusForCode(code string) int {
	switch {
	case utils.IsValidationCode(code):
		return http.StatusBadRequest
	case code == utils.ErrCodeNotFound:
		return http.StatusNotFound
	case code == utils.ErrCodeAlreadyExists, code == utils.ErrCodeConflict:
		return http.StatusConflict
	case code == utils.ErrCodeBurnFailed, code == utils.ErrCodeTransferFailed:
		return http.StatusUnprocessableEntity
	case code == utils.ErrCodeExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
