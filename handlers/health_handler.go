package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/upb/llm-blackbox/utils"
	"go.uber.org/zap"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// StatusResponse describes the running service
type StatusResponse struct {
	Service     string   `json:"service"`
	Version     string   `json:"version"`
	Environment string   `json:"environment"`
	Provider    string   `json:"provider"`
	Model       string   `json:"model"`
	Providers   []string `json:"providers"`
	Sinks       []string `json:"sinks"`
}

// ProviderChecker is the part of a model provider health checks need
type ProviderChecker interface {
	Name() string
	IsAvailable(ctx context.Context) bool
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	provider       ProviderChecker
	telemetryReady bool
	status         StatusResponse
	logger         *zap.Logger
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(provider ProviderChecker, telemetryReady bool, status StatusResponse, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		provider:       provider,
		telemetryReady: telemetryReady,
		status:         status,
		logger:         logger,
	}
}

// HandleHealth handles GET /healthz
// Basic health check - always returns 200 if service is running
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	_ = utils.WriteOK(w, response)
}

// HandleReadiness handles GET /readyz
// Ready once a provider is registered and telemetry is initialized
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	allHealthy := true

	if h.provider == nil {
		checks["provider"] = "not_registered"
		allHealthy = false
	} else {
		checks["provider"] = h.provider.Name()
	}

	if h.telemetryReady {
		checks["telemetry"] = "initialized"
	} else {
		checks["telemetry"] = "not_initialized"
		allHealthy = false
	}

	status := "ready"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	if err := utils.WriteJSON(w, httpStatus, response); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

// HandleStatus handles GET /api/v1/status
func (h *HealthHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if err := utils.WriteOK(w, h.status); err != nil {
		h.logger.Error("failed to write status response", zap.Error(err))
	}
}

// HandleProviderCheck handles GET /api/v1/status/provider. It probes the
// upstream model service and reports 503 when it is unreachable.
func (h *HealthHandler) HandleProviderCheck(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		_ = utils.WriteServiceUnavailable(w, "no model provider registered", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if !h.provider.IsAvailable(ctx) {
		h.logger.Warn("model provider unreachable", zap.String("provider", h.provider.Name()))
		_ = utils.WriteServiceUnavailable(w, "model service unreachable", map[string]interface{}{
			"provider": h.provider.Name(),
		})
		return
	}

	_ = utils.WriteOK(w, HealthResponse{
		Status:    "available",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    map[string]string{"provider": h.provider.Name()},
	})
}
