package api

import (
	"github.com/Iron-Ham/prewarm/internal/device"
	"github.com/Iron-Ham/prewarm/internal/prefetch"
)

// Error codes returned in ErrorDetail.Code.
const (
	ErrCodeInvalidInput       = "invalid_input"
	ErrCodeUnknownInteraction = "unknown_interaction"
	ErrCodeSessionActive      = "session_active"
	ErrCodeNoSession          = "session_not_started"
	ErrCodeInternal           = "internal_error"
)

// SessionRequest is the payload for POST /api/v1/session. Device fields
// are optional; when both are empty the server's own signals apply.
type SessionRequest struct {
	Path                string `json:"path" binding:"required"`
	HardwareConcurrency int    `json:"hardware_concurrency,omitempty" binding:"omitempty,min=0,max=1024"`
	EffectiveType       string `json:"effective_type,omitempty" binding:"omitempty,oneof=slow-2g 2g 3g 4g"`
}

// SessionResponse describes a started session.
type SessionResponse struct {
	SessionID string              `json:"session_id"`
	Path      string              `json:"path"`
	Device    device.Capabilities `json:"device"`
}

// NavigationRequest is the payload for POST /api/v1/navigation.
type NavigationRequest struct {
	Path string `json:"path" binding:"required"`
}

// InteractionRequest is the payload for POST /api/v1/interaction.
type InteractionRequest struct {
	Kind string `json:"kind" binding:"required"`
	// Feature, when set, credits that feature's usage preference.
	Feature string `json:"feature,omitempty" binding:"omitempty,max=64"`
}

// InteractionResponse reports the interaction counter after the event.
type InteractionResponse struct {
	Stage string `json:"stage"`
}

// HistoryResponse is the response for GET /api/v1/history.
type HistoryResponse struct {
	Paths []string `json:"paths"`
}

// MetricsResponse is the response for GET /api/v1/metrics.
type MetricsResponse struct {
	SessionID string            `json:"session_id"`
	Metrics   prefetch.Snapshot `json:"metrics"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status    string `json:"status"`
	Uptime    string `json:"uptime"`
	Version   string `json:"version"`
	SessionID string `json:"session_id,omitempty"`
}

// ErrorDetail is a machine-readable error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an ErrorDetail.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}
