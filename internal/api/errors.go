package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/controlnet-core/internal/control"
	"github.com/nerrad567/controlnet-core/internal/network"
	"github.com/nerrad567/controlnet-core/internal/node"
	"github.com/nerrad567/controlnet-core/internal/safety"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeInternal         = "internal_error"
	ErrCodeValidation       = "validation_error"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeCapacityExceeded = "capacity_exceeded"
	ErrCodeEmergencyActive  = "emergency_active"
	ErrCodeUnavailable      = "unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeRuntimeError maps a runtime error to its HTTP status. The message is
// the error text so the caller sees the reason.
func writeRuntimeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, network.ErrCapacityExceeded):
		return http.StatusServiceUnavailable, ErrCodeCapacityExceeded
	case errors.Is(err, network.ErrRateLimited):
		return http.StatusTooManyRequests, ErrCodeRateLimited
	case errors.Is(err, network.ErrUnknownNode), errors.Is(err, network.ErrNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, network.ErrEmergencyActive):
		return http.StatusConflict, ErrCodeEmergencyActive
	case errors.Is(err, network.ErrNotInEmergencyMode),
		errors.Is(err, network.ErrAlreadyRegistered),
		errors.Is(err, safety.ErrInterlockDisabled):
		return http.StatusConflict, ErrCodeConflict
	case errors.Is(err, network.ErrUnknownType),
		errors.Is(err, network.ErrInvalidSignal),
		errors.Is(err, node.ErrInvalidID),
		errors.Is(err, control.ErrInvalidLoop),
		errors.Is(err, control.ErrUnknownProfile),
		errors.Is(err, control.ErrProfileMismatch),
		errors.Is(err, safety.ErrInvalidDefinition):
		return http.StatusBadRequest, ErrCodeValidation
	case errors.Is(err, network.ErrClosed):
		return http.StatusServiceUnavailable, ErrCodeUnavailable
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}
