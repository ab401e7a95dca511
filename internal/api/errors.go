//
//
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/AnonymousTalent/opsradar/internal/ledger"
	"github.com/AnonymousTalent/opsradar/internal/telemetry"
)

// APIError represents an API-layer error with HTTP status code.
type APIError struct {
	Code       string
	Message    string
	Details    interface{}
	StatusCode int
}

// API error codes for request validation and lookup conditions
var (
	ErrBadRequest = errors.New("BAD_REQUEST")
	ErrNotFound   = errors.New("NOT_FOUND")
)

// ToAPIError converts an error to an API error with HTTP status code.
func ToAPIError(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var srcErr *telemetry.SourceError
	switch {
	case errors.As(err, &srcErr):
		return NewAPIError("UNAVAILABLE", "Telemetry source is temporarily unavailable",
			http.StatusServiceUnavailable, map[string]interface{}{"source": srcErr.Source})
	case errors.Is(err, telemetry.ErrSourceUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return NewAPIError("UNAVAILABLE", "Service is temporarily unavailable", http.StatusServiceUnavailable, nil)
	case errors.Is(err, telemetry.ErrInvalidModules), errors.Is(err, ErrBadRequest):
		return NewAPIError("BAD_REQUEST", "Malformed or missing required parameter", http.StatusBadRequest, nil)
	case errors.Is(err, ledger.ErrNotFound), errors.Is(err, ErrNotFound):
		return NewAPIError("NOT_FOUND", "Resource not found", http.StatusNotFound, nil)
	case errors.Is(err, telemetry.ErrMalformedSample):
		return NewAPIError("INTERNAL", "Telemetry sample was malformed", http.StatusInternalServerError, nil)
	}

	return NewAPIError("INTERNAL", "Internal server error", http.StatusInternalServerError, nil)
}

// NewAPIError creates a new API error.
func NewAPIError(code string, message string, statusCode int, details interface{}) *APIError {
	return &APIError{
		Code:       code,
		Message:    message,
		Details:    details,
		StatusCode: statusCode,
	}
}

// Error implements the error interface for APIError.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
