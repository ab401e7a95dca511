//
//
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// Response represents the unified envelope format.
type Response struct {
	Result        string      `json:"result"`
	Data          interface{} `json:"data,omitempty"`
	Code          string      `json:"code,omitempty"`
	Message       string      `json:"message,omitempty"`
	Details       interface{} `json:"details,omitempty"`
	CorrelationID string      `json:"correlationId"`
}

// SuccessResponse creates a success response.
func SuccessResponse(data interface{}, correlationID string) *Response {
	return &Response{
		Result:        "ok",
		Data:          data,
		CorrelationID: correlationID,
	}
}

// ErrorResponse creates an error response.
func ErrorResponse(code, message string, details interface{}, correlationID string) *Response {
	return &Response{
		Result:        "error",
		Code:          code,
		Message:       message,
		Details:       details,
		CorrelationID: correlationID,
	}
}

// WriteSuccess writes an enveloped 200 response.
func WriteSuccess(w http.ResponseWriter, r *http.Request, data interface{}) {
	writeJSON(w, http.StatusOK, SuccessResponse(data, correlationID(r)))
}

// WriteError writes an enveloped error response.
func WriteError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string, details interface{}) {
	writeJSON(w, statusCode, ErrorResponse(code, message, details, correlationID(r)))
}

// WriteAPIError maps err through ToAPIError and writes the result.
func WriteAPIError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := ToAPIError(err)
	WriteError(w, r, apiErr.StatusCode, apiErr.Code, apiErr.Message, apiErr.Details)
}

// writeJSON writes v as the response body. Encoding happens before the
// header is sent so a failure can still produce a 500.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	_, _ = w.Write(append(body, '\n'))
}

// correlationID reuses the router request id when present.
func correlationID(r *http.Request) string {
	if r != nil {
		if id := middleware.GetReqID(r.Context()); id != "" {
			return id
		}
	}
	return uuid.NewString()
}
