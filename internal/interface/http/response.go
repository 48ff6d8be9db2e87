package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE ENVELOPE
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse represents a standard JSON response.
type JSONResponse struct {
	Success   bool          `json:"success"`
	Data      interface{}   `json:"data,omitempty"`
	Error     *APIError     `json:"error,omitempty"`
	Meta      *ResponseMeta `json:"meta,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ResponseMeta contains response metadata.
type ResponseMeta struct {
	Timestamp  time.Time `json:"timestamp"`
	Version    string    `json:"version,omitempty"`
	TotalCount int       `json:"total_count,omitempty"`
}

// Error codes of the API envelope.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeNotFound          = "NOT_FOUND"
	CodeVersionConflict   = "VERSION_CONFLICT"
	CodeAlreadyExists     = "ALREADY_EXISTS"
	CodeInvalidOperation  = "INVALID_OPERATION"
	CodeInsufficientFunds = "INSUFFICIENT_FUNDS"
	CodeRateLimited       = "RATE_LIMITED"
	CodeUnavailable       = "SERVICE_UNAVAILABLE"
	CodeInternal          = "INTERNAL_ERROR"
)

// ══════════════════════════════════════════════════════════════════════════════
// WRITERS
// ══════════════════════════════════════════════════════════════════════════════

func writeEnvelope(w http.ResponseWriter, r *http.Request, status int, resp JSONResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	resp.Success = status >= 200 && status < 300
	if resp.Meta == nil {
		resp.Meta = &ResponseMeta{}
	}
	resp.Meta.Timestamp = time.Now().UTC()
	resp.Meta.Version = "v1"
	if r != nil {
		resp.RequestID = getRequestID(r.Context())
	}

	_ = json.NewEncoder(w).Encode(resp)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	writeEnvelope(w, r, status, JSONResponse{Data: data})
}

// writeJSONWithMeta writes a JSON response with custom metadata.
func writeJSONWithMeta(w http.ResponseWriter, r *http.Request, status int, data interface{}, meta *ResponseMeta) {
	writeEnvelope(w, r, status, JSONResponse{Data: data, Meta: meta})
}

// writeJSONError writes an error JSON response.
func writeJSONError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeEnvelope(w, r, status, JSONResponse{Error: &APIError{Code: code, Message: message}})
}

// writeJSONErrorWithData writes an error response that still carries data,
// e.g. the server state of a rejected push.
func writeJSONErrorWithData(w http.ResponseWriter, r *http.Request, status int, code, message string, data interface{}) {
	writeEnvelope(w, r, status, JSONResponse{Data: data, Error: &APIError{Code: code, Message: message}})
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// statusOf maps a domain error to an HTTP status and envelope code.
func statusOf(err error) (int, string) {
	switch {
	case shared.IsNotFound(err):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, shared.ErrUnauthorized):
		return http.StatusUnauthorized, CodeUnauthorized
	case errors.Is(err, shared.ErrForbidden):
		return http.StatusForbidden, CodeForbidden
	case shared.IsConflict(err):
		return http.StatusConflict, CodeVersionConflict
	case shared.IsAlreadyExists(err):
		return http.StatusConflict, CodeAlreadyExists
	case shared.IsInsufficientFunds(err):
		return http.StatusUnprocessableEntity, CodeInsufficientFunds
	case shared.IsInvalidOperation(err), shared.IsAlreadyUnlocked(err):
		return http.StatusUnprocessableEntity, CodeInvalidOperation
	case shared.IsCorruptState(err):
		return http.StatusBadRequest, CodeValidation
	case shared.IsValidation(err):
		return http.StatusBadRequest, CodeValidation
	case errors.Is(err, shared.ErrRateLimited):
		return http.StatusTooManyRequests, CodeRateLimited
	case shared.IsExternalService(err):
		return http.StatusServiceUnavailable, CodeUnavailable
	}
	return http.StatusInternalServerError, CodeInternal
}

// writeError writes err as an envelope. Server-side failures are logged and
// their text is not exposed.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusOf(err)

	message := err.Error()
	var de *shared.DomainError
	if errors.As(err, &de) && de.Message != "" {
		message = de.Message
	}

	if status >= 500 {
		requestLogger(r).Error("request failed",
			logger.String("path", r.URL.Path),
			logger.String("code", code),
			logger.Err(err))
		if status == http.StatusInternalServerError {
			message = "An unexpected error occurred"
		}
	}

	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "60")
	}
	writeJSONError(w, r, status, code, message)
}

// decodeJSON reads a JSON body into dst. Unknown fields are ignored.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return shared.NewDomainError("http", "Decode", shared.ErrInvalidInput, "request body is required")
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return shared.WrapError("http", "Decode", shared.ErrInvalidFormat, "malformed JSON body", err)
	}
	return nil
}

// unavailable answers routes whose handler is not wired.
func unavailable(w http.ResponseWriter, r *http.Request) {
	writeJSONError(w, r, http.StatusServiceUnavailable, CodeUnavailable, "endpoint is not configured")
}
