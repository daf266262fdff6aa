// Package errors provides the JSON error envelope shared by the
// reconciliation server and the client that parses its responses.
package errors

import (
	"encoding/json"
	"net/http"
)

// Standard error codes returned by the HTTP API.
const (
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeEmptyBatch         = "EMPTY_BATCH"
	CodeValidationFailure  = "VALIDATION_FAILURE"
	CodeSessionClosed      = "SESSION_CLOSED"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// HTTPError is the error payload inside HTTPErrorResponse.
type HTTPError struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	RequestID string                 `json:"request_id,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// HTTPErrorResponse is the envelope every non-2xx API response carries.
type HTTPErrorResponse struct {
	Error HTTPError `json:"error"`
}

// WriteError writes a JSON error envelope with the given status code.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteErrorDetails(w, status, code, message, nil)
}

// WriteErrorDetails writes a JSON error envelope including structured
// details.
func WriteErrorDetails(w http.ResponseWriter, status int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(HTTPErrorResponse{
		Error: HTTPError{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// RespondWithError maps an arbitrary handler error to a JSON envelope.
// Unrecognized errors become INTERNAL_ERROR without leaking internals.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	_ = r
	WriteError(w, http.StatusInternalServerError, CodeInternalError, err.Error())
}

// NotFoundHandler is the router fallback for unknown paths.
func NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusNotFound, CodeNotFound, "resource not found: "+r.URL.Path)
}

// MethodNotAllowedHandler is the router fallback for wrong methods.
func MethodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, r.Method+" is not allowed on "+r.URL.Path)
}
