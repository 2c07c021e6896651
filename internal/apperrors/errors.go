package apperrors

import (
	"encoding/json"
	"net/http"
)

// Failure classification codes returned to callers. Authorization failures
// are terminal for the request and surfaced verbatim; internal failures are
// logged with full context server-side and returned opaque.
const (
	CodeUnauthenticated  = "unauthenticated"
	CodePermissionDenied = "permission_denied"
	CodeInvalidArgument  = "invalid_argument"
	CodeNotFound         = "not_found"
	CodeConflict         = "conflict"
	CodeInternal         = "internal"
)

// ErrorResponse represents the error envelope.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

// SuccessResponse represents the success envelope.
type SuccessResponse struct {
	RequestID string      `json:"request_id"`
	Data      interface{} `json:"data"`
}

// WriteError writes an error response in the standard envelope format
func WriteError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: ErrorDetail{
			Code:      code,
			Message:   message,
			RequestID: GetRequestID(r.Context()),
		},
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		return
	}
}

// WriteSuccess writes a success response in the standard envelope format
func WriteSuccess(w http.ResponseWriter, r *http.Request, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := SuccessResponse{
		RequestID: GetRequestID(r.Context()),
		Data:      data,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		return
	}
}

// WriteServiceUnavailable is a helper for 503 responses
func WriteServiceUnavailable(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusServiceUnavailable, "service_unavailable", message)
}

// WriteInternalError is a helper for 500 responses. The message must stay
// opaque: storage-layer detail never leaks to the caller.
func WriteInternalError(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusInternalServerError, CodeInternal, message)
}

// WriteInvalidArgument is a helper for 400 responses
func WriteInvalidArgument(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusBadRequest, CodeInvalidArgument, message)
}

// WriteUnauthenticated is a helper for 401 responses
func WriteUnauthenticated(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusUnauthorized, CodeUnauthenticated, message)
}

// WritePermissionDenied is a helper for 403 responses
func WritePermissionDenied(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusForbidden, CodePermissionDenied, message)
}

// WriteNotFound is a helper for 404 responses
func WriteNotFound(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusNotFound, CodeNotFound, message)
}

// WriteConflict is a helper for 409 responses
func WriteConflict(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusConflict, CodeConflict, message)
}

// WriteTooManyRequests is a helper for 429 responses
func WriteTooManyRequests(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusTooManyRequests, "too_many_requests", message)
}
