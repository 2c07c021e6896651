package apperrors

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const requestIDContextKey contextKey = "request_id"

// RequestIDHeader is the response header carrying the request ID.
const RequestIDHeader = "X-Request-ID"

// RequestIDMiddleware assigns a unique ID to each request and stores it in
// the context so every log line and response envelope can reference it.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		w.Header().Set(RequestIDHeader, requestID)
		ctx := context.WithValue(r.Context(), requestIDContextKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request ID from the context.
// Returns an empty string if no request ID is set.
func GetRequestID(ctx context.Context) string {
	requestID, ok := ctx.Value(requestIDContextKey).(string)
	if !ok {
		return ""
	}
	return requestID
}
