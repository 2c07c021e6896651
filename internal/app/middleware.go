package app

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/rs/zerolog/log"

	"github.com/planora/planora/internal/apperrors"
	"github.com/planora/planora/internal/auth"
)

// LoggingMiddleware logs HTTP requests with structured fields.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.statusCode).
			Dur("duration", time.Since(start)).
			Str("request_id", apperrors.GetRequestID(r.Context())).
			Str("remote_addr", r.RemoteAddr).
			Msg("HTTP request")
	})
}

// RecoveryMiddleware recovers from panics and returns a 500 error.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().
					Interface("error", err).
					Str("request_id", apperrors.GetRequestID(r.Context())).
					Str("path", r.URL.Path).
					Msg("Panic recovered")

				apperrors.WriteInternalError(w, r, "internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// ContentTypeJSON sets Content-Type to application/json.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// CSRFMiddleware validates CSRF tokens for POST/PUT/PATCH/DELETE requests.
func CSRFMiddleware(isProduction bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
				if err := auth.ValidateCSRF(r); err != nil {
					log.Warn().
						Err(err).
						Str("method", r.Method).
						Str("path", r.URL.Path).
						Str("remote_addr", r.RemoteAddr).
						Msg("CSRF validation failed")

					apperrors.WritePermissionDenied(w, r, "invalid CSRF token")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LoginRateLimitMiddleware limits login attempts per IP address.
func LoginRateLimitMiddleware(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "60")
			apperrors.WriteTooManyRequests(w, r, "too many login attempts, try again later")
		}),
	)
}
