package auth

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/planora/planora/internal/apperrors"
	"github.com/planora/planora/internal/gateway"
)

// AuthMiddleware validates the session cookie and injects the user ID into context
// If the session is invalid, it clears the cookie and continues without authentication
func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Get session cookie
			token := GetSessionCookie(r)
			if token == "" {
				// No session cookie - continue without authentication
				next.ServeHTTP(w, r)
				return
			}

			// Validate token
			claims, err := ValidateToken(token, secret)
			if err != nil {
				// Invalid token - clear cookie and continue
				log.Debug().Err(err).Msg("Invalid session token")
				ClearSessionCookie(w)
				next.ServeHTTP(w, r)
				return
			}

			// Add user ID to context
			ctx := gateway.WithUserID(r.Context(), claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth is middleware that requires authentication
// Returns 401 if the user is not authenticated
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := gateway.UserID(r.Context())
		if userID == uuid.Nil {
			apperrors.WriteUnauthenticated(w, r, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
