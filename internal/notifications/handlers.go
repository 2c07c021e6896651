package notifications

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/planora/planora/internal/apperrors"
	"github.com/planora/planora/internal/gateway"
)

// HandleList handles GET /api/v1/notifications. Callers only ever see their
// own notifications.
func HandleList(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := gateway.UserID(r.Context())
		if userID == uuid.Nil {
			apperrors.WriteUnauthenticated(w, r, "authentication required")
			return
		}

		list, err := svc.ListForUser(r.Context(), userID)
		if err != nil {
			log.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to list notifications")
			apperrors.WriteInternalError(w, r, "failed to list notifications")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, list)
	}
}

// HandleMarkRead handles POST /api/v1/notifications/{notification_id}/read.
// Marking an already-read notification again is a no-op, not an error.
func HandleMarkRead(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := gateway.UserID(r.Context())
		if userID == uuid.Nil {
			apperrors.WriteUnauthenticated(w, r, "authentication required")
			return
		}

		id, err := uuid.Parse(r.PathValue("notification_id"))
		if err != nil {
			apperrors.WriteInvalidArgument(w, r, "invalid notification ID")
			return
		}

		if err := svc.MarkRead(r.Context(), userID, id); err != nil {
			if errors.Is(err, ErrNotificationNotFound) {
				apperrors.WriteNotFound(w, r, "notification not found")
				return
			}
			log.Error().Err(err).Str("notification_id", id.String()).Msg("Failed to mark notification read")
			apperrors.WriteInternalError(w, r, "failed to mark notification read")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]bool{"read": true})
	}
}
