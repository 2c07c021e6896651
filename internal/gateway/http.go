package gateway

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/planora/planora/internal/apperrors"
)

// WriteDenied maps a Perform/Authorize error onto the HTTP error envelope.
// Handlers call this for any error that came out of the gateway itself;
// errors from the wrapped operation are classified by the handler.
func WriteDenied(w http.ResponseWriter, r *http.Request, err error) {
	var denied *DeniedError
	switch {
	case errors.Is(err, ErrUnauthenticated):
		apperrors.WriteUnauthenticated(w, r, "authentication required")
	case errors.As(err, &denied):
		apperrors.WritePermissionDenied(w, r, denied.Error())
	default:
		log.Error().Err(err).Msg("Gateway check failed")
		apperrors.WriteInternalError(w, r, "authorization check failed")
	}
}
