package stakeholders

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/planora/planora/internal/apperrors"
	"github.com/planora/planora/internal/audit"
	"github.com/planora/planora/internal/gateway"
)

// HandleCreate handles POST /api/v1/stakeholders
func HandleCreate(svc *Service, gw *gateway.Gateway, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		callerID := gateway.UserID(ctx)

		var params CreateParams
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			apperrors.WriteInvalidArgument(w, r, "invalid JSON body")
			return
		}

		var created *Stakeholder
		err := gw.Perform(ctx, callerID, gateway.OpCreateStakeholder, uuid.Nil, func(ctx context.Context, actor gateway.Principal) error {
			var err error
			created, err = svc.Create(ctx, actor.SubjectID(), params)
			return err
		})
		if err != nil {
			switch {
			case errors.Is(err, ErrNameRequired), errors.Is(err, ErrInvalidEmail):
				apperrors.WriteInvalidArgument(w, r, err.Error())
			default:
				gateway.WriteDenied(w, r, err)
			}
			return
		}

		if err := auditor.LogStakeholder(ctx, "stakeholder.created", callerID, created.ID); err != nil {
			log.Error().Err(err).Msg("Failed to write audit entry")
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, created)
	}
}

// HandleList handles GET /api/v1/stakeholders
func HandleList(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.List(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("Failed to list stakeholders")
			apperrors.WriteInternalError(w, r, "failed to list stakeholders")
			return
		}
		apperrors.WriteSuccess(w, r, http.StatusOK, list)
	}
}

// HandleGet handles GET /api/v1/stakeholders/{stakeholder_id}
func HandleGet(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.PathValue("stakeholder_id"))
		if err != nil {
			apperrors.WriteInvalidArgument(w, r, "invalid stakeholder ID")
			return
		}

		st, err := svc.GetByID(r.Context(), id)
		if err != nil {
			if errors.Is(err, ErrStakeholderNotFound) {
				apperrors.WriteNotFound(w, r, "stakeholder not found")
				return
			}
			log.Error().Err(err).Str("stakeholder_id", id.String()).Msg("Failed to get stakeholder")
			apperrors.WriteInternalError(w, r, "failed to get stakeholder")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, st)
	}
}

// HandleUpdate handles PUT /api/v1/stakeholders/{stakeholder_id}
func HandleUpdate(svc *Service, gw *gateway.Gateway, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		callerID := gateway.UserID(ctx)

		id, err := uuid.Parse(r.PathValue("stakeholder_id"))
		if err != nil {
			apperrors.WriteInvalidArgument(w, r, "invalid stakeholder ID")
			return
		}

		var params UpdateParams
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			apperrors.WriteInvalidArgument(w, r, "invalid JSON body")
			return
		}

		var updated *Stakeholder
		err = gw.Perform(ctx, callerID, gateway.OpUpdateStakeholder, id, func(ctx context.Context, actor gateway.Principal) error {
			var err error
			updated, err = svc.Update(ctx, id, params)
			return err
		})
		if err != nil {
			switch {
			case errors.Is(err, ErrStakeholderNotFound):
				apperrors.WriteNotFound(w, r, "stakeholder not found")
			case errors.Is(err, ErrNameRequired), errors.Is(err, ErrInvalidEmail):
				apperrors.WriteInvalidArgument(w, r, err.Error())
			default:
				gateway.WriteDenied(w, r, err)
			}
			return
		}

		if err := auditor.LogStakeholder(ctx, "stakeholder.updated", callerID, id); err != nil {
			log.Error().Err(err).Msg("Failed to write audit entry")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, updated)
	}
}

// HandleDelete handles DELETE /api/v1/stakeholders/{stakeholder_id}
func HandleDelete(svc *Service, gw *gateway.Gateway, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		callerID := gateway.UserID(ctx)

		id, err := uuid.Parse(r.PathValue("stakeholder_id"))
		if err != nil {
			apperrors.WriteInvalidArgument(w, r, "invalid stakeholder ID")
			return
		}

		err = gw.Perform(ctx, callerID, gateway.OpDeleteStakeholder, id, func(ctx context.Context, actor gateway.Principal) error {
			return svc.Delete(ctx, id)
		})
		if err != nil {
			if errors.Is(err, ErrStakeholderNotFound) {
				apperrors.WriteNotFound(w, r, "stakeholder not found")
				return
			}
			gateway.WriteDenied(w, r, err)
			return
		}

		if err := auditor.LogStakeholder(ctx, "stakeholder.deleted", callerID, id); err != nil {
			log.Error().Err(err).Msg("Failed to write audit entry")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]bool{"deleted": true})
	}
}

