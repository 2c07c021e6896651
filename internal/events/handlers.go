package events

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
	"github.com/planora/planora/internal/notifications"
	"github.com/planora/planora/internal/stakeholders"
)

// HandleCreate handles POST /api/v1/events
func HandleCreate(svc *Service, gw *gateway.Gateway, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		callerID := gateway.UserID(ctx)

		var params CreateParams
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			apperrors.WriteInvalidArgument(w, r, "invalid JSON body")
			return
		}

		var created *Event
		err := gw.Perform(ctx, callerID, gateway.OpCreateEvent, uuid.Nil, func(ctx context.Context, actor gateway.Principal) error {
			var err error
			created, err = svc.Create(ctx, actor.SubjectID(), params)
			return err
		})
		if err != nil {
			if errors.Is(err, ErrTitleRequired) {
				apperrors.WriteInvalidArgument(w, r, err.Error())
				return
			}
			gateway.WriteDenied(w, r, err)
			return
		}

		if err := auditor.LogEvent(ctx, "event.created", callerID, created.ID); err != nil {
			log.Error().Err(err).Msg("Failed to write audit entry")
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, created)
	}
}

// HandleList handles GET /api/v1/events
func HandleList(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.List(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("Failed to list events")
			apperrors.WriteInternalError(w, r, "failed to list events")
			return
		}
		apperrors.WriteSuccess(w, r, http.StatusOK, list)
	}
}

// HandleGet handles GET /api/v1/events/{event_id}
func HandleGet(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.PathValue("event_id"))
		if err != nil {
			apperrors.WriteInvalidArgument(w, r, "invalid event ID")
			return
		}

		event, err := svc.GetByID(r.Context(), id)
		if err != nil {
			if errors.Is(err, ErrEventNotFound) {
				apperrors.WriteNotFound(w, r, "event not found")
				return
			}
			log.Error().Err(err).Str("event_id", id.String()).Msg("Failed to get event")
			apperrors.WriteInternalError(w, r, "failed to get event")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, event)
	}
}

// HandleUpdate handles PUT /api/v1/events/{event_id}
func HandleUpdate(svc *Service, gw *gateway.Gateway, auditor *audit.Writer, notifier *notifications.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		callerID := gateway.UserID(ctx)

		id, err := uuid.Parse(r.PathValue("event_id"))
		if err != nil {
			apperrors.WriteInvalidArgument(w, r, "invalid event ID")
			return
		}

		var params UpdateParams
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			apperrors.WriteInvalidArgument(w, r, "invalid JSON body")
			return
		}

		var updated *Event
		err = gw.Perform(ctx, callerID, gateway.OpUpdateEvent, id, func(ctx context.Context, actor gateway.Principal) error {
			var err error
			updated, err = svc.Update(ctx, id, params)
			return err
		})
		if err != nil {
			switch {
			case errors.Is(err, ErrEventNotFound):
				apperrors.WriteNotFound(w, r, "event not found")
			case errors.Is(err, ErrTitleRequired):
				apperrors.WriteInvalidArgument(w, r, err.Error())
			default:
				gateway.WriteDenied(w, r, err)
			}
			return
		}

		if err := auditor.LogEvent(ctx, "event.updated", callerID, id); err != nil {
			log.Error().Err(err).Msg("Failed to write audit entry")
		}

		notifier.FanOutToEvent(ctx, id, notifications.KindEventUpdated, "Event updated", updated.Title)

		apperrors.WriteSuccess(w, r, http.StatusOK, updated)
	}
}

// HandleDelete handles DELETE /api/v1/events/{event_id}
func HandleDelete(svc *Service, gw *gateway.Gateway, auditor *audit.Writer, notifier *notifications.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		callerID := gateway.UserID(ctx)

		id, err := uuid.Parse(r.PathValue("event_id"))
		if err != nil {
			apperrors.WriteInvalidArgument(w, r, "invalid event ID")
			return
		}

		var cancellation *Cancellation
		err = gw.Perform(ctx, callerID, gateway.OpDeleteEvent, id, func(ctx context.Context, actor gateway.Principal) error {
			var err error
			cancellation, err = svc.Delete(ctx, id)
			return err
		})
		if err != nil {
			if errors.Is(err, ErrEventNotFound) {
				apperrors.WriteNotFound(w, r, "event not found")
				return
			}
			gateway.WriteDenied(w, r, err)
			return
		}

		if err := auditor.LogEvent(ctx, "event.deleted", callerID, id); err != nil {
			log.Error().Err(err).Msg("Failed to write audit entry")
		}

		// Cancellation notices go out only after the delete committed. The
		// event row is gone, so these carry no event reference.
		for _, userID := range cancellation.Recipients {
			notifier.NotifyUser(ctx, userID, uuid.NullUUID{}, notifications.KindEventCancelled, "Event cancelled", cancellation.Title)
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]bool{"deleted": true})
	}
}

// AssignRequest represents the payload for adding a stakeholder to an event
type AssignRequest struct {
	StakeholderID uuid.UUID `json:"stakeholder_id"`
	Role          string    `json:"role"`
	Status        string    `json:"status"`
}

// HandleAddStakeholder handles POST /api/v1/events/{event_id}/stakeholders
func HandleAddStakeholder(svc *Service, gw *gateway.Gateway, auditor *audit.Writer, notifier *notifications.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		callerID := gateway.UserID(ctx)

		eventID, err := uuid.Parse(r.PathValue("event_id"))
		if err != nil {
			apperrors.WriteInvalidArgument(w, r, "invalid event ID")
			return
		}

		var req AssignRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteInvalidArgument(w, r, "invalid JSON body")
			return
		}
		if req.StakeholderID == uuid.Nil {
			apperrors.WriteInvalidArgument(w, r, "stakeholder_id is required")
			return
		}

		var record *EventStakeholder
		err = gw.Perform(ctx, callerID, gateway.OpAddStakeholderToEvent, eventID, func(ctx context.Context, actor gateway.Principal) error {
			var err error
			record, err = svc.AddStakeholder(ctx, eventID, req.StakeholderID, req.Role, req.Status)
			return err
		})
		if err != nil {
			switch {
			case errors.Is(err, ErrEventNotFound):
				apperrors.WriteNotFound(w, r, "event not found")
			case errors.Is(err, stakeholders.ErrStakeholderNotFound):
				apperrors.WriteNotFound(w, r, "stakeholder not found")
			default:
				gateway.WriteDenied(w, r, err)
			}
			return
		}

		if err := auditor.LogEventStakeholder(ctx, "event.stakeholder_added", callerID, eventID, req.StakeholderID); err != nil {
			log.Error().Err(err).Msg("Failed to write audit entry")
		}

		notifier.FanOutToEvent(ctx, eventID, notifications.KindStakeholderAdded, "Stakeholder added", "")

		apperrors.WriteSuccess(w, r, http.StatusCreated, record)
	}
}

// HandleRemoveStakeholder handles DELETE /api/v1/events/{event_id}/stakeholders/{stakeholder_id}
func HandleRemoveStakeholder(svc *Service, gw *gateway.Gateway, auditor *audit.Writer, notifier *notifications.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		callerID := gateway.UserID(ctx)

		eventID, err := uuid.Parse(r.PathValue("event_id"))
		if err != nil {
			apperrors.WriteInvalidArgument(w, r, "invalid event ID")
			return
		}
		stakeholderID, err := uuid.Parse(r.PathValue("stakeholder_id"))
		if err != nil {
			apperrors.WriteInvalidArgument(w, r, "invalid stakeholder ID")
			return
		}

		err = gw.Perform(ctx, callerID, gateway.OpRemoveStakeholderFromEvent, eventID, func(ctx context.Context, actor gateway.Principal) error {
			return svc.RemoveStakeholder(ctx, eventID, stakeholderID)
		})
		if err != nil {
			switch {
			case errors.Is(err, ErrEventNotFound):
				apperrors.WriteNotFound(w, r, "event not found")
			case errors.Is(err, ErrNotAssigned):
				apperrors.WriteNotFound(w, r, "stakeholder not assigned to event")
			default:
				gateway.WriteDenied(w, r, err)
			}
			return
		}

		if err := auditor.LogEventStakeholder(ctx, "event.stakeholder_removed", callerID, eventID, stakeholderID); err != nil {
			log.Error().Err(err).Msg("Failed to write audit entry")
		}

		notifier.FanOutToEvent(ctx, eventID, notifications.KindStakeholderRemoved, "Stakeholder removed", "")

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]bool{"removed": true})
	}
}

// HandleListStakeholders handles GET /api/v1/events/{event_id}/stakeholders
func HandleListStakeholders(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID, err := uuid.Parse(r.PathValue("event_id"))
		if err != nil {
			apperrors.WriteInvalidArgument(w, r, "invalid event ID")
			return
		}

		records, err := svc.ListStakeholderRecords(r.Context(), eventID)
		if err != nil {
			log.Error().Err(err).Str("event_id", eventID.String()).Msg("Failed to list event stakeholders")
			apperrors.WriteInternalError(w, r, "failed to list event stakeholders")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, records)
	}
}
