package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const (
	EventUserSignup        = "user.signup"
	EventLoginFailed       = "auth.login_failed"
	EventUserRoleUpdated   = "user.role_updated"
	EventUserActiveUpdated = "user.active_updated"
	EventUserDeleted       = "user.deleted"

	EventStakeholderCreated = "stakeholder.created"
	EventStakeholderUpdated = "stakeholder.updated"
	EventStakeholderDeleted = "stakeholder.deleted"

	EventInviteCreated  = "invite.created"
	EventInviteRedeemed = "invite.redeemed"

	EventEventCreated            = "event.created"
	EventEventUpdated            = "event.updated"
	EventEventDeleted            = "event.deleted"
	EventEventStakeholderAdded   = "event.stakeholder_added"
	EventEventStakeholderRemoved = "event.stakeholder_removed"
)

// Entry represents an audit log row.
type Entry struct {
	ID          uuid.UUID              `db:"id"`
	ActorUserID uuid.NullUUID          `db:"actor_user_id"`
	TargetID    uuid.NullUUID          `db:"target_id"`
	Action      string                 `db:"action"`
	Meta        map[string]interface{} `db:"meta"`
	CreatedAt   time.Time              `db:"created_at"`
}

// Writer provides methods to write audit log entries.
type Writer struct {
	pool *pgxpool.Pool
}

func NewWriter(pool *pgxpool.Pool) *Writer {
	return &Writer{pool: pool}
}

// LogParams contains parameters for logging an audit event.
type LogParams struct {
	ActorUserID *uuid.UUID
	TargetID    *uuid.UUID
	Action      string
	Meta        map[string]interface{}
}

func (w *Writer) Log(ctx context.Context, params LogParams) error {
	metaJSON := []byte("{}")
	if params.Meta != nil {
		b, err := json.Marshal(params.Meta)
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal audit meta")
			return err
		}
		metaJSON = b
	}

	query := `
		INSERT INTO audit_log (actor_user_id, target_id, action, meta)
		VALUES ($1, $2, $3, $4)
	`

	_, err := w.pool.Exec(ctx, query, toNullUUID(params.ActorUserID), toNullUUID(params.TargetID), params.Action, metaJSON)
	if err != nil {
		log.Error().Err(err).Str("action", params.Action).Msg("Failed to write audit log")
		return err
	}

	log.Info().
		Str("action", params.Action).
		Interface("actor_user_id", params.ActorUserID).
		Interface("target_id", params.TargetID).
		Msg("Audit event logged")

	return nil
}

func toNullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func (w *Writer) LogUserSignup(ctx context.Context, userID uuid.UUID, email string) error {
	return w.Log(ctx, LogParams{
		ActorUserID: &userID,
		Action:      EventUserSignup,
		Meta: map[string]interface{}{
			"email": email,
		},
	})
}

func (w *Writer) LogLoginFailed(ctx context.Context, email, ip string) error {
	return w.Log(ctx, LogParams{
		Action: EventLoginFailed,
		Meta: map[string]interface{}{
			"email": email,
			"ip":    ip,
		},
	})
}

func (w *Writer) LogUserRoleUpdated(ctx context.Context, actorID, targetID uuid.UUID, previousRole, newRole string) error {
	return w.Log(ctx, LogParams{
		ActorUserID: &actorID,
		TargetID:    &targetID,
		Action:      EventUserRoleUpdated,
		Meta: map[string]interface{}{
			"previous_role": previousRole,
			"new_role":      newRole,
		},
	})
}

func (w *Writer) LogUserActiveUpdated(ctx context.Context, actorID, targetID uuid.UUID, isActive bool) error {
	return w.Log(ctx, LogParams{
		ActorUserID: &actorID,
		TargetID:    &targetID,
		Action:      EventUserActiveUpdated,
		Meta: map[string]interface{}{
			"is_active": isActive,
		},
	})
}

func (w *Writer) LogUserDeleted(ctx context.Context, actorID, targetID uuid.UUID) error {
	return w.Log(ctx, LogParams{
		ActorUserID: &actorID,
		TargetID:    &targetID,
		Action:      EventUserDeleted,
		Meta:        map[string]interface{}{},
	})
}

func (w *Writer) LogStakeholder(ctx context.Context, action string, actorID, stakeholderID uuid.UUID) error {
	return w.Log(ctx, LogParams{
		ActorUserID: &actorID,
		TargetID:    &stakeholderID,
		Action:      action,
		Meta:        map[string]interface{}{},
	})
}

func (w *Writer) LogInviteCreated(ctx context.Context, actorID, stakeholderID uuid.UUID, email, role string) error {
	return w.Log(ctx, LogParams{
		ActorUserID: &actorID,
		TargetID:    &stakeholderID,
		Action:      EventInviteCreated,
		Meta: map[string]interface{}{
			"email": email,
			"role":  role,
		},
	})
}

func (w *Writer) LogInviteRedeemed(ctx context.Context, userID, stakeholderID uuid.UUID, role string, withToken bool) error {
	return w.Log(ctx, LogParams{
		ActorUserID: &userID,
		TargetID:    &stakeholderID,
		Action:      EventInviteRedeemed,
		Meta: map[string]interface{}{
			"role":       role,
			"with_token": withToken,
		},
	})
}

func (w *Writer) LogEvent(ctx context.Context, action string, actorID, eventID uuid.UUID) error {
	return w.Log(ctx, LogParams{
		ActorUserID: &actorID,
		TargetID:    &eventID,
		Action:      action,
		Meta:        map[string]interface{}{},
	})
}

func (w *Writer) LogEventStakeholder(ctx context.Context, action string, actorID, eventID, stakeholderID uuid.UUID) error {
	return w.Log(ctx, LogParams{
		ActorUserID: &actorID,
		TargetID:    &eventID,
		Action:      action,
		Meta: map[string]interface{}{
			"stakeholder_id": stakeholderID.String(),
		},
	})
}
