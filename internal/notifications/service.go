package notifications

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// ErrNotificationNotFound is returned when no notification exists for the
// id within the caller's own notifications.
var ErrNotificationNotFound = errors.New("notification not found")

// Service stores and fans out in-app notifications. Fan-out failures are
// logged and swallowed: a missed notification must never fail the mutation
// that triggered it.
type Service struct {
	pool *pgxpool.Pool
}

// NewService creates a new notification service.
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// ListForUser returns a user's notifications, newest first.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]Notification, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, event_id, kind, title, body, read_at, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.EventID, &n.Kind, &n.Title, &n.Body, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notification rows: %w", err)
	}

	return out, nil
}

// MarkRead marks one of userID's notifications as read. Scoped to the
// owner: marking someone else's notification reads as not found.
func (s *Service) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications
		SET read_at = NOW()
		WHERE id = $1
		  AND user_id = $2
		  AND read_at IS NULL
	`, notificationID, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		err := s.pool.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM notifications WHERE id = $1 AND user_id = $2)
		`, notificationID, userID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check notification: %w", err)
		}
		if !exists {
			return ErrNotificationNotFound
		}
		// Already read; marking again is a no-op.
	}

	return nil
}

// FanOutToEvent inserts a notification for every user linked to one of the
// event's stakeholders. Failures are logged, never returned.
func (s *Service) FanOutToEvent(ctx context.Context, eventID uuid.UUID, kind, title, body string) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (user_id, event_id, kind, title, body)
		SELECT st.linked_user_id, $1, $2, $3, $4
		FROM stakeholders st
		WHERE $1 = ANY(st.event_ids)
		  AND st.linked_user_id IS NOT NULL
	`, eventID, kind, title, body)
	if err != nil {
		log.Error().
			Err(err).
			Str("event_id", eventID.String()).
			Str("kind", kind).
			Msg("Failed to fan out notifications")
		return
	}

	log.Info().
		Str("event_id", eventID.String()).
		Str("kind", kind).
		Int64("recipients", tag.RowsAffected()).
		Msg("Notifications fanned out")
}

// NotifyUser inserts a notification for a single user. Failures are logged,
// never returned.
func (s *Service) NotifyUser(ctx context.Context, userID uuid.UUID, eventID uuid.NullUUID, kind, title, body string) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (user_id, event_id, kind, title, body)
		VALUES ($1, $2, $3, $4, $5)
	`, userID, eventID, kind, title, body)
	if err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID.String()).
			Str("kind", kind).
			Msg("Failed to create notification")
	}
}
