package events

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/planora/planora/internal/stakeholders"
)

var (
	// ErrEventNotFound is returned when no event exists for an id
	ErrEventNotFound = errors.New("event not found")

	// ErrTitleRequired is returned when the event title is empty
	ErrTitleRequired = errors.New("title is required")

	// ErrNotAssigned is returned when removing a stakeholder that is not on
	// the event
	ErrNotAssigned = errors.New("stakeholder not assigned to event")
)

// Service provides event CRUD plus the paired array-sync updates that keep
// event.stakeholder_ids and stakeholder.event_ids consistent.
type Service struct {
	pool *pgxpool.Pool
}

// NewService creates a new event service.
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

const eventColumns = `id, owner_id, title, description, location, starts_at, ends_at, stakeholder_ids, created_at, updated_at`

func scanEvent(row pgx.Row) (*Event, error) {
	var e Event
	err := row.Scan(
		&e.ID,
		&e.OwnerID,
		&e.Title,
		&e.Description,
		&e.Location,
		&e.StartsAt,
		&e.EndsAt,
		&e.StakeholderIDs,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Create inserts a new event owned by ownerID.
func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, params CreateParams) (*Event, error) {
	params.Title = strings.TrimSpace(params.Title)
	if params.Title == "" {
		return nil, ErrTitleRequired
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO events (owner_id, title, description, location, starts_at, ends_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+eventColumns+`
	`, ownerID, params.Title, params.Description, params.Location, params.StartsAt, params.EndsAt)

	e, err := scanEvent(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}
	return e, nil
}

// GetByID retrieves an event by id.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Event, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return e, nil
}

// List returns every event, newest first.
func (s *Service) List(ctx context.Context) ([]Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+eventColumns+`
		FROM events
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}

	return out, nil
}

// Update applies the non-nil fields of params.
func (s *Service) Update(ctx context.Context, id uuid.UUID, params UpdateParams) (*Event, error) {
	current, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if params.Title != nil {
		title := strings.TrimSpace(*params.Title)
		if title == "" {
			return nil, ErrTitleRequired
		}
		current.Title = title
	}
	if params.Description != nil {
		current.Description = *params.Description
	}
	if params.Location != nil {
		current.Location = *params.Location
	}
	if params.StartsAt != nil {
		current.StartsAt = params.StartsAt
	}
	if params.EndsAt != nil {
		current.EndsAt = params.EndsAt
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE events
		SET title = $2, description = $3, location = $4, starts_at = $5, ends_at = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING `+eventColumns+`
	`, id, current.Title, current.Description, current.Location, current.StartsAt, current.EndsAt)

	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to update event: %w", err)
	}
	return e, nil
}

// Cancellation captures what a deleted event's watchers need to hear about
// it: the title for the notification body and the linked users to notify.
// Collected inside the delete transaction, delivered only after it commits.
type Cancellation struct {
	Title      string
	Recipients []uuid.UUID
}

// Delete removes an event and pulls its id from every stakeholder's
// event_ids array in the same transaction. Per-event records cascade.
// The returned Cancellation lists the users linked to the event's
// stakeholders as of the delete.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) (*Cancellation, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var cancellation Cancellation
	err = tx.QueryRow(ctx, `SELECT title FROM events WHERE id = $1 FOR UPDATE`, id).
		Scan(&cancellation.Title)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to lock event: %w", err)
	}

	rows, err := tx.Query(ctx, `
		SELECT DISTINCT st.linked_user_id
		FROM stakeholders st
		WHERE $1 = ANY(st.event_ids) AND st.linked_user_id IS NOT NULL
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to collect cancellation recipients: %w", err)
	}
	for rows.Next() {
		var userID uuid.UUID
		if err := rows.Scan(&userID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan recipient: %w", err)
		}
		cancellation.Recipients = append(cancellation.Recipients, userID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read recipients: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE stakeholders
		SET event_ids = array_remove(event_ids, $1), updated_at = NOW()
		WHERE $1 = ANY(event_ids)
	`, id); err != nil {
		return nil, fmt.Errorf("failed to unlink event from stakeholders: %w", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrEventNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &cancellation, nil
}

// AddStakeholder assigns a stakeholder to an event: both sides of the
// many-to-many link and the per-event record are written in one
// transaction. Re-adding an assigned stakeholder is a no-op.
func (s *Service) AddStakeholder(ctx context.Context, eventID, stakeholderID uuid.UUID, role, status string) (*EventStakeholder, error) {
	if role == "" {
		role = "attendee"
	}
	if status == "" {
		status = "invited"
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	tag, err := tx.Exec(ctx, `
		UPDATE events
		SET stakeholder_ids = array_append(stakeholder_ids, $2), updated_at = NOW()
		WHERE id = $1
		  AND NOT ($2 = ANY(stakeholder_ids))
	`, eventID, stakeholderID)
	if err != nil {
		return nil, fmt.Errorf("failed to update event stakeholder list: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the event is missing or the link already exists; find out.
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`, eventID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("failed to check event: %w", err)
		}
		if !exists {
			return nil, ErrEventNotFound
		}
	}

	tag, err = tx.Exec(ctx, `
		UPDATE stakeholders
		SET event_ids = array_append(event_ids, $1), updated_at = NOW()
		WHERE id = $2
		  AND NOT ($1 = ANY(event_ids))
	`, eventID, stakeholderID)
	if err != nil {
		return nil, fmt.Errorf("failed to update stakeholder event list: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM stakeholders WHERE id = $1)`, stakeholderID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("failed to check stakeholder: %w", err)
		}
		if !exists {
			return nil, stakeholders.ErrStakeholderNotFound
		}
	}

	var es EventStakeholder
	err = tx.QueryRow(ctx, `
		INSERT INTO event_stakeholders (event_id, stakeholder_id, role, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id, stakeholder_id) DO UPDATE SET role = $3, status = $4
		RETURNING event_id, stakeholder_id, role, status, created_at
	`, eventID, stakeholderID, role, status).Scan(
		&es.EventID,
		&es.StakeholderID,
		&es.Role,
		&es.Status,
		&es.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert event stakeholder record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &es, nil
}

// RemoveStakeholder unassigns a stakeholder from an event, updating both
// arrays and deleting the per-event record in one transaction.
func (s *Service) RemoveStakeholder(ctx context.Context, eventID, stakeholderID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	tag, err := tx.Exec(ctx, `
		DELETE FROM event_stakeholders
		WHERE event_id = $1 AND stakeholder_id = $2
	`, eventID, stakeholderID)
	if err != nil {
		return fmt.Errorf("failed to delete event stakeholder record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotAssigned
	}

	if _, err := tx.Exec(ctx, `
		UPDATE events
		SET stakeholder_ids = array_remove(stakeholder_ids, $2), updated_at = NOW()
		WHERE id = $1
	`, eventID, stakeholderID); err != nil {
		return fmt.Errorf("failed to update event stakeholder list: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE stakeholders
		SET event_ids = array_remove(event_ids, $1), updated_at = NOW()
		WHERE id = $2
	`, eventID, stakeholderID); err != nil {
		return fmt.Errorf("failed to update stakeholder event list: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ListStakeholderRecords returns the per-event role/status records.
func (s *Service) ListStakeholderRecords(ctx context.Context, eventID uuid.UUID) ([]EventStakeholder, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, stakeholder_id, role, status, created_at
		FROM event_stakeholders
		WHERE event_id = $1
		ORDER BY created_at ASC
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list event stakeholder records: %w", err)
	}
	defer rows.Close()

	var out []EventStakeholder
	for rows.Next() {
		var es EventStakeholder
		if err := rows.Scan(&es.EventID, &es.StakeholderID, &es.Role, &es.Status, &es.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event stakeholder record: %w", err)
		}
		out = append(out, es)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event stakeholder rows: %w", err)
	}

	return out, nil
}
