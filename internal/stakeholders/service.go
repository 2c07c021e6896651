package stakeholders

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrStakeholderNotFound is returned when no stakeholder exists for an id
	ErrStakeholderNotFound = errors.New("stakeholder not found")

	// ErrInvalidEmail is returned for a malformed stakeholder email
	ErrInvalidEmail = errors.New("invalid email address")

	// ErrNameRequired is returned when the stakeholder name is empty
	ErrNameRequired = errors.New("name is required")
)

// Service provides stakeholder CRUD. Mutations trust the operation gateway;
// invite state is owned by the invitation workflow and never touched here.
type Service struct {
	pool *pgxpool.Pool
}

// NewService creates a new stakeholder service.
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

const stakeholderColumns = `id, name, email, phone, organization, type, relationship_type,
	participation_status, event_ids, linked_user_id, invite_status, invited_at,
	created_by_user_id, created_at, updated_at`

func scanStakeholder(row pgx.Row) (*Stakeholder, error) {
	var s Stakeholder
	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.Email,
		&s.Phone,
		&s.Organization,
		&s.Type,
		&s.RelationshipType,
		&s.ParticipationStatus,
		&s.EventIDs,
		&s.LinkedUserID,
		&s.InviteStatus,
		&s.InvitedAt,
		&s.CreatedByUserID,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" || len(email) > 320 {
		return "", ErrInvalidEmail
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// CreateParams carries the fields for a new stakeholder.
type CreateParams struct {
	Name                string `json:"name"`
	Email               string `json:"email"`
	Phone               string `json:"phone"`
	Organization        string `json:"organization"`
	Type                string `json:"type"`
	RelationshipType    string `json:"relationship_type"`
	ParticipationStatus string `json:"participation_status"`
}

// Create inserts a new stakeholder in the notInvited state.
func (s *Service) Create(ctx context.Context, createdBy uuid.UUID, params CreateParams) (*Stakeholder, error) {
	params.Name = strings.TrimSpace(params.Name)
	if params.Name == "" {
		return nil, ErrNameRequired
	}

	email, err := normalizeEmail(params.Email)
	if err != nil {
		return nil, err
	}

	if params.Type == "" {
		params.Type = "contact"
	}
	if params.ParticipationStatus == "" {
		params.ParticipationStatus = "none"
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO stakeholders (
		  name, email, phone, organization, type, relationship_type,
		  participation_status, created_by_user_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+stakeholderColumns+`
	`, params.Name, email, params.Phone, params.Organization, params.Type,
		params.RelationshipType, params.ParticipationStatus, createdBy)

	st, err := scanStakeholder(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create stakeholder: %w", err)
	}
	return st, nil
}

// GetByID retrieves a stakeholder by id.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Stakeholder, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+stakeholderColumns+` FROM stakeholders WHERE id = $1`, id)
	st, err := scanStakeholder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStakeholderNotFound
		}
		return nil, fmt.Errorf("failed to get stakeholder: %w", err)
	}
	return st, nil
}

// List returns every stakeholder, newest first.
func (s *Service) List(ctx context.Context) ([]Stakeholder, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+stakeholderColumns+`
		FROM stakeholders
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list stakeholders: %w", err)
	}
	defer rows.Close()

	var out []Stakeholder
	for rows.Next() {
		st, err := scanStakeholder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stakeholder: %w", err)
		}
		out = append(out, *st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stakeholder rows: %w", err)
	}

	return out, nil
}

// Update applies the non-nil fields of params.
func (s *Service) Update(ctx context.Context, id uuid.UUID, params UpdateParams) (*Stakeholder, error) {
	current, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if params.Name != nil {
		name := strings.TrimSpace(*params.Name)
		if name == "" {
			return nil, ErrNameRequired
		}
		current.Name = name
	}
	if params.Email != nil {
		email, err := normalizeEmail(*params.Email)
		if err != nil {
			return nil, err
		}
		current.Email = email
	}
	if params.Phone != nil {
		current.Phone = *params.Phone
	}
	if params.Organization != nil {
		current.Organization = *params.Organization
	}
	if params.Type != nil {
		current.Type = *params.Type
	}
	if params.RelationshipType != nil {
		current.RelationshipType = *params.RelationshipType
	}
	if params.ParticipationStatus != nil {
		current.ParticipationStatus = *params.ParticipationStatus
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE stakeholders
		SET name = $2, email = $3, phone = $4, organization = $5, type = $6,
		    relationship_type = $7, participation_status = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING `+stakeholderColumns+`
	`, id, current.Name, current.Email, current.Phone, current.Organization,
		current.Type, current.RelationshipType, current.ParticipationStatus)

	st, err := scanStakeholder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStakeholderNotFound
		}
		return nil, fmt.Errorf("failed to update stakeholder: %w", err)
	}
	return st, nil
}

// Delete removes a stakeholder and keeps the event side of the many-to-many
// link in sync: the id is pulled from every event's stakeholder_ids array in
// the same transaction. Invites and per-event records go via ON DELETE
// CASCADE.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `
		UPDATE events
		SET stakeholder_ids = array_remove(stakeholder_ids, $1), updated_at = NOW()
		WHERE $1 = ANY(stakeholder_ids)
	`, id); err != nil {
		return fmt.Errorf("failed to unlink stakeholder from events: %w", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM stakeholders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete stakeholder: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStakeholderNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
