package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/planora/planora/internal/gateway"
	"github.com/planora/planora/internal/perm"
)

var (
	// ErrUserNotFound is returned when no principal exists for an id or email
	ErrUserNotFound = errors.New("user not found")

	// ErrEmailTaken is returned when the email is already registered
	ErrEmailTaken = errors.New("email address already registered")

	// ErrSelfModification is returned when a caller targets their own role or
	// active flag. These operations are categorically forbidden for self,
	// regardless of held permissions.
	ErrSelfModification = errors.New("self-modification-forbidden")

	// ErrInvalidRole is returned for unknown role strings
	ErrInvalidRole = errors.New("invalid role")

	// ErrInvalidPermission is returned when an explicit permission override
	// contains a token outside the catalog
	ErrInvalidPermission = errors.New("invalid permission")
)

// Service is the user/role directory. Mutating calls trust that the caller
// already passed the operation gateway; no authorization is re-checked here
// beyond the categorical self-targeting bans.
type Service struct {
	pool    *pgxpool.Pool
	watcher *Watcher
}

// NewService creates a new directory service.
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool, watcher: NewWatcher()}
}

// Watcher exposes the principal-change feed for reactive consumers.
func (s *Service) Watcher() *Watcher {
	return s.watcher
}

// Directory adapts the service to the operation gateway.
type Directory struct {
	svc *Service
}

// NewDirectory wraps the service for gateway use.
func NewDirectory(svc *Service) *Directory {
	return &Directory{svc: svc}
}

// ResolvePrincipal implements gateway.Directory.
func (d *Directory) ResolvePrincipal(ctx context.Context, id uuid.UUID) (gateway.Principal, error) {
	p, err := d.svc.ResolvePrincipal(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, gateway.ErrPrincipalNotFound
		}
		return nil, err
	}
	return p, nil
}

const principalColumns = `id, email, display_name, role, permissions, is_active, stakeholder_id, created_at, updated_at`

func scanPrincipal(row pgx.Row) (*Principal, error) {
	var p Principal
	var permissions []string
	err := row.Scan(
		&p.ID,
		&p.Email,
		&p.DisplayName,
		&p.Role,
		&permissions,
		&p.IsActive,
		&p.StakeholderID,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Permissions = permissionsFromStrings(permissions)
	return &p, nil
}

// Create inserts a new principal. An empty role defaults to the least
// privileged role; permissions are always the role's default set at creation.
func (s *Service) Create(ctx context.Context, email, passwordHash, displayName string, role perm.Role) (*Principal, error) {
	if role == "" {
		role = perm.RoleViewer
	}
	if !role.IsValid() {
		return nil, ErrInvalidRole
	}

	permissions := permissionsToStrings(perm.DefaultPermissionsFor(role))

	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, display_name, role, permissions)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+principalColumns+`
	`, email, passwordHash, displayName, role, permissions)

	p, err := scanPrincipal(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.watcher.notify(Change{UserID: p.ID, Kind: ChangeCreated})
	return p, nil
}

// ResolvePrincipal looks up a principal by id.
func (s *Service) ResolvePrincipal(ctx context.Context, id uuid.UUID) (*Principal, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+principalColumns+` FROM users WHERE id = $1`, id)
	p, err := scanPrincipal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to resolve principal: %w", err)
	}
	return p, nil
}

// GetByEmail looks up a principal and password hash by email, for login.
func (s *Service) GetByEmail(ctx context.Context, email string) (*Principal, string, error) {
	var passwordHash string
	var p Principal
	var permissions []string
	err := s.pool.QueryRow(ctx, `
		SELECT `+principalColumns+`, password_hash
		FROM users
		WHERE email = $1
	`, strings.TrimSpace(email)).Scan(
		&p.ID,
		&p.Email,
		&p.DisplayName,
		&p.Role,
		&permissions,
		&p.IsActive,
		&p.StakeholderID,
		&p.CreatedAt,
		&p.UpdatedAt,
		&passwordHash,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", ErrUserNotFound
		}
		return nil, "", fmt.Errorf("failed to get user by email: %w", err)
	}
	p.Permissions = permissionsFromStrings(permissions)
	return &p, passwordHash, nil
}

// List returns every principal, newest first.
func (s *Service) List(ctx context.Context) ([]Principal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+principalColumns+`
		FROM users
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var principals []Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		principals = append(principals, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user rows: %w", err)
	}

	return principals, nil
}

// ApplyRoleChange updates a principal's role and permission set. When
// newPermissions is nil the default set for newRole is computed and
// persisted; stale permissions from the old role are never left behind.
// A caller targeting their own id is rejected before anything else.
func (s *Service) ApplyRoleChange(ctx context.Context, actorID, targetID uuid.UUID, newRole perm.Role, newPermissions []perm.Permission) (*Principal, error) {
	if actorID == targetID {
		return nil, ErrSelfModification
	}
	if !newRole.IsValid() {
		return nil, ErrInvalidRole
	}

	if newPermissions == nil {
		newPermissions = perm.DefaultPermissionsFor(newRole)
	} else {
		for _, p := range newPermissions {
			if !p.IsValid() {
				return nil, fmt.Errorf("%w: %s", ErrInvalidPermission, p)
			}
		}
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE users
		SET role = $2, permissions = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING `+principalColumns+`
	`, targetID, newRole, permissionsToStrings(newPermissions))

	p, err := scanPrincipal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to apply role change: %w", err)
	}

	s.watcher.notify(Change{UserID: p.ID, Kind: ChangeRoleUpdated})
	return p, nil
}

// SetActive toggles a principal's active flag. Self-deactivation (and
// self-reactivation) is categorically forbidden.
func (s *Service) SetActive(ctx context.Context, actorID, targetID uuid.UUID, isActive bool) error {
	if actorID == targetID {
		return ErrSelfModification
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE users
		SET is_active = $2, updated_at = NOW()
		WHERE id = $1
	`, targetID, isActive)
	if err != nil {
		return fmt.Errorf("failed to set active status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	s.watcher.notify(Change{UserID: targetID, Kind: ChangeActiveUpdated})
	return nil
}

// UpdateDisplayName changes a principal's display name. This is the one
// field a principal may change on their own account.
func (s *Service) UpdateDisplayName(ctx context.Context, id uuid.UUID, displayName string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users
		SET display_name = $2, updated_at = NOW()
		WHERE id = $1
	`, id, strings.TrimSpace(displayName))
	if err != nil {
		return fmt.Errorf("failed to update display name: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	s.watcher.notify(Change{UserID: id, Kind: ChangeProfileUpdated})
	return nil
}

// Delete removes a principal and its downstream state in one transaction:
// the user's notifications are deleted, owned events are unlinked (not
// deleted), and any linked stakeholder is reset to the uninvited state so
// the link invariant holds for a future invite.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM notifications WHERE user_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete notifications: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE events
		SET owner_id = NULL, updated_at = NOW()
		WHERE owner_id = $1
	`, id); err != nil {
		return fmt.Errorf("failed to unlink owned events: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE stakeholders
		SET linked_user_id = NULL,
		    invite_status = 'notInvited',
		    invite_token_hash = NULL,
		    invited_at = NULL,
		    updated_at = NOW()
		WHERE linked_user_id = $1
	`, id); err != nil {
		return fmt.Errorf("failed to unlink stakeholder: %w", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.watcher.notify(Change{UserID: id, Kind: ChangeDeleted})
	return nil
}
