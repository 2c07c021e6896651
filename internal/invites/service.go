package invites

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/planora/planora/internal/perm"
	"github.com/planora/planora/internal/stakeholders"
	"github.com/planora/planora/internal/users"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidRole      = errors.New("invalid default role")
	ErrCannotInviteRoot = errors.New("cannot invite with root role")

	ErrInviteNotFound = errors.New("invite not found")
	ErrInviteUsed     = errors.New("invite already used")
	ErrInviteExpired  = errors.New("invite expired")
	// ErrInviteSuperseded means the token does not match the stakeholder's
	// currently stored token: a later invite replaced it.
	ErrInviteSuperseded = errors.New("invite superseded by a newer invite")

	ErrAlreadyLinked = errors.New("stakeholder already linked to an account")
	// ErrUserAlreadyLinked means the redeeming account is already linked to
	// some stakeholder. The link is one-to-one in both directions.
	ErrUserAlreadyLinked = errors.New("account already linked to a stakeholder")
)

// Service runs the invitation workflow: issuing tokens, validating them,
// and redeeming them into a linked account. Redemption writes the principal,
// the stakeholder, and the invite in one transaction so the link invariant
// (linked user ⇔ accepted status) can never be observed half-applied.
type Service struct {
	pool    *pgxpool.Pool
	ttl     time.Duration
	watcher *users.Watcher
}

// NewService creates an invitation service. watcher may be nil in tests.
func NewService(pool *pgxpool.Pool, ttlDays int, watcher *users.Watcher) *Service {
	return &Service{
		pool:    pool,
		ttl:     time.Duration(ttlDays) * 24 * time.Hour,
		watcher: watcher,
	}
}

// Create issues a fresh invite token for a stakeholder. Any prior pending
// invite for the stakeholder is superseded: its row is removed and the
// stakeholder's stored token hash is overwritten, so the old token can
// never redeem even in a race with an in-flight validation.
func (s *Service) Create(ctx context.Context, actorID, stakeholderID uuid.UUID, defaultRole perm.Role) (*Invite, string, error) {
	if defaultRole == "" {
		defaultRole = perm.RoleMember
	}
	if !defaultRole.IsValid() {
		return nil, "", ErrInvalidRole
	}
	if defaultRole == perm.RoleRoot {
		return nil, "", ErrCannotInviteRoot
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var email string
	var linkedUserID uuid.NullUUID
	err = tx.QueryRow(ctx, `
		SELECT email, linked_user_id
		FROM stakeholders
		WHERE id = $1
		FOR UPDATE
	`, stakeholderID).Scan(&email, &linkedUserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", stakeholders.ErrStakeholderNotFound
		}
		return nil, "", fmt.Errorf("failed to load stakeholder: %w", err)
	}
	if linkedUserID.Valid {
		return nil, "", ErrAlreadyLinked
	}

	// Supersede any open invite for this stakeholder.
	if _, err := tx.Exec(ctx, `
		DELETE FROM invites
		WHERE stakeholder_id = $1
		  AND used_at IS NULL
	`, stakeholderID); err != nil {
		return nil, "", fmt.Errorf("failed to supersede existing invites: %w", err)
	}

	token, tokenHash, err := GenerateToken()
	if err != nil {
		return nil, "", err
	}
	expiresAt := time.Now().UTC().Add(s.ttl)

	var invite Invite
	err = tx.QueryRow(ctx, `
		INSERT INTO invites (token_hash, stakeholder_id, email, default_role, created_by_user_id, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING token_hash, stakeholder_id, email, default_role, created_by_user_id, created_at, expires_at, used_at
	`, tokenHash, stakeholderID, email, defaultRole, actorID, expiresAt).Scan(
		&invite.TokenHash,
		&invite.StakeholderID,
		&invite.Email,
		&invite.DefaultRole,
		&invite.CreatedByUserID,
		&invite.CreatedAt,
		&invite.ExpiresAt,
		&invite.UsedAt,
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create invite: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE stakeholders
		SET invite_status = $2, invited_at = NOW(), invite_token_hash = $3, updated_at = NOW()
		WHERE id = $1
	`, stakeholderID, stakeholders.InvitePending, tokenHash); err != nil {
		return nil, "", fmt.Errorf("failed to mark stakeholder invited: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, "", fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &invite, token, nil
}

// Validate checks a token without mutating anything; it is safe to call
// repeatedly, e.g. while the signup screen polls.
func (s *Service) Validate(ctx context.Context, token string) (*Validation, error) {
	if !ValidateTokenFormat(token) {
		return &Validation{Valid: false, Reason: ReasonNotFound}, nil
	}

	inv, err := s.getByHash(ctx, s.pool, HashToken(token), false)
	if err != nil {
		if errors.Is(err, ErrInviteNotFound) {
			return &Validation{Valid: false, Reason: ReasonNotFound}, nil
		}
		return nil, err
	}

	if reason := classify(inv, time.Now().UTC()); reason != "" {
		return &Validation{Valid: false, Reason: reason}, nil
	}

	return &Validation{
		Valid:         true,
		Email:         inv.Email,
		StakeholderID: inv.StakeholderID,
		DefaultRole:   inv.DefaultRole,
	}, nil
}

// Redeem links userID to stakeholderID and applies the invite's default
// role, atomically. An absent token soft-fails to the member role so a lost
// invite email does not strand the account without linkage; a token that is
// present but used, expired, or superseded surfaces an error and changes
// nothing. The link is one-to-one: a stakeholder that already has an account
// and an account that already has a stakeholder are both rejected.
func (s *Service) Redeem(ctx context.Context, userID, stakeholderID uuid.UUID, token string) (perm.Role, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var linkedUserID uuid.NullUUID
	var storedHash []byte
	err = tx.QueryRow(ctx, `
		SELECT linked_user_id, invite_token_hash
		FROM stakeholders
		WHERE id = $1
		FOR UPDATE
	`, stakeholderID).Scan(&linkedUserID, &storedHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", stakeholders.ErrStakeholderNotFound
		}
		return "", fmt.Errorf("failed to load stakeholder: %w", err)
	}
	if linkedUserID.Valid {
		return "", ErrAlreadyLinked
	}

	var existingStakeholderID uuid.NullUUID
	err = tx.QueryRow(ctx, `
		SELECT stakeholder_id
		FROM users
		WHERE id = $1
		FOR UPDATE
	`, userID).Scan(&existingStakeholderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", users.ErrUserNotFound
		}
		return "", fmt.Errorf("failed to load user: %w", err)
	}
	if existingStakeholderID.Valid {
		return "", ErrUserAlreadyLinked
	}

	role := perm.RoleMember
	if token != "" {
		tokenHash := HashToken(token)

		inv, err := s.getByHash(ctx, tx, tokenHash, true)
		if err != nil {
			return "", err
		}

		switch classify(inv, time.Now().UTC()) {
		case ReasonAlreadyUsed:
			return "", ErrInviteUsed
		case ReasonExpired:
			return "", ErrInviteExpired
		}

		// The stakeholder's stored hash is the authority on which token is
		// current; an invite row alone is not enough once a newer invite
		// has been issued.
		if !bytes.Equal(storedHash, tokenHash) {
			return "", ErrInviteSuperseded
		}

		tag, err := tx.Exec(ctx, `
			UPDATE invites
			SET used_at = NOW()
			WHERE token_hash = $1
			  AND used_at IS NULL
		`, tokenHash)
		if err != nil {
			return "", fmt.Errorf("failed to mark invite used: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return "", ErrInviteUsed
		}

		role = inv.DefaultRole
	} else {
		log.Warn().
			Str("user_id", userID.String()).
			Str("stakeholder_id", stakeholderID.String()).
			Msg("Invite redemption without token; linking with default member role")
	}

	permissions := make([]string, 0, len(perm.DefaultPermissionsFor(role)))
	for _, p := range perm.DefaultPermissionsFor(role) {
		permissions = append(permissions, string(p))
	}

	tag, err := tx.Exec(ctx, `
		UPDATE users
		SET stakeholder_id = $2, role = $3, permissions = $4, updated_at = NOW()
		WHERE id = $1
	`, userID, stakeholderID, role, permissions)
	if err != nil {
		return "", fmt.Errorf("failed to link user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return "", users.ErrUserNotFound
	}

	if _, err := tx.Exec(ctx, `
		UPDATE stakeholders
		SET linked_user_id = $2, invite_status = $3, invite_token_hash = NULL, updated_at = NOW()
		WHERE id = $1
	`, stakeholderID, userID, stakeholders.InviteAccepted); err != nil {
		return "", fmt.Errorf("failed to link stakeholder: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}

	if s.watcher != nil {
		s.watcher.NotifyLinked(userID)
	}

	return role, nil
}

// ExpireSweep marks stakeholders whose pending invite has lapsed. Invite
// rows themselves stay put: Validate classifies them as expired from
// expires_at alone. Idempotent, safe to run repeatedly from the scheduler.
func (s *Service) ExpireSweep(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE stakeholders st
		SET invite_status = $1, updated_at = NOW()
		WHERE st.invite_status = $2
		  AND EXISTS (
		    SELECT 1 FROM invites i
		    WHERE i.token_hash = st.invite_token_hash
		      AND i.used_at IS NULL
		      AND i.expires_at <= NOW()
		  )
	`, stakeholders.InviteExpired, stakeholders.InvitePending)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired invites: %w", err)
	}
	return tag.RowsAffected(), nil
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Service) getByHash(ctx context.Context, q queryRower, hash []byte, forUpdate bool) (*Invite, error) {
	query := `
		SELECT token_hash, stakeholder_id, email, default_role, created_by_user_id, created_at, expires_at, used_at
		FROM invites
		WHERE token_hash = $1
	`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var inv Invite
	err := q.QueryRow(ctx, query, hash).Scan(
		&inv.TokenHash,
		&inv.StakeholderID,
		&inv.Email,
		&inv.DefaultRole,
		&inv.CreatedByUserID,
		&inv.CreatedAt,
		&inv.ExpiresAt,
		&inv.UsedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInviteNotFound
		}
		return nil, fmt.Errorf("failed to load invite: %w", err)
	}
	return &inv, nil
}
