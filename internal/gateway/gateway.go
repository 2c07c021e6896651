// Package gateway is the mandatory choke point for every mutating operation.
// A handler never calls a service write directly: it asks the gateway to
// perform a named operation, and the gateway resolves the caller, evaluates
// the operation's static requirement through the guard, and only then runs
// the write. On any failure before that point the write runs zero times.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/planora/planora/internal/authz"
	"github.com/planora/planora/internal/perm"
	"github.com/rs/zerolog/log"
)

// Operation names a gateway-checked operation.
type Operation string

const (
	OpCreateUserWithRole  Operation = "users.create_with_role"
	OpListUsers           Operation = "users.list"
	OpUpdateUserRole      Operation = "users.update_role"
	OpSetUserActiveStatus Operation = "users.set_active"
	OpUpdateUserProfile   Operation = "users.update_profile"
	OpDeleteUser          Operation = "users.delete"

	OpCreateStakeholder Operation = "stakeholders.create"
	OpUpdateStakeholder Operation = "stakeholders.update"
	OpDeleteStakeholder Operation = "stakeholders.delete"
	OpInviteStakeholder Operation = "stakeholders.invite"

	OpCreateEvent                Operation = "events.create"
	OpUpdateEvent                Operation = "events.update"
	OpDeleteEvent                Operation = "events.delete"
	OpAddStakeholderToEvent      Operation = "events.add_stakeholder"
	OpRemoveStakeholderFromEvent Operation = "events.remove_stakeholder"
)

type opSpec struct {
	requirement authz.Requirement
	// selfForbidden operations may never target the caller's own account,
	// regardless of held permissions.
	selfForbidden bool
}

var operations = map[Operation]opSpec{
	OpCreateUserWithRole:  {requirement: authz.Require(authz.Permission(perm.ManageUsers))},
	OpListUsers:           {requirement: authz.Require(authz.Permission(perm.ManageUsers))},
	OpUpdateUserRole:      {requirement: authz.Require(authz.Permission(perm.ManageUsers)), selfForbidden: true},
	OpSetUserActiveStatus: {requirement: authz.Require(authz.Permission(perm.ManageUsers)), selfForbidden: true},
	OpUpdateUserProfile:   {requirement: authz.Require()},
	OpDeleteUser:          {requirement: authz.Require(authz.Permission(perm.ManageUsers))},

	OpCreateStakeholder: {requirement: authz.Require(authz.Permission(perm.CreateStakeholder))},
	OpUpdateStakeholder: {requirement: authz.Require(authz.Permission(perm.EditStakeholder))},
	OpDeleteStakeholder: {requirement: authz.Require(authz.Permission(perm.DeleteStakeholder))},
	OpInviteStakeholder: {requirement: authz.Require(authz.Permission(perm.InviteStakeholder))},

	OpCreateEvent:                {requirement: authz.Require(authz.Permission(perm.CreateEvent))},
	OpUpdateEvent:                {requirement: authz.Require(authz.Permission(perm.EditEvent))},
	OpDeleteEvent:                {requirement: authz.Require(authz.Permission(perm.DeleteEvent))},
	OpAddStakeholderToEvent:      {requirement: authz.Require(authz.Permission(perm.AssignStakeholder))},
	OpRemoveStakeholderFromEvent: {requirement: authz.Require(authz.Permission(perm.AssignStakeholder))},
}

// ErrUnauthenticated is returned when no principal resolves for the caller.
var ErrUnauthenticated = errors.New("unauthenticated")

// ErrPrincipalNotFound is returned by Directory implementations when no
// principal exists for the id. The gateway fails closed and treats the
// caller as unauthenticated.
var ErrPrincipalNotFound = errors.New("principal not found")

// DeniedError reports a failed requirement. The Requirement field names the
// clause that did not hold and is safe to surface to the caller.
type DeniedError struct {
	Operation   Operation
	Requirement string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("permission denied for %s: missing requirement: %s", e.Operation, e.Requirement)
}

// Principal is a resolved caller: an authorization subject plus the
// account-level active flag.
type Principal interface {
	authz.Subject
	Active() bool
}

// Directory resolves principals for the gateway.
type Directory interface {
	ResolvePrincipal(ctx context.Context, id uuid.UUID) (Principal, error)
}

// Gateway authorizes operations against the directory.
type Gateway struct {
	directory Directory
}

// New creates a gateway backed by the given directory.
func New(directory Directory) *Gateway {
	return &Gateway{directory: directory}
}

// Perform runs op as principalID. target is the entity the operation acts
// on (uuid.Nil when the operation has no target); it feeds the self-target
// ban on operations that carry one. fn is invoked only after the caller is
// resolved, active, and authorized, and its error is passed through
// untouched for the handler to classify.
func (g *Gateway) Perform(ctx context.Context, principalID uuid.UUID, op Operation, target uuid.UUID, fn func(ctx context.Context, actor Principal) error) error {
	actor, err := g.Authorize(ctx, principalID, op, target)
	if err != nil {
		return err
	}
	return fn(ctx, actor)
}

// Authorize resolves and checks the caller for op without running anything.
// Handlers for read operations that still carry a permission requirement
// (e.g. listing all users) use this directly.
func (g *Gateway) Authorize(ctx context.Context, principalID uuid.UUID, op Operation, target uuid.UUID) (Principal, error) {
	if principalID == uuid.Nil {
		return nil, ErrUnauthenticated
	}

	actor, err := g.directory.ResolvePrincipal(ctx, principalID)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			// Fail closed: a session whose principal is gone is no session.
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("failed to resolve caller: %w", err)
	}

	if !actor.Active() {
		log.Warn().
			Str("user_id", actor.SubjectID().String()).
			Str("operation", string(op)).
			Msg("Gateway: inactive principal denied")
		return nil, &DeniedError{Operation: op, Requirement: "active account"}
	}

	spec, ok := operations[op]
	if !ok {
		return nil, fmt.Errorf("unknown operation: %s", op)
	}

	req := spec.requirement
	if spec.selfForbidden {
		req = req.And(authz.NotSelf(target))
	}

	decision := authz.CheckAccess(actor, req)
	if !decision.Allowed {
		log.Warn().
			Str("user_id", actor.SubjectID().String()).
			Str("role", string(actor.SubjectRole())).
			Str("operation", string(op)).
			Str("failed_clause", decision.FailedClause).
			Msg("Gateway: operation denied")
		return nil, &DeniedError{Operation: op, Requirement: decision.FailedClause}
	}

	return actor, nil
}
