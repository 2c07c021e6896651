// Package authz implements the access decision function that gates every
// mutating operation. It is pure: given a subject and a requirement it
// returns an allow/deny decision and never performs I/O.
package authz

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/planora/planora/internal/perm"
)

// Subject is the view of a principal the guard evaluates. users.Principal
// implements it; tests supply lightweight fakes.
type Subject interface {
	SubjectID() uuid.UUID
	SubjectRole() perm.Role
	HasPermission(p perm.Permission) bool
}

// Requirement is a conjunction of clauses: every clause must pass for the
// decision to be an allow.
type Requirement struct {
	clauses []clause
}

type clause interface {
	name() string
	check(s Subject) bool
}

// Decision is the result of evaluating a requirement against a subject.
// When denied, FailedClause names the first clause that did not hold. The
// reason string is pre-formatted to be safe to show to the caller and never
// references other principals.
type Decision struct {
	Allowed      bool
	FailedClause string
}

// Reason returns a caller-safe description of why access was denied.
func (d Decision) Reason() string {
	if d.Allowed {
		return ""
	}
	return fmt.Sprintf("missing requirement: %s", d.FailedClause)
}

// CheckAccess evaluates req against s. Clauses combine with AND and are
// evaluated in the order they were added; the first failing clause is
// reported.
func CheckAccess(s Subject, req Requirement) Decision {
	for _, c := range req.clauses {
		if !c.check(s) {
			return Decision{Allowed: false, FailedClause: c.name()}
		}
	}
	return Decision{Allowed: true}
}

// Require builds a requirement from the given clauses.
func Require(clauses ...Clause) Requirement {
	req := Requirement{}
	for _, c := range clauses {
		req.clauses = append(req.clauses, c.c)
	}
	return req
}

// And returns a copy of req with extra clauses appended.
func (r Requirement) And(clauses ...Clause) Requirement {
	combined := Requirement{clauses: make([]clause, 0, len(r.clauses)+len(clauses))}
	combined.clauses = append(combined.clauses, r.clauses...)
	for _, c := range clauses {
		combined.clauses = append(combined.clauses, c.c)
	}
	return combined
}

// Clause is one condition within a requirement.
type Clause struct {
	c clause
}

type permissionClause struct {
	p perm.Permission
}

func (c permissionClause) name() string         { return string(c.p) }
func (c permissionClause) check(s Subject) bool { return s.HasPermission(c.p) }

// Permission requires the subject to hold a single permission.
func Permission(p perm.Permission) Clause {
	return Clause{c: permissionClause{p: p}}
}

type allOfClause struct {
	ps []perm.Permission
}

func (c allOfClause) name() string {
	return "all of " + joinPermissions(c.ps)
}

func (c allOfClause) check(s Subject) bool {
	for _, p := range c.ps {
		if !s.HasPermission(p) {
			return false
		}
	}
	return true
}

// AllOf requires every listed permission.
func AllOf(ps ...perm.Permission) Clause {
	return Clause{c: allOfClause{ps: ps}}
}

type anyOfClause struct {
	ps []perm.Permission
}

func (c anyOfClause) name() string {
	return "any of " + joinPermissions(c.ps)
}

func (c anyOfClause) check(s Subject) bool {
	for _, p := range c.ps {
		if s.HasPermission(p) {
			return true
		}
	}
	return false
}

// AnyOf requires at least one of the listed permissions.
func AnyOf(ps ...perm.Permission) Clause {
	return Clause{c: anyOfClause{ps: ps}}
}

type minRoleClause struct {
	role perm.Role
}

func (c minRoleClause) name() string         { return "role " + string(c.role) + " or higher" }
func (c minRoleClause) check(s Subject) bool { return s.SubjectRole().AtLeast(c.role) }

// MinRole requires the subject's role level to be at least role's level.
func MinRole(role perm.Role) Clause {
	return Clause{c: minRoleClause{role: role}}
}

type predicateClause struct {
	clauseName string
	fn         func(s Subject) bool
}

func (c predicateClause) name() string         { return c.clauseName }
func (c predicateClause) check(s Subject) bool { return c.fn(s) }

// Predicate is the escape hatch for conditions that do not reduce to
// permissions. The name appears verbatim in deny reasons, so keep it
// caller-safe.
func Predicate(name string, fn func(s Subject) bool) Clause {
	return Clause{c: predicateClause{clauseName: name, fn: fn}}
}

// NotSelf denies operations that target the subject's own account.
// Self role-changes and self-deactivation are categorically forbidden, not
// merely permission-gated.
func NotSelf(target uuid.UUID) Clause {
	return Predicate("self-modification-forbidden", func(s Subject) bool {
		return s.SubjectID() != target
	})
}

func joinPermissions(ps []perm.Permission) string {
	out := ""
	for i, p := range ps {
		if i > 0 {
			out += ", "
		}
		out += string(p)
	}
	return out
}
