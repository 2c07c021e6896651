package users

import (
	"time"

	"github.com/google/uuid"
	"github.com/planora/planora/internal/perm"
)

// Principal is an authenticated identity with a role and permission set.
// The permissions column equals perm.DefaultPermissionsFor(role) unless an
// authorized role assignment explicitly overrode it; the directory never
// re-derives the set after the fact, so every role write recomputes it.
type Principal struct {
	ID            uuid.UUID         `db:"id" json:"id"`
	Email         string            `db:"email" json:"email"`
	DisplayName   string            `db:"display_name" json:"display_name"`
	Role          perm.Role         `db:"role" json:"role"`
	Permissions   []perm.Permission `db:"permissions" json:"permissions"`
	IsActive      bool              `db:"is_active" json:"is_active"`
	StakeholderID uuid.NullUUID     `db:"stakeholder_id" json:"stakeholder_id"`
	CreatedAt     time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time         `db:"updated_at" json:"updated_at"`
}

// SubjectID implements authz.Subject.
func (p *Principal) SubjectID() uuid.UUID { return p.ID }

// SubjectRole implements authz.Subject.
func (p *Principal) SubjectRole() perm.Role { return p.Role }

// Active reports whether the account may perform operations at all.
func (p *Principal) Active() bool { return p.IsActive }

// HasPermission implements authz.Subject. Permission order is irrelevant;
// the list is semantically a set.
func (p *Principal) HasPermission(want perm.Permission) bool {
	for _, have := range p.Permissions {
		if have == want {
			return true
		}
	}
	return false
}

func permissionsToStrings(ps []perm.Permission) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = string(p)
	}
	return out
}

func permissionsFromStrings(ss []string) []perm.Permission {
	out := make([]perm.Permission, len(ss))
	for i, s := range ss {
		out[i] = perm.Permission(s)
	}
	return out
}
