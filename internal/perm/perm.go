// Package perm is the single source of truth for the permission catalog:
// the closed set of permissions, the role vocabulary, and the mapping from
// role to its default permission set. Every enforcement point (API handlers,
// the operation gateway, the admin CLI) resolves defaults through this
// package; there is deliberately no second copy of the mapping anywhere.
package perm

// Permission is an atomic capability token. The set is closed and fixed at
// build time; permissions are never created at runtime.
type Permission string

const (
	CreateEvent Permission = "createEvent"
	ViewEvent   Permission = "viewEvent"
	EditEvent   Permission = "editEvent"
	DeleteEvent Permission = "deleteEvent"

	CreateStakeholder Permission = "createStakeholder"
	ViewStakeholder   Permission = "viewStakeholder"
	EditStakeholder   Permission = "editStakeholder"
	DeleteStakeholder Permission = "deleteStakeholder"
	AssignStakeholder Permission = "assignStakeholder"
	InviteStakeholder Permission = "inviteStakeholder"

	ManageUsers  Permission = "manageUsers"
	ViewReports  Permission = "viewReports"
	EditSettings Permission = "editSettings"
	Admin        Permission = "admin"
	Root         Permission = "root"
)

// All lists every known permission in catalog order.
var All = []Permission{
	CreateEvent, ViewEvent, EditEvent, DeleteEvent,
	CreateStakeholder, ViewStakeholder, EditStakeholder, DeleteStakeholder,
	AssignStakeholder, InviteStakeholder,
	ManageUsers, ViewReports, EditSettings, Admin, Root,
}

// IsValid reports whether p is a known permission.
func (p Permission) IsValid() bool {
	for _, known := range All {
		if p == known {
			return true
		}
	}
	return false
}

// Role is a named default permission bundle.
type Role string

const (
	RoleRoot    Role = "root"
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleMember  Role = "member"
	RoleViewer  Role = "viewer"
)

// Roles lists every known role from most to least privileged.
var Roles = []Role{RoleRoot, RoleAdmin, RoleManager, RoleMember, RoleViewer}

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	switch r {
	case RoleRoot, RoleAdmin, RoleManager, RoleMember, RoleViewer:
		return true
	}
	return false
}

// Level returns the role's position in the total order used for minimum-role
// checks: root 5, admin 4, manager 3, member 2, viewer 1. Unknown roles get
// level 0 so they never satisfy any minimum.
func (r Role) Level() int {
	switch r {
	case RoleRoot:
		return 5
	case RoleAdmin:
		return 4
	case RoleManager:
		return 3
	case RoleMember:
		return 2
	case RoleViewer:
		return 1
	}
	return 0
}

// AtLeast reports whether r sits at or above required in the role order.
func (r Role) AtLeast(required Role) bool {
	return r.Level() >= required.Level()
}

// DefaultPermissionsFor returns the ordered default permission set for a
// role. It is pure and total: an unknown or unparseable role resolves to the
// viewer (view-only) default rather than failing, since this function sits
// on the critical path for every new account.
func DefaultPermissionsFor(role Role) []Permission {
	switch role {
	case RoleRoot:
		return append(DefaultPermissionsFor(RoleAdmin), Root)
	case RoleAdmin:
		return append(DefaultPermissionsFor(RoleManager), ManageUsers, EditSettings, Admin)
	case RoleManager:
		return append(DefaultPermissionsFor(RoleMember),
			DeleteEvent,
			CreateStakeholder, EditStakeholder, DeleteStakeholder,
			AssignStakeholder, InviteStakeholder,
		)
	case RoleMember:
		return append(DefaultPermissionsFor(RoleViewer), CreateEvent, EditEvent, ViewReports)
	case RoleViewer:
		return []Permission{ViewEvent, ViewStakeholder}
	}
	// Unknown role: most restrictive known default.
	return DefaultPermissionsFor(RoleViewer)
}

// ParseRole maps a role string to a Role, reporting whether it was known.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	return r, r.IsValid()
}
