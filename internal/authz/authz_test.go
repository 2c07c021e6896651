package authz

import (
	"testing"

	"github.com/google/uuid"
	"github.com/planora/planora/internal/perm"
	"github.com/stretchr/testify/require"
)

type fakeSubject struct {
	id    uuid.UUID
	role  perm.Role
	perms []perm.Permission
}

func (f fakeSubject) SubjectID() uuid.UUID      { return f.id }
func (f fakeSubject) SubjectRole() perm.Role    { return f.role }
func (f fakeSubject) HasPermission(p perm.Permission) bool {
	for _, have := range f.perms {
		if have == p {
			return true
		}
	}
	return false
}

func viewer() fakeSubject {
	return fakeSubject{
		id:    uuid.New(),
		role:  perm.RoleViewer,
		perms: perm.DefaultPermissionsFor(perm.RoleViewer),
	}
}

func admin() fakeSubject {
	return fakeSubject{
		id:    uuid.New(),
		role:  perm.RoleAdmin,
		perms: perm.DefaultPermissionsFor(perm.RoleAdmin),
	}
}

func TestCheckAccess_SinglePermission(t *testing.T) {
	d := CheckAccess(viewer(), Require(Permission(perm.ViewEvent)))
	require.True(t, d.Allowed)

	d = CheckAccess(viewer(), Require(Permission(perm.ManageUsers)))
	require.False(t, d.Allowed)
	require.Equal(t, "manageUsers", d.FailedClause)
	require.Equal(t, "missing requirement: manageUsers", d.Reason())
}

func TestCheckAccess_AllOf(t *testing.T) {
	d := CheckAccess(admin(), Require(AllOf(perm.ViewEvent, perm.ManageUsers)))
	require.True(t, d.Allowed)

	d = CheckAccess(viewer(), Require(AllOf(perm.ViewEvent, perm.ManageUsers)))
	require.False(t, d.Allowed)
	require.Equal(t, "all of viewEvent, manageUsers", d.FailedClause)
}

func TestCheckAccess_AnyOf(t *testing.T) {
	d := CheckAccess(viewer(), Require(AnyOf(perm.ManageUsers, perm.ViewEvent)))
	require.True(t, d.Allowed)

	d = CheckAccess(viewer(), Require(AnyOf(perm.ManageUsers, perm.Admin)))
	require.False(t, d.Allowed)
	require.Equal(t, "any of manageUsers, admin", d.FailedClause)
}

func TestCheckAccess_MinRole(t *testing.T) {
	d := CheckAccess(admin(), Require(MinRole(perm.RoleManager)))
	require.True(t, d.Allowed)

	d = CheckAccess(viewer(), Require(MinRole(perm.RoleManager)))
	require.False(t, d.Allowed)
	require.Equal(t, "role manager or higher", d.FailedClause)
}

func TestCheckAccess_ClausesCombineWithAND(t *testing.T) {
	s := admin()
	d := CheckAccess(s, Require(Permission(perm.ManageUsers), MinRole(perm.RoleAdmin)))
	require.True(t, d.Allowed)

	// First failing clause wins.
	d = CheckAccess(s, Require(Permission(perm.Root), MinRole(perm.RoleRoot)))
	require.False(t, d.Allowed)
	require.Equal(t, "root", d.FailedClause)
}

func TestCheckAccess_NotSelf(t *testing.T) {
	s := admin()

	// Targeting someone else passes even alongside permission clauses.
	d := CheckAccess(s, Require(Permission(perm.ManageUsers), NotSelf(uuid.New())))
	require.True(t, d.Allowed)

	// Targeting self fails regardless of held permissions.
	root := fakeSubject{id: uuid.New(), role: perm.RoleRoot, perms: perm.DefaultPermissionsFor(perm.RoleRoot)}
	d = CheckAccess(root, Require(Permission(perm.ManageUsers), NotSelf(root.id)))
	require.False(t, d.Allowed)
	require.Equal(t, "self-modification-forbidden", d.FailedClause)
}

func TestCheckAccess_EmptyRequirementAllows(t *testing.T) {
	d := CheckAccess(viewer(), Require())
	require.True(t, d.Allowed)
}

func TestRequirement_And(t *testing.T) {
	base := Require(Permission(perm.ManageUsers))
	target := uuid.New()
	extended := base.And(NotSelf(target))

	s := admin()
	require.True(t, CheckAccess(s, extended).Allowed)

	// The original requirement is unchanged by And.
	selfTargeting := base.And(NotSelf(s.id))
	require.False(t, CheckAccess(s, selfTargeting).Allowed)
	require.True(t, CheckAccess(s, base).Allowed)
}

func TestCheckAccess_Deterministic(t *testing.T) {
	s := viewer()
	req := Require(Permission(perm.ManageUsers))
	for i := 0; i < 5; i++ {
		d := CheckAccess(s, req)
		require.False(t, d.Allowed)
		require.Equal(t, "manageUsers", d.FailedClause)
	}
}
