package perm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultPermissionsFor_ViewerIsViewOnly(t *testing.T) {
	require.Equal(t, []Permission{ViewEvent, ViewStakeholder}, DefaultPermissionsFor(RoleViewer))
}

func TestDefaultPermissionsFor_Stable(t *testing.T) {
	for _, role := range Roles {
		first := DefaultPermissionsFor(role)
		for i := 0; i < 10; i++ {
			require.Equal(t, first, DefaultPermissionsFor(role), "role %s", role)
		}
	}
}

func TestDefaultPermissionsFor_Subsets(t *testing.T) {
	// Each role's default set strictly contains the next lower role's set.
	contains := func(set []Permission, p Permission) bool {
		for _, have := range set {
			if have == p {
				return true
			}
		}
		return false
	}

	for i := 0; i < len(Roles)-1; i++ {
		higher := DefaultPermissionsFor(Roles[i])
		lower := DefaultPermissionsFor(Roles[i+1])
		require.Greater(t, len(higher), len(lower))
		for _, p := range lower {
			require.True(t, contains(higher, p), "%s missing %s from %s", Roles[i], p, Roles[i+1])
		}
	}
}

func TestDefaultPermissionsFor_UnknownRoleFallsBackToViewer(t *testing.T) {
	require.Equal(t, DefaultPermissionsFor(RoleViewer), DefaultPermissionsFor(Role("superuser")))
	require.Equal(t, DefaultPermissionsFor(RoleViewer), DefaultPermissionsFor(Role("")))
}

func TestDefaultPermissionsFor_AllPermissionsValid(t *testing.T) {
	for _, role := range Roles {
		for _, p := range DefaultPermissionsFor(role) {
			require.True(t, p.IsValid(), "role %s yields unknown permission %s", role, p)
		}
	}
}

func TestDefaultPermissionsFor_RootHasEverything(t *testing.T) {
	got := DefaultPermissionsFor(RoleRoot)
	require.Len(t, got, len(All))
	for _, p := range All {
		require.Contains(t, got, p)
	}
}

func TestRoleLevelOrdering(t *testing.T) {
	require.Equal(t, 5, RoleRoot.Level())
	require.Equal(t, 4, RoleAdmin.Level())
	require.Equal(t, 3, RoleManager.Level())
	require.Equal(t, 2, RoleMember.Level())
	require.Equal(t, 1, RoleViewer.Level())
	require.Equal(t, 0, Role("intern").Level())

	require.True(t, RoleAdmin.AtLeast(RoleManager))
	require.True(t, RoleAdmin.AtLeast(RoleAdmin))
	require.False(t, RoleMember.AtLeast(RoleManager))
	require.False(t, Role("intern").AtLeast(RoleViewer))
}

func TestParseRole(t *testing.T) {
	role, ok := ParseRole("manager")
	require.True(t, ok)
	require.Equal(t, RoleManager, role)

	_, ok = ParseRole("MANAGER")
	require.False(t, ok)

	_, ok = ParseRole("")
	require.False(t, ok)
}
