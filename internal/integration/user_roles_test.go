package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/planora/planora/internal/app"
	"github.com/planora/planora/internal/auth"
	"github.com/planora/planora/internal/perm"
	"github.com/planora/planora/internal/users"
)

func TestIntegration_ApplyRoleChange_NilPermissionsResetToDefaults(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	ctx := context.Background()
	svc := app.NewServices(pool, testConfig())

	hash, err := auth.HashPassword("password123")
	require.NoError(t, err)

	admin, err := svc.Users.Create(ctx, "admin@example.com", hash, "Admin", perm.RoleAdmin)
	require.NoError(t, err)

	target, err := svc.Users.Create(ctx, "sam@example.com", hash, "Sam", perm.RoleViewer)
	require.NoError(t, err)
	require.Equal(t, perm.DefaultPermissionsFor(perm.RoleViewer), target.Permissions)

	// Nil permissions mean "use the new role's defaults". The stored set must
	// come back exactly as the catalog defines it for the role.
	updated, err := svc.Users.ApplyRoleChange(ctx, admin.ID, target.ID, perm.RoleManager, nil)
	require.NoError(t, err)
	require.Equal(t, perm.RoleManager, updated.Role)
	require.Equal(t, perm.DefaultPermissionsFor(perm.RoleManager), updated.Permissions)

	// And the round trip through the directory sees the same set, nothing
	// stale and nothing re-derived.
	reloaded, err := svc.Users.ResolvePrincipal(ctx, target.ID)
	require.NoError(t, err)
	require.Equal(t, perm.RoleManager, reloaded.Role)
	require.Equal(t, perm.DefaultPermissionsFor(perm.RoleManager), reloaded.Permissions)
}

func TestIntegration_ApplyRoleChange_ExplicitPermissionsOverrideDefaults(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	ctx := context.Background()
	svc := app.NewServices(pool, testConfig())

	hash, err := auth.HashPassword("password123")
	require.NoError(t, err)

	admin, err := svc.Users.Create(ctx, "admin@example.com", hash, "Admin", perm.RoleAdmin)
	require.NoError(t, err)

	target, err := svc.Users.Create(ctx, "noa@example.com", hash, "Noa", perm.RoleViewer)
	require.NoError(t, err)

	// An explicit set sticks as given, even when it is narrower than the
	// role's defaults.
	custom := []perm.Permission{perm.ViewEvent, perm.ViewReports}
	updated, err := svc.Users.ApplyRoleChange(ctx, admin.ID, target.ID, perm.RoleMember, custom)
	require.NoError(t, err)
	require.Equal(t, perm.RoleMember, updated.Role)
	require.Equal(t, custom, updated.Permissions)

	reloaded, err := svc.Users.ResolvePrincipal(ctx, target.ID)
	require.NoError(t, err)
	require.Equal(t, custom, reloaded.Permissions)

	// A permission outside the catalog is rejected outright.
	_, err = svc.Users.ApplyRoleChange(ctx, admin.ID, target.ID, perm.RoleMember, []perm.Permission{"fly"})
	require.ErrorIs(t, err, users.ErrInvalidPermission)
}
