package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/planora/planora/internal/app"
	"github.com/planora/planora/internal/auth"
	"github.com/planora/planora/internal/invites"
	"github.com/planora/planora/internal/perm"
	"github.com/planora/planora/internal/stakeholders"
)

func TestIntegration_ExpireSweep_MarksLapsedInvites(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	ctx := context.Background()
	svc := app.NewServices(pool, testConfig())

	hash, err := auth.HashPassword("password123")
	require.NoError(t, err)

	admin, err := svc.Users.Create(ctx, "admin@example.com", hash, "Admin", perm.RoleAdmin)
	require.NoError(t, err)

	email := "lee@example.com"
	st, err := svc.Stakeholders.Create(ctx, admin.ID, stakeholders.CreateParams{
		Name:  "Lee Example",
		Email: email,
	})
	require.NoError(t, err)

	_, token, err := svc.Invites.Create(ctx, admin.ID, st.ID, perm.RoleMember)
	require.NoError(t, err)

	// Nothing has lapsed yet.
	swept, err := svc.Invites.ExpireSweep(ctx)
	require.NoError(t, err)
	require.Zero(t, swept)

	// Push the invite into the past and sweep again.
	_, err = pool.Exec(ctx, `UPDATE invites SET expires_at = NOW() - INTERVAL '1 hour' WHERE stakeholder_id = $1`, st.ID)
	require.NoError(t, err)

	swept, err = svc.Invites.ExpireSweep(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, swept)

	reloaded, err := svc.Stakeholders.GetByID(ctx, st.ID)
	require.NoError(t, err)
	require.Equal(t, stakeholders.InviteExpired, reloaded.InviteStatus)

	// The token still classifies as expired, and redemption with it
	// changes nothing.
	v, err := svc.Invites.Validate(ctx, token)
	require.NoError(t, err)
	require.False(t, v.Valid)
	require.Equal(t, invites.ReasonExpired, v.Reason)

	invitee, err := svc.Users.Create(ctx, email, hash, "Lee", perm.RoleViewer)
	require.NoError(t, err)

	_, err = svc.Invites.Redeem(ctx, invitee.ID, st.ID, token)
	require.ErrorIs(t, err, invites.ErrInviteExpired)

	reloaded, err = svc.Stakeholders.GetByID(ctx, st.ID)
	require.NoError(t, err)
	require.False(t, reloaded.LinkedUserID.Valid)

	// A sweep is idempotent.
	swept, err = svc.Invites.ExpireSweep(ctx)
	require.NoError(t, err)
	require.Zero(t, swept)
}
