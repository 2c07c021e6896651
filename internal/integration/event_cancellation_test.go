package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/planora/planora/internal/app"
	"github.com/planora/planora/internal/perm"
)

func TestE2E_DeleteEvent_CancellationNoticesSurviveTheDelete(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	cfg := testConfig()
	srv := httptest.NewServer(app.NewRouter(pool, cfg, app.NewServices(pool, cfg)))
	t.Cleanup(srv.Close)

	adminClient, adminCSRF := newCSRFClient(t, srv.URL)
	inviteeClient, inviteeCSRF := newCSRFClient(t, srv.URL)

	adminID := signupAndLogin(t, adminClient, srv.URL, adminCSRF, "admin@example.com", "password123")
	grantRole(t, pool, adminID, perm.RoleAdmin)

	// A linked stakeholder assigned to the event is who the cancellation
	// must reach.
	stakeholderID := createStakeholder(t, adminClient, srv.URL, adminCSRF, "Joss Example", "joss@example.com")
	token := createInvite(t, adminClient, srv.URL, adminCSRF, stakeholderID, "member")
	inviteeID := signupAndLogin(t, inviteeClient, srv.URL, inviteeCSRF, "joss@example.com", "password123")
	doJSONExpectSuccess(t, inviteeClient, http.MethodPost, srv.URL+"/api/v1/invites/redeem", inviteeCSRF, http.StatusOK, map[string]any{
		"stakeholder_id": stakeholderID,
		"token":          token,
	})

	eventEnv := doJSONExpectSuccess(t, adminClient, http.MethodPost, srv.URL+"/api/v1/events", adminCSRF, http.StatusCreated, map[string]any{
		"title": "Quarterly planning",
	})
	var event struct {
		ID uuid.UUID `json:"id"`
	}
	require.NoError(t, json.Unmarshal(eventEnv.Data, &event))

	doJSONExpectSuccess(t, adminClient, http.MethodPost, srv.URL+"/api/v1/events/"+event.ID.String()+"/stakeholders", adminCSRF, http.StatusCreated, map[string]any{
		"stakeholder_id": stakeholderID,
	})

	doJSONExpectSuccess(t, adminClient, http.MethodDelete, srv.URL+"/api/v1/events/"+event.ID.String(), adminCSRF, http.StatusOK, nil)

	// Deleting the event cascades away its notification rows, so the
	// cancellation notice must be written after the delete and without an
	// event reference, or the linked user never sees it.
	require.EqualValues(t, 1, countCancellations(t, pool, inviteeID))

	// Deleting an already-deleted event reports not found and fans out
	// nothing further.
	errEnv := doJSONExpectError(t, adminClient, http.MethodDelete, srv.URL+"/api/v1/events/"+event.ID.String(), adminCSRF, http.StatusNotFound, nil)
	require.Equal(t, "not_found", errEnv.Error.Code)
	require.EqualValues(t, 1, countCancellations(t, pool, inviteeID))
}

func countCancellations(t *testing.T, pool *pgxpool.Pool, userID uuid.UUID) int64 {
	t.Helper()

	var n int64
	err := pool.QueryRow(context.Background(), `
		SELECT COUNT(*) FROM notifications
		WHERE user_id = $1 AND kind = 'event.cancelled' AND event_id IS NULL
	`, userID).Scan(&n)
	require.NoError(t, err)
	return n
}
