package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/planora/planora/internal/app"
	"github.com/planora/planora/internal/auth"
	"github.com/planora/planora/internal/config"
	"github.com/planora/planora/internal/perm"
)

type envelopeResponse struct {
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
}

type errorEnvelope struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id"`
	} `json:"error"`
}

func testConfig() *config.Config {
	return &config.Config{
		Env:               "dev",
		HTTPAddr:          ":0",
		BaseURL:           "http://localhost",
		DBDSN:             "unused",
		JWTSecret:         "test-secret",
		LogLevel:          "error",
		LoginRateLimitRPM: 120,
		SessionDays:       7,
		InviteTTLDays:     7,
		NotifyTimeoutMS:   2000,
	}
}

func TestE2E_InviteWorkflow_Supersede_Redeem_Audit(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	cfg := testConfig()
	srv := httptest.NewServer(app.NewRouter(pool, cfg, app.NewServices(pool, cfg)))
	t.Cleanup(srv.Close)

	adminClient, adminCSRF := newCSRFClient(t, srv.URL)
	inviteeClient, inviteeCSRF := newCSRFClient(t, srv.URL)

	password := "password123"
	adminID := signupAndLogin(t, adminClient, srv.URL, adminCSRF, "admin@example.com", password)
	grantRole(t, pool, adminID, perm.RoleAdmin)
	// Sessions resolve the principal per request, so the new role is live
	// without a fresh login.

	// Create a stakeholder and invite it twice; the second invite must
	// supersede the first.
	stakeholderID := createStakeholder(t, adminClient, srv.URL, adminCSRF, "Dana Example", "dana@example.com")

	firstToken := createInvite(t, adminClient, srv.URL, adminCSRF, stakeholderID, "member")
	secondToken := createInvite(t, adminClient, srv.URL, adminCSRF, stakeholderID, "member")
	require.NotEqual(t, firstToken, secondToken)

	// The superseded token is gone; the fresh one validates.
	v := validateInvite(t, adminClient, srv.URL, firstToken)
	require.False(t, v.Valid)
	require.Equal(t, "not found", v.Reason)

	v = validateInvite(t, adminClient, srv.URL, secondToken)
	require.True(t, v.Valid)
	require.Equal(t, stakeholderID, v.StakeholderID)

	inviteeID := signupAndLogin(t, inviteeClient, srv.URL, inviteeCSRF, "dana@example.com", password)

	// Redeeming the superseded token fails and links nothing.
	errEnv := doJSONExpectError(t, inviteeClient, http.MethodPost, srv.URL+"/api/v1/invites/redeem", inviteeCSRF, http.StatusNotFound, map[string]any{
		"stakeholder_id": stakeholderID,
		"token":          firstToken,
	})
	require.Equal(t, "not_found", errEnv.Error.Code)

	// Redeeming the live token links the account with the invited role.
	redeemEnv := doJSONExpectSuccess(t, inviteeClient, http.MethodPost, srv.URL+"/api/v1/invites/redeem", inviteeCSRF, http.StatusOK, map[string]any{
		"stakeholder_id": stakeholderID,
		"token":          secondToken,
	})
	var redeemed struct {
		Role perm.Role `json:"role"`
	}
	require.NoError(t, json.Unmarshal(redeemEnv.Data, &redeemed))
	require.Equal(t, perm.RoleMember, redeemed.Role)

	st := getStakeholder(t, inviteeClient, srv.URL, stakeholderID)
	require.Equal(t, "accepted", st.InviteStatus)
	require.True(t, st.LinkedUserID.Valid)
	require.Equal(t, inviteeID, st.LinkedUserID.UUID)

	// A second redemption of the same token is rejected.
	errEnv = doJSONExpectError(t, inviteeClient, http.MethodPost, srv.URL+"/api/v1/invites/redeem", inviteeCSRF, http.StatusConflict, map[string]any{
		"stakeholder_id": stakeholderID,
		"token":          secondToken,
	})
	require.Equal(t, "conflict", errEnv.Error.Code)

	// The invitee is a member: stakeholder deletion is above their role.
	errEnv = doJSONExpectError(t, inviteeClient, http.MethodDelete, srv.URL+"/api/v1/stakeholders/"+stakeholderID.String(), inviteeCSRF, http.StatusForbidden, nil)
	require.Equal(t, "permission_denied", errEnv.Error.Code)

	// Nobody changes their own role, admins included.
	errEnv = doJSONExpectError(t, adminClient, http.MethodPut, srv.URL+"/api/v1/users/"+adminID.String()+"/role", adminCSRF, http.StatusForbidden, map[string]any{
		"role": "manager",
	})
	require.Equal(t, "permission_denied", errEnv.Error.Code)

	// The admin promotes the invitee; omitting permissions resets them to the
	// new role's defaults.
	roleEnv := doJSONExpectSuccess(t, adminClient, http.MethodPut, srv.URL+"/api/v1/users/"+inviteeID.String()+"/role", adminCSRF, http.StatusOK, map[string]any{
		"role": "manager",
	})
	var promoted struct {
		Role        perm.Role         `json:"role"`
		Permissions []perm.Permission `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal(roleEnv.Data, &promoted))
	require.Equal(t, perm.RoleManager, promoted.Role)
	require.Equal(t, perm.DefaultPermissionsFor(perm.RoleManager), promoted.Permissions)

	actions := listAuditActions(t, pool)
	require.True(t, actions["user.signup"], "missing user.signup audit entry")
	require.True(t, actions["stakeholder.created"], "missing stakeholder.created audit entry")
	require.True(t, actions["invite.created"], "missing invite.created audit entry")
	require.True(t, actions["invite.redeemed"], "missing invite.redeemed audit entry")
	require.True(t, actions["user.role_updated"], "missing user.role_updated audit entry")
}

func TestE2E_RedeemWithoutToken_FallsBackToMember(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	cfg := testConfig()
	srv := httptest.NewServer(app.NewRouter(pool, cfg, app.NewServices(pool, cfg)))
	t.Cleanup(srv.Close)

	adminClient, adminCSRF := newCSRFClient(t, srv.URL)
	inviteeClient, inviteeCSRF := newCSRFClient(t, srv.URL)

	adminID := signupAndLogin(t, adminClient, srv.URL, adminCSRF, "admin@example.com", "password123")
	grantRole(t, pool, adminID, perm.RoleAdmin)

	stakeholderID := createStakeholder(t, adminClient, srv.URL, adminCSRF, "Robin Example", "robin@example.com")
	createInvite(t, adminClient, srv.URL, adminCSRF, stakeholderID, "manager")

	signupAndLogin(t, inviteeClient, srv.URL, inviteeCSRF, "robin@example.com", "password123")

	// No token at all: the link still happens, but with the member role
	// instead of the invited manager role.
	redeemEnv := doJSONExpectSuccess(t, inviteeClient, http.MethodPost, srv.URL+"/api/v1/invites/redeem", inviteeCSRF, http.StatusOK, map[string]any{
		"stakeholder_id": stakeholderID,
	})
	var redeemed struct {
		Role perm.Role `json:"role"`
	}
	require.NoError(t, json.Unmarshal(redeemEnv.Data, &redeemed))
	require.Equal(t, perm.RoleMember, redeemed.Role)
}

func TestE2E_RedeemManagerInvite_AppliesInvitedRole(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	cfg := testConfig()
	srv := httptest.NewServer(app.NewRouter(pool, cfg, app.NewServices(pool, cfg)))
	t.Cleanup(srv.Close)

	adminClient, adminCSRF := newCSRFClient(t, srv.URL)
	inviteeClient, inviteeCSRF := newCSRFClient(t, srv.URL)

	adminID := signupAndLogin(t, adminClient, srv.URL, adminCSRF, "admin@example.com", "password123")
	grantRole(t, pool, adminID, perm.RoleAdmin)

	stakeholderID := createStakeholder(t, adminClient, srv.URL, adminCSRF, "Mira Example", "mira@example.com")
	token := createInvite(t, adminClient, srv.URL, adminCSRF, stakeholderID, "manager")

	inviteeID := signupAndLogin(t, inviteeClient, srv.URL, inviteeCSRF, "mira@example.com", "password123")

	// Redeeming with the token applies the invited role, not the member
	// fallback.
	redeemEnv := doJSONExpectSuccess(t, inviteeClient, http.MethodPost, srv.URL+"/api/v1/invites/redeem", inviteeCSRF, http.StatusOK, map[string]any{
		"stakeholder_id": stakeholderID,
		"token":          token,
	})
	var redeemed struct {
		Role perm.Role `json:"role"`
	}
	require.NoError(t, json.Unmarshal(redeemEnv.Data, &redeemed))
	require.Equal(t, perm.RoleManager, redeemed.Role)

	// The principal carries the manager role, its default permission set,
	// and the stakeholder link.
	linked := getUser(t, adminClient, srv.URL, inviteeID)
	require.Equal(t, perm.RoleManager, linked.Role)
	require.Equal(t, perm.DefaultPermissionsFor(perm.RoleManager), linked.Permissions)
	require.True(t, linked.StakeholderID.Valid)
	require.Equal(t, stakeholderID, linked.StakeholderID.UUID)

	st := getStakeholder(t, inviteeClient, srv.URL, stakeholderID)
	require.Equal(t, "accepted", st.InviteStatus)
	require.True(t, st.LinkedUserID.Valid)
	require.Equal(t, inviteeID, st.LinkedUserID.UUID)
}

func TestE2E_RedeemSecondStakeholder_AlreadyLinkedAccount(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	cfg := testConfig()
	srv := httptest.NewServer(app.NewRouter(pool, cfg, app.NewServices(pool, cfg)))
	t.Cleanup(srv.Close)

	adminClient, adminCSRF := newCSRFClient(t, srv.URL)
	inviteeClient, inviteeCSRF := newCSRFClient(t, srv.URL)

	adminID := signupAndLogin(t, adminClient, srv.URL, adminCSRF, "admin@example.com", "password123")
	grantRole(t, pool, adminID, perm.RoleAdmin)

	firstID := createStakeholder(t, adminClient, srv.URL, adminCSRF, "Kai Example", "kai@example.com")
	firstToken := createInvite(t, adminClient, srv.URL, adminCSRF, firstID, "manager")
	secondID := createStakeholder(t, adminClient, srv.URL, adminCSRF, "Kai Other", "kai.other@example.com")
	secondToken := createInvite(t, adminClient, srv.URL, adminCSRF, secondID, "member")

	inviteeID := signupAndLogin(t, inviteeClient, srv.URL, inviteeCSRF, "kai@example.com", "password123")

	doJSONExpectSuccess(t, inviteeClient, http.MethodPost, srv.URL+"/api/v1/invites/redeem", inviteeCSRF, http.StatusOK, map[string]any{
		"stakeholder_id": firstID,
		"token":          firstToken,
	})

	// The account is linked to the first stakeholder now; a second
	// redemption with a perfectly valid invite is rejected.
	errEnv := doJSONExpectError(t, inviteeClient, http.MethodPost, srv.URL+"/api/v1/invites/redeem", inviteeCSRF, http.StatusConflict, map[string]any{
		"stakeholder_id": secondID,
		"token":          secondToken,
	})
	require.Equal(t, "conflict", errEnv.Error.Code)

	// Nothing about either side changed: the first link stands, the second
	// stakeholder is still awaiting its invitee, and the manager role from
	// the first invite survives.
	linked := getUser(t, adminClient, srv.URL, inviteeID)
	require.Equal(t, perm.RoleManager, linked.Role)
	require.True(t, linked.StakeholderID.Valid)
	require.Equal(t, firstID, linked.StakeholderID.UUID)

	st := getStakeholder(t, adminClient, srv.URL, secondID)
	require.Equal(t, "pending", st.InviteStatus)
	require.False(t, st.LinkedUserID.Valid)

	v := validateInvite(t, adminClient, srv.URL, secondToken)
	require.True(t, v.Valid)
}

func grantRole(t *testing.T, pool *pgxpool.Pool, userID uuid.UUID, role perm.Role) {
	t.Helper()

	permissions := perm.DefaultPermissionsFor(role)
	permStrings := make([]string, len(permissions))
	for i, p := range permissions {
		permStrings[i] = string(p)
	}

	tag, err := pool.Exec(context.Background(), `
		UPDATE users SET role = $2, permissions = $3, updated_at = NOW() WHERE id = $1
	`, userID, string(role), permStrings)
	require.NoError(t, err)
	require.EqualValues(t, 1, tag.RowsAffected())
}

func newCSRFClient(t *testing.T, serverURL string) (*http.Client, string) {
	t.Helper()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar}

	baseURL, err := url.Parse(serverURL)
	require.NoError(t, err)

	csrfToken, err := auth.GenerateCSRFToken()
	require.NoError(t, err)
	jar.SetCookies(baseURL, []*http.Cookie{{
		Name:  auth.CSRFCookieName,
		Value: csrfToken,
		Path:  "/",
	}})

	return client, csrfToken
}

func signupAndLogin(t *testing.T, client *http.Client, baseURL, csrfToken, email, password string) uuid.UUID {
	t.Helper()

	signupEnv := doJSONExpectSuccess(t, client, http.MethodPost, baseURL+"/api/v1/auth/signup", csrfToken, http.StatusCreated, map[string]any{
		"email":        email,
		"password":     password,
		"display_name": email,
	})

	var principal struct {
		ID uuid.UUID `json:"id"`
	}
	require.NoError(t, json.Unmarshal(signupEnv.Data, &principal))
	require.NotEqual(t, uuid.Nil, principal.ID)

	doJSONExpectSuccess(t, client, http.MethodPost, baseURL+"/api/v1/auth/login", csrfToken, http.StatusOK, map[string]any{
		"email":    email,
		"password": password,
	})

	return principal.ID
}

func createStakeholder(t *testing.T, client *http.Client, baseURL, csrfToken, name, email string) uuid.UUID {
	t.Helper()

	env := doJSONExpectSuccess(t, client, http.MethodPost, baseURL+"/api/v1/stakeholders", csrfToken, http.StatusCreated, map[string]any{
		"name":  name,
		"email": email,
		"type":  "person",
	})

	var st struct {
		ID uuid.UUID `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &st))
	require.NotEqual(t, uuid.Nil, st.ID)

	return st.ID
}

func createInvite(t *testing.T, client *http.Client, baseURL, csrfToken string, stakeholderID uuid.UUID, role string) string {
	t.Helper()

	env := doJSONExpectSuccess(t, client, http.MethodPost, baseURL+"/api/v1/stakeholders/"+stakeholderID.String()+"/invite", csrfToken, http.StatusCreated, map[string]any{
		"role": role,
	})

	var invite struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &invite))
	require.NotEmpty(t, invite.Token)

	return invite.Token
}

type validationResult struct {
	Valid         bool      `json:"valid"`
	Reason        string    `json:"reason"`
	StakeholderID uuid.UUID `json:"stakeholder_id"`
}

func validateInvite(t *testing.T, client *http.Client, baseURL, token string) validationResult {
	t.Helper()

	resp, err := client.Get(baseURL + "/api/v1/invites/validate?token=" + url.QueryEscape(token))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", string(body))

	var env envelopeResponse
	require.NoError(t, json.Unmarshal(body, &env))

	var v validationResult
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

type stakeholderView struct {
	ID           uuid.UUID     `json:"id"`
	InviteStatus string        `json:"invite_status"`
	LinkedUserID uuid.NullUUID `json:"linked_user_id"`
}

func getStakeholder(t *testing.T, client *http.Client, baseURL string, id uuid.UUID) stakeholderView {
	t.Helper()

	resp, err := client.Get(baseURL + "/api/v1/stakeholders/" + id.String())
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", string(body))

	var env envelopeResponse
	require.NoError(t, json.Unmarshal(body, &env))

	var st stakeholderView
	require.NoError(t, json.Unmarshal(env.Data, &st))
	return st
}

type userView struct {
	ID            uuid.UUID         `json:"id"`
	Role          perm.Role         `json:"role"`
	Permissions   []perm.Permission `json:"permissions"`
	StakeholderID uuid.NullUUID     `json:"stakeholder_id"`
}

func getUser(t *testing.T, client *http.Client, baseURL string, id uuid.UUID) userView {
	t.Helper()

	resp, err := client.Get(baseURL + "/api/v1/users/" + id.String())
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", string(body))

	var env envelopeResponse
	require.NoError(t, json.Unmarshal(body, &env))

	var u userView
	require.NoError(t, json.Unmarshal(env.Data, &u))
	return u
}

func listAuditActions(t *testing.T, pool *pgxpool.Pool) map[string]bool {
	t.Helper()

	rows, err := pool.Query(context.Background(), `SELECT action FROM audit_log`)
	require.NoError(t, err)
	defer rows.Close()

	actions := make(map[string]bool)
	for rows.Next() {
		var action string
		require.NoError(t, rows.Scan(&action))
		actions[action] = true
	}
	require.NoError(t, rows.Err())

	return actions
}

func doJSONExpectSuccess(t *testing.T, client *http.Client, method, urlStr, csrfToken string, wantStatus int, payload any) envelopeResponse {
	t.Helper()

	respBody := doJSONExpectStatus(t, client, method, urlStr, csrfToken, wantStatus, payload)

	var env envelopeResponse
	require.NoError(t, json.Unmarshal(respBody, &env))
	require.NotEmpty(t, env.RequestID)

	return env
}

func doJSONExpectError(t *testing.T, client *http.Client, method, urlStr, csrfToken string, wantStatus int, payload any) errorEnvelope {
	t.Helper()

	respBody := doJSONExpectStatus(t, client, method, urlStr, csrfToken, wantStatus, payload)

	var env errorEnvelope
	require.NoError(t, json.Unmarshal(respBody, &env))
	require.NotEmpty(t, env.Error.RequestID)

	return env
}

func doJSONExpectStatus(t *testing.T, client *http.Client, method, urlStr, csrfToken string, wantStatus int, payload any) []byte {
	t.Helper()

	var bodyReader io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, urlStr, bodyReader)
	require.NoError(t, err)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		req.Header.Set(auth.CSRFHeaderName, csrfToken)
	}

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, wantStatus, resp.StatusCode, "body: %s", string(body))

	return body
}
