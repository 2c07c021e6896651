package auth

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/planora/planora/internal/apperrors"
	"github.com/planora/planora/internal/audit"
	"github.com/planora/planora/internal/gateway"
	"github.com/planora/planora/internal/perm"
	"github.com/planora/planora/internal/users"
)

// Handlers bundles the authentication endpoints and their dependencies.
type Handlers struct {
	users        *users.Service
	gateway      *gateway.Gateway
	audit        *audit.Writer
	jwtSecret    string
	sessionDays  int
	isProduction bool
}

// NewHandlers creates the authentication handler set.
func NewHandlers(usersSvc *users.Service, gw *gateway.Gateway, auditWriter *audit.Writer, jwtSecret string, sessionDays int, isProduction bool) *Handlers {
	return &Handlers{
		users:        usersSvc,
		gateway:      gw,
		audit:        auditWriter,
		jwtSecret:    jwtSecret,
		sessionDays:  sessionDays,
		isProduction: isProduction,
	}
}

// SignupRequest represents the signup request payload
type SignupRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role,omitempty"`
}

// HandleSignup processes user registration. A role other than the default
// may only be requested by an authenticated caller who passes the
// user-management gateway check; anonymous signups always get the least
// privileged role.
func (h *Handlers) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteInvalidArgument(w, r, "invalid JSON body")
		return
	}

	email := strings.TrimSpace(req.Email)
	if !isValidEmail(email) {
		apperrors.WriteInvalidArgument(w, r, "invalid email address")
		return
	}

	if len(req.Password) < 8 {
		apperrors.WriteInvalidArgument(w, r, "password must be at least 8 characters")
		return
	}

	role := perm.Role(strings.TrimSpace(req.Role))
	if role != "" && role != perm.RoleViewer {
		if !role.IsValid() {
			apperrors.WriteInvalidArgument(w, r, "invalid role")
			return
		}
		callerID := gateway.UserID(r.Context())
		if _, err := h.gateway.Authorize(r.Context(), callerID, gateway.OpCreateUserWithRole, uuid.Nil); err != nil {
			gateway.WriteDenied(w, r, err)
			return
		}
	}

	passwordHash, err := HashPassword(req.Password)
	if err != nil {
		log.Error().Err(err).Msg("Failed to hash password")
		apperrors.WriteInternalError(w, r, "failed to create account")
		return
	}

	principal, err := h.users.Create(r.Context(), email, passwordHash, strings.TrimSpace(req.DisplayName), role)
	if err != nil {
		if errors.Is(err, users.ErrEmailTaken) {
			apperrors.WriteConflict(w, r, "email address already registered")
			return
		}
		if errors.Is(err, users.ErrInvalidRole) {
			apperrors.WriteInvalidArgument(w, r, "invalid role")
			return
		}
		log.Error().Err(err).Str("email", email).Msg("Failed to create user")
		apperrors.WriteInternalError(w, r, "failed to create account")
		return
	}

	if err := h.audit.LogUserSignup(r.Context(), principal.ID, principal.Email); err != nil {
		log.Error().Err(err).Str("user_id", principal.ID.String()).Msg("Failed to write audit entry")
		// Don't fail the signup if the audit write fails
	}

	token, err := CreateToken(principal.ID, h.jwtSecret, h.sessionDays)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create token")
		apperrors.WriteInternalError(w, r, "failed to create session")
		return
	}

	SetSessionCookie(w, token, h.sessionDays, h.isProduction)

	log.Info().
		Str("user_id", principal.ID.String()).
		Str("email", principal.Email).
		Str("role", string(principal.Role)).
		Msg("User signed up successfully")

	apperrors.WriteSuccess(w, r, http.StatusCreated, principal)
}

// LoginRequest represents the login request payload
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleLogin processes user authentication. Unknown email, wrong password,
// and deactivated account all return the same generic error.
func (h *Handlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteInvalidArgument(w, r, "invalid JSON body")
		return
	}

	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		apperrors.WriteUnauthenticated(w, r, "invalid credentials")
		return
	}

	principal, passwordHash, err := h.users.GetByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			log.Debug().Str("email", email).Msg("Login failed: user not found")
			h.logLoginFailed(r, email)
			apperrors.WriteUnauthenticated(w, r, "invalid credentials")
			return
		}
		log.Error().Err(err).Str("email", email).Msg("Failed to query user")
		apperrors.WriteInternalError(w, r, "login failed")
		return
	}

	if err := VerifyPassword(passwordHash, req.Password); err != nil {
		log.Debug().Str("email", email).Msg("Login failed: wrong password")
		h.logLoginFailed(r, email)
		apperrors.WriteUnauthenticated(w, r, "invalid credentials")
		return
	}

	if !principal.IsActive {
		log.Debug().Str("email", email).Msg("Login failed: account deactivated")
		h.logLoginFailed(r, email)
		apperrors.WriteUnauthenticated(w, r, "invalid credentials")
		return
	}

	token, err := CreateToken(principal.ID, h.jwtSecret, h.sessionDays)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create token")
		apperrors.WriteInternalError(w, r, "failed to create session")
		return
	}

	SetSessionCookie(w, token, h.sessionDays, h.isProduction)

	log.Info().
		Str("user_id", principal.ID.String()).
		Str("email", principal.Email).
		Msg("User logged in successfully")

	apperrors.WriteSuccess(w, r, http.StatusOK, principal)
}

// HandleLogout clears the session cookie.
func (h *Handlers) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ClearSessionCookie(w)

	userID := gateway.UserID(r.Context())
	if userID != uuid.Nil {
		log.Info().Str("user_id", userID.String()).Msg("User logged out")
	}

	apperrors.WriteSuccess(w, r, http.StatusOK, map[string]bool{"logged_out": true})
}

// HandleMe returns the authenticated caller's own principal.
func (h *Handlers) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID := gateway.UserID(r.Context())
	if userID == uuid.Nil {
		apperrors.WriteUnauthenticated(w, r, "authentication required")
		return
	}

	principal, err := h.users.ResolvePrincipal(r.Context(), userID)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			ClearSessionCookie(w)
			apperrors.WriteUnauthenticated(w, r, "authentication required")
			return
		}
		log.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to resolve principal")
		apperrors.WriteInternalError(w, r, "failed to load account")
		return
	}

	apperrors.WriteSuccess(w, r, http.StatusOK, principal)
}

func (h *Handlers) logLoginFailed(r *http.Request, email string) {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	if err := h.audit.LogLoginFailed(r.Context(), email, ip); err != nil {
		log.Error().Err(err).Msg("Failed to write audit entry")
	}
}

// isValidEmail validates email format using net/mail (RFC 5322 simplified)
func isValidEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}
