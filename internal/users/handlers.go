package users

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/planora/planora/internal/apperrors"
	"github.com/planora/planora/internal/audit"
	"github.com/planora/planora/internal/gateway"
	"github.com/planora/planora/internal/perm"
)

// HandleList handles GET /api/v1/users
func HandleList(svc *Service, gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		callerID := gateway.UserID(ctx)

		if _, err := gw.Authorize(ctx, callerID, gateway.OpListUsers, uuid.Nil); err != nil {
			gateway.WriteDenied(w, r, err)
			return
		}

		principals, err := svc.List(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list users")
			apperrors.WriteInternalError(w, r, "failed to list users")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, principals)
	}
}

// HandleGet handles GET /api/v1/users/{user_id}
func HandleGet(svc *Service, gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		callerID := gateway.UserID(ctx)

		targetID, err := uuid.Parse(r.PathValue("user_id"))
		if err != nil {
			apperrors.WriteInvalidArgument(w, r, "invalid user ID")
			return
		}

		// Viewing any account requires the same permission as listing them.
		if _, err := gw.Authorize(ctx, callerID, gateway.OpListUsers, uuid.Nil); err != nil {
			gateway.WriteDenied(w, r, err)
			return
		}

		principal, err := svc.ResolvePrincipal(ctx, targetID)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				apperrors.WriteNotFound(w, r, "user not found")
				return
			}
			log.Error().Err(err).Str("user_id", targetID.String()).Msg("Failed to get user")
			apperrors.WriteInternalError(w, r, "failed to get user")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, principal)
	}
}

// UpdateRoleRequest represents the role-change payload. Permissions may be
// omitted to fall back to the new role's default set.
type UpdateRoleRequest struct {
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// HandleUpdateRole handles PUT /api/v1/users/{user_id}/role
func HandleUpdateRole(svc *Service, gw *gateway.Gateway, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		callerID := gateway.UserID(ctx)

		targetID, err := uuid.Parse(r.PathValue("user_id"))
		if err != nil {
			apperrors.WriteInvalidArgument(w, r, "invalid user ID")
			return
		}

		var req UpdateRoleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteInvalidArgument(w, r, "invalid JSON body")
			return
		}

		newRole, ok := perm.ParseRole(req.Role)
		if !ok {
			apperrors.WriteInvalidArgument(w, r, "invalid role")
			return
		}

		var newPermissions []perm.Permission
		if req.Permissions != nil {
			newPermissions = permissionsFromStrings(req.Permissions)
		}

		var updated *Principal
		var previousRole perm.Role
		err = gw.Perform(ctx, callerID, gateway.OpUpdateUserRole, targetID, func(ctx context.Context, actor gateway.Principal) error {
			target, err := svc.ResolvePrincipal(ctx, targetID)
			if err != nil {
				return err
			}
			previousRole = target.Role

			updated, err = svc.ApplyRoleChange(ctx, actor.SubjectID(), targetID, newRole, newPermissions)
			return err
		})
		if err != nil {
			switch {
			case errors.Is(err, ErrUserNotFound):
				apperrors.WriteNotFound(w, r, "user not found")
			case errors.Is(err, ErrSelfModification):
				apperrors.WritePermissionDenied(w, r, "cannot change your own role")
			case errors.Is(err, ErrInvalidRole), errors.Is(err, ErrInvalidPermission):
				apperrors.WriteInvalidArgument(w, r, err.Error())
			default:
				gateway.WriteDenied(w, r, err)
			}
			return
		}

		if err := auditor.LogUserRoleUpdated(ctx, callerID, targetID, string(previousRole), string(newRole)); err != nil {
			log.Error().Err(err).Msg("Failed to write audit entry")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, updated)
	}
}

// SetActiveRequest represents the activate/deactivate payload
type SetActiveRequest struct {
	IsActive bool `json:"is_active"`
}

// HandleSetActive handles PUT /api/v1/users/{user_id}/active
func HandleSetActive(svc *Service, gw *gateway.Gateway, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		callerID := gateway.UserID(ctx)

		targetID, err := uuid.Parse(r.PathValue("user_id"))
		if err != nil {
			apperrors.WriteInvalidArgument(w, r, "invalid user ID")
			return
		}

		var req SetActiveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteInvalidArgument(w, r, "invalid JSON body")
			return
		}

		err = gw.Perform(ctx, callerID, gateway.OpSetUserActiveStatus, targetID, func(ctx context.Context, actor gateway.Principal) error {
			return svc.SetActive(ctx, actor.SubjectID(), targetID, req.IsActive)
		})
		if err != nil {
			switch {
			case errors.Is(err, ErrUserNotFound):
				apperrors.WriteNotFound(w, r, "user not found")
			case errors.Is(err, ErrSelfModification):
				apperrors.WritePermissionDenied(w, r, "cannot change your own active status")
			default:
				gateway.WriteDenied(w, r, err)
			}
			return
		}

		if err := auditor.LogUserActiveUpdated(ctx, callerID, targetID, req.IsActive); err != nil {
			log.Error().Err(err).Msg("Failed to write audit entry")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]bool{"is_active": req.IsActive})
	}
}

// UpdateProfileRequest represents the self-profile payload
type UpdateProfileRequest struct {
	DisplayName string `json:"display_name"`
}

// HandleUpdateProfile handles PATCH /api/v1/users/me
func HandleUpdateProfile(svc *Service, gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		callerID := gateway.UserID(ctx)

		var req UpdateProfileRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteInvalidArgument(w, r, "invalid JSON body")
			return
		}
		if req.DisplayName == "" {
			apperrors.WriteInvalidArgument(w, r, "display_name is required")
			return
		}

		err := gw.Perform(ctx, callerID, gateway.OpUpdateUserProfile, uuid.Nil, func(ctx context.Context, actor gateway.Principal) error {
			return svc.UpdateDisplayName(ctx, actor.SubjectID(), req.DisplayName)
		})
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				apperrors.WriteNotFound(w, r, "user not found")
				return
			}
			gateway.WriteDenied(w, r, err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{"display_name": req.DisplayName})
	}
}

// HandleDelete handles DELETE /api/v1/users/{user_id}
func HandleDelete(svc *Service, gw *gateway.Gateway, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		callerID := gateway.UserID(ctx)

		targetID, err := uuid.Parse(r.PathValue("user_id"))
		if err != nil {
			apperrors.WriteInvalidArgument(w, r, "invalid user ID")
			return
		}

		err = gw.Perform(ctx, callerID, gateway.OpDeleteUser, targetID, func(ctx context.Context, actor gateway.Principal) error {
			return svc.Delete(ctx, targetID)
		})
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				apperrors.WriteNotFound(w, r, "user not found")
				return
			}
			gateway.WriteDenied(w, r, err)
			return
		}

		if err := auditor.LogUserDeleted(ctx, callerID, targetID); err != nil {
			log.Error().Err(err).Msg("Failed to write audit entry")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]bool{"deleted": true})
	}
}
