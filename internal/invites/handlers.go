package invites

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/planora/planora/internal/apperrors"
	"github.com/planora/planora/internal/audit"
	"github.com/planora/planora/internal/gateway"
	"github.com/planora/planora/internal/notify"
	"github.com/planora/planora/internal/perm"
	"github.com/planora/planora/internal/stakeholders"
)

// CreateRequest represents the invitation payload. Role is the role the
// future account starts with; omitted means member.
type CreateRequest struct {
	Role string `json:"role"`
}

// CreateResponse carries the one time the plaintext token is ever visible.
type CreateResponse struct {
	StakeholderID uuid.UUID `json:"stakeholder_id"`
	Email         string    `json:"email"`
	Role          perm.Role `json:"role"`
	Token         string    `json:"token"`
	AcceptURL     string    `json:"accept_url"`
	ExpiresAt     string    `json:"expires_at"`
}

// HandleCreate handles POST /api/v1/stakeholders/{stakeholder_id}/invite.
// Re-inviting supersedes any open invite for the stakeholder.
func HandleCreate(svc *Service, stakeholderSvc *stakeholders.Service, gw *gateway.Gateway, auditor *audit.Writer, notifier *notify.Client, baseURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		callerID := gateway.UserID(ctx)

		stakeholderID, err := uuid.Parse(r.PathValue("stakeholder_id"))
		if err != nil {
			apperrors.WriteInvalidArgument(w, r, "invalid stakeholder ID")
			return
		}

		var req CreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteInvalidArgument(w, r, "invalid JSON body")
			return
		}

		role := perm.RoleMember
		if req.Role != "" {
			parsed, ok := perm.ParseRole(req.Role)
			if !ok {
				apperrors.WriteInvalidArgument(w, r, "invalid role")
				return
			}
			role = parsed
		}

		var invite *Invite
		var token string
		err = gw.Perform(ctx, callerID, gateway.OpInviteStakeholder, stakeholderID, func(ctx context.Context, actor gateway.Principal) error {
			var err error
			invite, token, err = svc.Create(ctx, actor.SubjectID(), stakeholderID, role)
			return err
		})
		if err != nil {
			switch {
			case errors.Is(err, stakeholders.ErrStakeholderNotFound):
				apperrors.WriteNotFound(w, r, "stakeholder not found")
			case errors.Is(err, ErrInvalidRole), errors.Is(err, ErrCannotInviteRoot):
				apperrors.WriteInvalidArgument(w, r, err.Error())
			case errors.Is(err, ErrAlreadyLinked):
				apperrors.WriteConflict(w, r, "stakeholder already linked to an account")
			default:
				gateway.WriteDenied(w, r, err)
			}
			return
		}

		if err := auditor.LogInviteCreated(ctx, callerID, stakeholderID, invite.Email, string(role)); err != nil {
			log.Error().Err(err).Msg("Failed to write audit entry")
		}

		acceptURL := fmt.Sprintf("%s/invite/accept?token=%s", baseURL, token)

		st, err := stakeholderSvc.GetByID(ctx, stakeholderID)
		if err != nil {
			log.Error().Err(err).Str("stakeholder_id", stakeholderID.String()).Msg("Failed to reload stakeholder after invite")
		} else {
			notifier.PostInviteCreated(ctx, notify.InviteMessage{
				StakeholderName: st.Name,
				Email:           invite.Email,
				Role:            string(role),
				AcceptURL:       acceptURL,
				ExpiresAt:       invite.ExpiresAt.Format("2006-01-02"),
			})
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, CreateResponse{
			StakeholderID: stakeholderID,
			Email:         invite.Email,
			Role:          role,
			Token:         token,
			AcceptURL:     acceptURL,
			ExpiresAt:     invite.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
}

// HandleValidate handles GET /api/v1/invites/validate?token=...
// It never mutates anything and is safe to call repeatedly; an invalid
// token is a 200 with valid=false, not an error.
func HandleValidate(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			apperrors.WriteInvalidArgument(w, r, "token is required")
			return
		}

		result, err := svc.Validate(r.Context(), token)
		if err != nil {
			log.Error().Err(err).Msg("Failed to validate invite")
			apperrors.WriteInternalError(w, r, "failed to validate invite")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, result)
	}
}

// RedeemRequest represents the redemption payload. Token may be empty when
// the signup flow lost it; redemption then proceeds with the member role.
type RedeemRequest struct {
	StakeholderID uuid.UUID `json:"stakeholder_id"`
	Token         string    `json:"token"`
}

// RedeemResponse reports the role granted by redemption.
type RedeemResponse struct {
	StakeholderID uuid.UUID `json:"stakeholder_id"`
	Role          perm.Role `json:"role"`
}

// HandleRedeem handles POST /api/v1/invites/redeem. The caller must be
// authenticated; no permission is required beyond holding the token.
func HandleRedeem(svc *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := gateway.UserID(ctx)
		if userID == uuid.Nil {
			apperrors.WriteUnauthenticated(w, r, "authentication required")
			return
		}

		var req RedeemRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteInvalidArgument(w, r, "invalid JSON body")
			return
		}
		if req.StakeholderID == uuid.Nil {
			apperrors.WriteInvalidArgument(w, r, "stakeholder_id is required")
			return
		}

		role, err := svc.Redeem(ctx, userID, req.StakeholderID, req.Token)
		if err != nil {
			switch {
			case errors.Is(err, stakeholders.ErrStakeholderNotFound):
				apperrors.WriteNotFound(w, r, "stakeholder not found")
			case errors.Is(err, ErrInviteNotFound):
				apperrors.WriteNotFound(w, r, "invite not found")
			case errors.Is(err, ErrInviteUsed):
				apperrors.WriteConflict(w, r, "invite already used")
			case errors.Is(err, ErrInviteExpired):
				apperrors.WriteConflict(w, r, "invite expired")
			case errors.Is(err, ErrInviteSuperseded):
				apperrors.WriteConflict(w, r, "invite superseded by a newer invite")
			case errors.Is(err, ErrAlreadyLinked):
				apperrors.WriteConflict(w, r, "stakeholder already linked to an account")
			case errors.Is(err, ErrUserAlreadyLinked):
				apperrors.WriteConflict(w, r, "account already linked to a stakeholder")
			default:
				log.Error().Err(err).Str("stakeholder_id", req.StakeholderID.String()).Msg("Failed to redeem invite")
				apperrors.WriteInternalError(w, r, "failed to redeem invite")
			}
			return
		}

		if err := auditor.LogInviteRedeemed(ctx, userID, req.StakeholderID, string(role), req.Token != ""); err != nil {
			log.Error().Err(err).Msg("Failed to write audit entry")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, RedeemResponse{
			StakeholderID: req.StakeholderID,
			Role:          role,
		})
	}
}
