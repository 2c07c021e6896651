package invites

import (
	"time"

	"github.com/google/uuid"
	"github.com/planora/planora/internal/perm"
)

// Invite is a single-use, time-limited credential linking a stakeholder to
// a future user account. It is keyed by the SHA-256 hash of its token; the
// used flag moves false→true exactly once and never back.
type Invite struct {
	TokenHash       []byte        `db:"token_hash"`
	StakeholderID   uuid.UUID     `db:"stakeholder_id"`
	Email           string        `db:"email"`
	DefaultRole     perm.Role     `db:"default_role"`
	CreatedByUserID uuid.NullUUID `db:"created_by_user_id"`
	CreatedAt       time.Time     `db:"created_at"`
	ExpiresAt       time.Time     `db:"expires_at"`
	UsedAt          *time.Time    `db:"used_at"`
}

// Validation reason strings are fixed so the client can give actionable
// feedback ("this invite has expired" vs "this invite was already used").
const (
	ReasonNotFound    = "not found"
	ReasonAlreadyUsed = "already used"
	ReasonExpired     = "expired"
)

// Validation is the result of checking a token without redeeming it.
type Validation struct {
	Valid         bool      `json:"valid"`
	Reason        string    `json:"reason,omitempty"`
	Email         string    `json:"email,omitempty"`
	StakeholderID uuid.UUID `json:"stakeholder_id,omitempty"`
	DefaultRole   perm.Role `json:"default_role,omitempty"`
}

// classify returns the empty string when the invite is redeemable at now,
// or the fixed reason string otherwise. A used invite stays "already used"
// even past its expiry.
func classify(inv *Invite, now time.Time) string {
	if inv == nil {
		return ReasonNotFound
	}
	if inv.UsedAt != nil {
		return ReasonAlreadyUsed
	}
	if !inv.ExpiresAt.After(now) {
		return ReasonExpired
	}
	return ""
}
