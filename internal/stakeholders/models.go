package stakeholders

import (
	"time"

	"github.com/google/uuid"
)

// InviteStatus tracks where a stakeholder sits in the invitation workflow.
// Only the invitation workflow mutates it.
type InviteStatus string

const (
	InviteNotInvited InviteStatus = "notInvited"
	InvitePending    InviteStatus = "pending"
	InviteAccepted   InviteStatus = "accepted"
	InviteExpired    InviteStatus = "expired"
)

// Stakeholder is a contact entity independent of any login until an invite
// is redeemed. Invariant: LinkedUserID is set exactly when InviteStatus is
// accepted.
type Stakeholder struct {
	ID                  uuid.UUID     `db:"id" json:"id"`
	Name                string        `db:"name" json:"name"`
	Email               string        `db:"email" json:"email"`
	Phone               string        `db:"phone" json:"phone,omitempty"`
	Organization        string        `db:"organization" json:"organization,omitempty"`
	Type                string        `db:"type" json:"type"`
	RelationshipType    string        `db:"relationship_type" json:"relationship_type"`
	ParticipationStatus string        `db:"participation_status" json:"participation_status"`
	EventIDs            []uuid.UUID   `db:"event_ids" json:"event_ids"`
	LinkedUserID        uuid.NullUUID `db:"linked_user_id" json:"linked_user_id"`
	InviteStatus        InviteStatus  `db:"invite_status" json:"invite_status"`
	InvitedAt           *time.Time    `db:"invited_at" json:"invited_at,omitempty"`
	CreatedByUserID     uuid.NullUUID `db:"created_by_user_id" json:"created_by_user_id"`
	CreatedAt           time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time     `db:"updated_at" json:"updated_at"`
}

// UpdateParams carries the caller-editable stakeholder fields. Nil pointers
// leave the stored value unchanged. The invite fields are absent on purpose:
// they belong to the invitation workflow.
type UpdateParams struct {
	Name                *string `json:"name"`
	Email               *string `json:"email"`
	Phone               *string `json:"phone"`
	Organization        *string `json:"organization"`
	Type                *string `json:"type"`
	RelationshipType    *string `json:"relationship_type"`
	ParticipationStatus *string `json:"participation_status"`
}
