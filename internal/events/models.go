package events

import (
	"time"

	"github.com/google/uuid"
)

// Event is the object most permissions protect. StakeholderIDs mirrors the
// stakeholder side's event_ids array; the two are only ever written together
// through the paired-update operations in this package.
type Event struct {
	ID             uuid.UUID     `db:"id" json:"id"`
	OwnerID        uuid.NullUUID `db:"owner_id" json:"owner_id"`
	Title          string        `db:"title" json:"title"`
	Description    string        `db:"description" json:"description,omitempty"`
	Location       string        `db:"location" json:"location,omitempty"`
	StartsAt       *time.Time    `db:"starts_at" json:"starts_at,omitempty"`
	EndsAt         *time.Time    `db:"ends_at" json:"ends_at,omitempty"`
	StakeholderIDs []uuid.UUID   `db:"stakeholder_ids" json:"stakeholder_ids"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// EventStakeholder is the per-event role/status record for an assigned
// stakeholder.
type EventStakeholder struct {
	EventID       uuid.UUID `db:"event_id" json:"event_id"`
	StakeholderID uuid.UUID `db:"stakeholder_id" json:"stakeholder_id"`
	Role          string    `db:"role" json:"role"`
	Status        string    `db:"status" json:"status"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// CreateParams carries the fields for a new event.
type CreateParams struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Location    string     `json:"location"`
	StartsAt    *time.Time `json:"starts_at"`
	EndsAt      *time.Time `json:"ends_at"`
}

// UpdateParams carries caller-editable event fields; nil leaves a field
// unchanged. Stakeholder assignment goes through the paired-update
// operations, never through here.
type UpdateParams struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Location    *string    `json:"location"`
	StartsAt    *time.Time `json:"starts_at"`
	EndsAt      *time.Time `json:"ends_at"`
}
