package notifications

import (
	"time"

	"github.com/google/uuid"
)

const (
	KindEventCreated       = "event.created"
	KindEventUpdated       = "event.updated"
	KindEventCancelled     = "event.cancelled"
	KindStakeholderAdded   = "event.stakeholder_added"
	KindStakeholderRemoved = "event.stakeholder_removed"
)

// Notification is an in-app message for one user.
type Notification struct {
	ID        uuid.UUID     `db:"id" json:"id"`
	UserID    uuid.UUID     `db:"user_id" json:"user_id"`
	EventID   uuid.NullUUID `db:"event_id" json:"event_id"`
	Kind      string        `db:"kind" json:"kind"`
	Title     string        `db:"title" json:"title"`
	Body      string        `db:"body" json:"body,omitempty"`
	ReadAt    *time.Time    `db:"read_at" json:"read_at,omitempty"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
}
