package types

import "time"

// SessionEventType names a lifecycle transition broadcast to subscribers.
type SessionEventType string

const (
	SessionEventPublished   SessionEventType = "session.published"
	SessionEventUnpublished SessionEventType = "session.unpublished"
	SessionEventDeleted     SessionEventType = "session.deleted"
)

// SessionEvent is the payload published on the session events channel.
type SessionEvent struct {
	Type       SessionEventType `json:"type"`
	SessionID  string           `json:"session_id"`
	OwnerID    string           `json:"owner_id"`
	Title      string           `json:"title,omitempty"`
	Category   string           `json:"category,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}
