package review

import (
	"encoding/json"
	"time"
)

// EventType enumerates the append-only review ledger's event kinds.
type EventType string

const (
	EventCreated      EventType = "created"
	EventEdited       EventType = "edited"
	EventSubmitted    EventType = "submitted"
	EventApproved     EventType = "approved"
	EventRejected     EventType = "rejected"
	EventPublished    EventType = "published"
	EventArchived     EventType = "archived"
	EventReverted     EventType = "reverted"
	EventComment      EventType = "comment"
	EventQACompleted  EventType = "qa_completed"
	EventExpertSigned EventType = "expert_signed"
)

// Event is one row of the audit ledger. Events are never updated or
// deleted; they are the sole source of truth for compliance reporting.
type Event struct {
	ID         string          `db:"event_id" json:"event_id"`
	ArticleID  string          `db:"article_id" json:"article_id"`
	Revision   int             `db:"revision" json:"revision"`
	ActorID    string          `db:"actor_id" json:"actor_id"`
	ActorRole  Role            `db:"actor_role" json:"actor_role"`
	Type       EventType       `db:"event_type" json:"event_type"`
	ReasonCode string          `db:"reason_code" json:"reason_code,omitempty"`
	Rationale  string          `db:"rationale" json:"rationale,omitempty"`
	Metadata   json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// EventFilter narrows ListEvents.
type EventFilter struct {
	Type     EventType
	Revision int // 0 matches any revision
}
