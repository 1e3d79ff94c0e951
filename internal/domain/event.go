package domain

import "time"

// EventType enumerates the contact_events kinds the pipeline understands.
// Unrecognized values are accepted (consumers treat them as "other") so the
// store schema can grow without a matching code change everywhere.
type EventType string

const (
	EventEmailOpen         EventType = "email_open"
	EventLinkClick         EventType = "link_click"
	EventFormSubmitted     EventType = "form_submitted"
	EventPurchase          EventType = "purchase"
	EventPurchaseUpgraded  EventType = "purchase_upgraded"
	EventPurchaseCancelled EventType = "purchase_cancelled"
	EventTagAdded          EventType = "tag_added"
	EventTagRemoved        EventType = "tag_removed"
	EventListJoined        EventType = "list_joined"
	EventListLeft          EventType = "list_left"
	EventPageVisited       EventType = "page_visited"
	EventEmailQueued       EventType = "email_queued"
	EventAutomationUpdate  EventType = "automation_update_field"
)

// ContactEvent is an append-only fact about a contact. occurred_at is
// monotonic per workspace for cursor purposes (spec.md §3).
type ContactEvent struct {
	ID          string                 `json:"id"`
	WorkspaceID string                 `json:"workspace_id"`
	ContactID   string                 `json:"contact_id"`
	EventType   EventType              `json:"event_type"`
	OccurredAt  time.Time              `json:"occurred_at"`
	CampaignID  *string                `json:"campaign_id,omitempty"`
	Meta        map[string]interface{} `json:"meta,omitempty"`
}

// MetaString returns a string field from Meta, or "" if absent/not a string.
func (e *ContactEvent) MetaString(key string) string {
	if e.Meta == nil {
		return ""
	}
	if v, ok := e.Meta[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Cursor tracks a per-workspace, per-consumer high-water mark over
// contact_events (spec.md §GLOSSARY).
type Cursor struct {
	WorkspaceID    string    `json:"workspace_id"`
	ID             string    `json:"id"` // one of lead_score_cursor, best_time_cursor, automation_event_cursor
	LastOccurredAt time.Time `json:"last_occurred_at"`
	LastEventID    string    `json:"last_event_id"`
	UpdatedAt      time.Time `json:"updated_at"`
}

const (
	CursorLeadScore       = "lead_score_cursor"
	CursorBestTime        = "best_time_cursor"
	CursorAutomationEvent = "automation_event_cursor"
)
