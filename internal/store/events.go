package store

import (
	"context"

	"github.com/flowmail/flowmail-core/internal/domain"
)

// ContactEventRepository reads and appends contact_events rows.
type ContactEventRepository struct {
	client *Client
}

// NewContactEventRepository builds a ContactEventRepository over the shared Client.
func NewContactEventRepository(client *Client) *ContactEventRepository {
	return &ContactEventRepository{client: client}
}

// Append inserts one event.
func (r *ContactEventRepository) Append(ctx context.Context, event *domain.ContactEvent) error {
	var created []domain.ContactEvent
	if err := r.client.Insert(ctx, "contact_events", event, &created); err != nil {
		return err
	}
	if len(created) > 0 {
		*event = created[0]
	}
	return nil
}

// ListSince fetches events strictly after a cursor's (last_occurred_at,
// last_event_id) high-water mark, ordered so the caller can advance the
// cursor monotonically (spec.md §GLOSSARY: cursor).
func (r *ContactEventRepository) ListSince(ctx context.Context, workspaceID string, cursor domain.Cursor, eventTypes []string, limit int) ([]domain.ContactEvent, error) {
	opts := []Option{
		WithFilter("workspace_id", "eq", workspaceID),
		WithFilter("occurred_at", "gte", cursor.LastOccurredAt.Format("2006-01-02T15:04:05.999999999Z07:00")),
		WithOrder("occurred_at.asc,id.asc"),
	}
	if len(eventTypes) > 0 {
		opts = append(opts, WithFilter("event_type", "in", inList(eventTypes)))
	}
	if limit > 0 {
		opts = append(opts, WithLimit(limit))
	}

	var rows []domain.ContactEvent
	if err := r.client.Select(ctx, "contact_events", &rows, opts...); err != nil {
		return nil, err
	}

	// The >= filter includes events at exactly LastOccurredAt; drop any whose
	// id we've already consumed so the cursor only ever moves forward.
	out := rows[:0]
	skippingTie := cursor.LastEventID != ""
	for _, ev := range rows {
		if skippingTie && ev.OccurredAt.Equal(cursor.LastOccurredAt) {
			if ev.ID == cursor.LastEventID {
				skippingTie = false
			}
			continue
		}
		skippingTie = false
		out = append(out, ev)
	}
	return out, nil
}

// CursorRepository reads and advances per-workspace consumer cursors.
type CursorRepository struct {
	client *Client
}

// NewCursorRepository builds a CursorRepository over the shared Client.
func NewCursorRepository(client *Client) *CursorRepository {
	return &CursorRepository{client: client}
}

// Get fetches a cursor, returning a cursor with zero LastOccurredAt and LastEventID if none exists yet.
func (r *CursorRepository) Get(ctx context.Context, workspaceID, cursorID string) (domain.Cursor, error) {
	var rows []domain.Cursor
	err := r.client.Select(ctx, "cursors", &rows,
		WithFilter("workspace_id", "eq", workspaceID),
		WithFilter("id", "eq", cursorID),
		WithLimit(1),
	)
	if err != nil {
		return domain.Cursor{}, err
	}
	if len(rows) == 0 {
		return domain.Cursor{WorkspaceID: workspaceID, ID: cursorID}, nil
	}
	return rows[0], nil
}

// Advance upserts the cursor's new high-water mark.
func (r *CursorRepository) Advance(ctx context.Context, cursor domain.Cursor) error {
	cursor.UpdatedAt = nowFunc()
	return r.client.Upsert(ctx, "cursors", []domain.Cursor{cursor}, "workspace_id,id")
}
