package store

import (
	"context"

	"github.com/flowmail/flowmail-core/internal/domain"
)

// ContactRepository reads and writes the contacts table.
type ContactRepository struct {
	client *Client
}

// NewContactRepository builds a ContactRepository over the shared Client.
func NewContactRepository(client *Client) *ContactRepository {
	return &ContactRepository{client: client}
}

// Get fetches a single contact by id, scoped to a workspace.
func (r *ContactRepository) Get(ctx context.Context, workspaceID, contactID string) (*domain.Contact, error) {
	var rows []domain.Contact
	err := r.client.Select(ctx, "contacts", &rows,
		WithFilter("workspace_id", "eq", workspaceID),
		WithFilter("id", "eq", contactID),
		WithLimit(1),
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Entity: "contact", ID: contactID}
	}
	return &rows[0], nil
}

// ListByIDs fetches every contact among the given ids, scoped to a workspace;
// it applies no eligibility filter.
func (r *ContactRepository) ListByIDs(ctx context.Context, workspaceID string, contactIDs []string) ([]domain.Contact, error) {
	if len(contactIDs) == 0 {
		return nil, nil
	}
	var rows []domain.Contact
	err := r.client.Select(ctx, "contacts", &rows,
		WithFilter("workspace_id", "eq", workspaceID),
		WithFilter("id", "in", inList(contactIDs)),
	)
	return rows, err
}

// ListEligible fetches every subscribed, non-bounced contact in a workspace,
// the base recipient pool for campaign scheduling (spec.md §4.7 step 1).
func (r *ContactRepository) ListEligible(ctx context.Context, workspaceID string) ([]domain.Contact, error) {
	var rows []domain.Contact
	err := r.client.Select(ctx, "contacts", &rows,
		WithFilter("workspace_id", "eq", workspaceID),
		WithFilter("status", "eq", string(domain.ContactStatusSubscribed)),
		WithFilter("unsubscribed", "eq", "false"),
		WithFilter("bounced", "eq", "false"),
		WithFilter("spam_complaint", "eq", "false"),
	)
	return rows, err
}

// UpdateLeadScore patches a contact's score and derived temperature.
func (r *ContactRepository) UpdateLeadScore(ctx context.Context, workspaceID, contactID string, score int, temp domain.Temperature) error {
	body := map[string]interface{}{
		"lead_score":  score,
		"temperature": string(temp),
	}
	return r.client.Update(ctx, "contacts", body,
		WithFilter("workspace_id", "eq", workspaceID),
		WithFilter("id", "eq", contactID),
	)
}

// UpdateFields patches an arbitrary set of scalar columns, used by
// action.update_field for lifecycle_stage/temperature/status/lead_score
// (spec.md §4.6).
func (r *ContactRepository) UpdateFields(ctx context.Context, workspaceID, contactID string, fields map[string]interface{}) error {
	return r.client.Update(ctx, "contacts", fields,
		WithFilter("workspace_id", "eq", workspaceID),
		WithFilter("id", "eq", contactID),
	)
}

// UpdateTagsOrLists replaces a contact's tags or lists set.
func (r *ContactRepository) UpdateTagsOrLists(ctx context.Context, workspaceID, contactID, field string, values []string) error {
	return r.client.Update(ctx, "contacts", map[string]interface{}{field + "s": values},
		WithFilter("workspace_id", "eq", workspaceID),
		WithFilter("id", "eq", contactID),
	)
}

// UpdateBestSendTime patches a contact's computed best send hour/minute (spec.md §4.4).
func (r *ContactRepository) UpdateBestSendTime(ctx context.Context, workspaceID, contactID string, hour, minute int) error {
	body := map[string]interface{}{
		"best_send_hour":         hour,
		"best_send_minute":       minute,
		"best_send_updated_at":   nowISO(),
	}
	return r.client.Update(ctx, "contacts", body,
		WithFilter("workspace_id", "eq", workspaceID),
		WithFilter("id", "eq", contactID),
	)
}

func inList(values []string) string {
	s := "("
	for i, v := range values {
		if i > 0 {
			s += ","
		}
		s += v
	}
	return s + ")"
}

func nowISO() string {
	return nowFunc().Format("2006-01-02T15:04:05.999999999Z07:00")
}
