package store

import (
	"context"

	"github.com/flowmail/flowmail-core/internal/domain"
)

// EmailSendRepository reads and writes the email_sends table.
type EmailSendRepository struct {
	client *Client
}

// NewEmailSendRepository builds an EmailSendRepository over the shared Client.
func NewEmailSendRepository(client *Client) *EmailSendRepository {
	return &EmailSendRepository{client: client}
}

// ClaimDue atomically-enough claims up to limit queued sends whose
// execute_at has passed, flipping them to processing (spec.md §4.1 step 1).
// PostgREST has no row-level SELECT-FOR-UPDATE-then-UPDATE in one round
// trip, so this selects candidates, then updates by id list; a concurrent
// worker racing the same rows degrades to a duplicate send, not data loss,
// matching the spec's at-least-once email delivery (spec.md §3).
func (r *EmailSendRepository) ClaimDue(ctx context.Context, workspaceID string, limit int) ([]domain.EmailSend, error) {
	var candidates []domain.EmailSend
	err := r.client.Select(ctx, "email_sends", &candidates,
		WithFilter("workspace_id", "eq", workspaceID),
		WithFilter("status", "eq", string(domain.EmailSendStatusQueued)),
		WithFilter("execute_at", "lte", nowISO()),
		WithOrder("execute_at.asc"),
		WithLimit(limit),
	)
	if err != nil || len(candidates) == 0 {
		return candidates, err
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
		candidates[i].Status = domain.EmailSendStatusProcessing
	}
	if err := r.client.Update(ctx, "email_sends",
		map[string]interface{}{"status": string(domain.EmailSendStatusProcessing)},
		WithFilter("id", "in", inList(ids)),
		WithFilter("workspace_id", "eq", workspaceID),
	); err != nil {
		return nil, err
	}
	return candidates, nil
}

// MarkSent transitions a send to its terminal sent state.
func (r *EmailSendRepository) MarkSent(ctx context.Context, send *domain.EmailSend, providerMessageID string) error {
	body := map[string]interface{}{
		"status":              string(domain.EmailSendStatusSent),
		"sent_at":             nowISO(),
		"provider_message_id": providerMessageID,
	}
	return r.client.Update(ctx, "email_sends", body,
		WithFilter("id", "eq", send.ID),
		WithFilter("workspace_id", "eq", send.WorkspaceID),
	)
}

// MarkFailed transitions a send to its terminal failed state, recording the error.
func (r *EmailSendRepository) MarkFailed(ctx context.Context, send *domain.EmailSend, cause error) error {
	send.SetMetaError(cause)
	body := map[string]interface{}{
		"status": string(domain.EmailSendStatusFailed),
		"meta":   send.Meta,
	}
	return r.client.Update(ctx, "email_sends", body,
		WithFilter("id", "eq", send.ID),
		WithFilter("workspace_id", "eq", send.WorkspaceID),
	)
}

// RecordOpen sets opened_at the first time it's observed, the first-write-wins
// semantics required by the open-tracking pixel (spec.md §4.2).
func (r *EmailSendRepository) RecordOpen(ctx context.Context, workspaceID, sendID string) error {
	return r.client.Update(ctx, "email_sends",
		map[string]interface{}{"opened_at": nowISO()},
		WithFilter("id", "eq", sendID),
		WithFilter("workspace_id", "eq", workspaceID),
		WithFilter("opened_at", "eq", "null"),
	)
}

// RecordClick sets clicked_at the first time it's observed. Unlike opens,
// every click also produces a link_click contact_event even on repeat
// visits (spec.md §4.2): that event is appended by the caller, not here.
func (r *EmailSendRepository) RecordClick(ctx context.Context, workspaceID, sendID string) error {
	return r.client.Update(ctx, "email_sends",
		map[string]interface{}{"clicked_at": nowISO()},
		WithFilter("id", "eq", sendID),
		WithFilter("workspace_id", "eq", workspaceID),
		WithFilter("clicked_at", "eq", "null"),
	)
}

// Get fetches one send by id.
func (r *EmailSendRepository) Get(ctx context.Context, workspaceID, sendID string) (*domain.EmailSend, error) {
	var rows []domain.EmailSend
	err := r.client.Select(ctx, "email_sends", &rows,
		WithFilter("workspace_id", "eq", workspaceID),
		WithFilter("id", "eq", sendID),
		WithLimit(1),
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Entity: "email_send", ID: sendID}
	}
	return &rows[0], nil
}

// CountEngagement counts opens/clicks for a schedule's variant, the signal
// driving A/B winner selection (spec.md §4.7 step 4).
func (r *EmailSendRepository) CountEngagement(ctx context.Context, workspaceID, scheduleID, variant string, metric domain.ABMetric) (int, error) {
	var rows []domain.EmailSend
	opts := []Option{
		WithFilter("workspace_id", "eq", workspaceID),
		WithFilter("schedule_id", "eq", scheduleID),
		WithFilter("ab_variant", "eq", variant),
	}
	if metric == domain.ABMetricClicks {
		opts = append(opts, WithFilter("clicked_at", "neq", "null"))
	} else {
		opts = append(opts, WithFilter("opened_at", "neq", "null"))
	}
	if err := r.client.Select(ctx, "email_sends", &rows, opts...); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// ListTestRecipients returns the to_email addresses already queued as part
// of a schedule's A/B test pool, so winner-pool queueing can exclude them
// (spec.md §4.7 step 3: "upsert the remaining recipients").
func (r *EmailSendRepository) ListTestRecipients(ctx context.Context, workspaceID, scheduleID string) (map[string]bool, error) {
	var rows []domain.EmailSend
	err := r.client.Select(ctx, "email_sends", &rows,
		WithFilter("workspace_id", "eq", workspaceID),
		WithFilter("schedule_id", "eq", scheduleID),
		WithFilter("is_test", "eq", "true"),
	)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(rows))
	for _, r := range rows {
		out[r.ToEmail] = true
	}
	return out, nil
}

// UpsertBatch upserts a batch of sends keyed on (workspace_id, schedule_id,
// to_email), the idempotence key for the campaign scheduler (spec.md §3).
func (r *EmailSendRepository) UpsertBatch(ctx context.Context, sends []domain.EmailSend) error {
	if len(sends) == 0 {
		return nil
	}
	return r.client.Upsert(ctx, "email_sends", sends, "workspace_id,schedule_id,to_email")
}

// Insert creates a batch of sends without the (workspace_id, schedule_id,
// to_email) upsert guard: it posts with merge-duplicates resolution but no
// on_conflict columns, so only a primary-key clash merges. It serves the one-shot
// enqueuers that lack a schedule_id (spec.md §4.8: "without upsert guards —
// callers are responsible for not calling twice").
func (r *EmailSendRepository) Insert(ctx context.Context, sends []domain.EmailSend) error {
	if len(sends) == 0 {
		return nil
	}
	return r.client.Upsert(ctx, "email_sends", sends, "")
}

// CampaignRepository reads campaign definitions.
type CampaignRepository struct {
	client *Client
}

// NewCampaignRepository builds a CampaignRepository over the shared Client.
func NewCampaignRepository(client *Client) *CampaignRepository {
	return &CampaignRepository{client: client}
}

// Get fetches one campaign by id.
func (r *CampaignRepository) Get(ctx context.Context, workspaceID, campaignID string) (*domain.Campaign, error) {
	var rows []domain.Campaign
	err := r.client.Select(ctx, "campaigns", &rows,
		WithFilter("workspace_id", "eq", workspaceID),
		WithFilter("id", "eq", campaignID),
		WithLimit(1),
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Entity: "campaign", ID: campaignID}
	}
	return &rows[0], nil
}
