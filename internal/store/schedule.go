package store

import (
	"context"

	"github.com/flowmail/flowmail-core/internal/domain"
)

// CampaignScheduleRepository reads and writes campaign_schedules rows.
type CampaignScheduleRepository struct {
	client *Client
}

// NewCampaignScheduleRepository builds a CampaignScheduleRepository over the shared Client.
func NewCampaignScheduleRepository(client *Client) *CampaignScheduleRepository {
	return &CampaignScheduleRepository{client: client}
}

// ListDue fetches active schedules whose next_run_at has passed, up to limit
// (spec.md §4.7 step 1, flow-control batch size).
func (r *CampaignScheduleRepository) ListDue(ctx context.Context, workspaceID string, limit int) ([]domain.CampaignSchedule, error) {
	var rows []domain.CampaignSchedule
	err := r.client.Select(ctx, "campaign_schedules", &rows,
		WithFilter("workspace_id", "eq", workspaceID),
		WithFilter("status", "eq", string(domain.ScheduleStatusActive)),
		WithFilter("next_run_at", "lte", nowISO()),
		WithOrder("next_run_at.asc"),
		WithLimit(limit),
	)
	return rows, err
}

// MarkCompleted transitions a schedule to its terminal completed state.
func (r *CampaignScheduleRepository) MarkCompleted(ctx context.Context, schedule *domain.CampaignSchedule) error {
	return r.client.Update(ctx, "campaign_schedules",
		map[string]interface{}{"status": string(domain.ScheduleStatusCompleted)},
		WithFilter("id", "eq", schedule.ID),
		WithFilter("workspace_id", "eq", schedule.WorkspaceID),
	)
}

// CampaignABStateRepository reads and writes campaign_ab_state rows, keyed
// by (workspace_id, schedule_id).
type CampaignABStateRepository struct {
	client *Client
}

// NewCampaignABStateRepository builds a CampaignABStateRepository over the shared Client.
func NewCampaignABStateRepository(client *Client) *CampaignABStateRepository {
	return &CampaignABStateRepository{client: client}
}

// Get fetches the A/B state for a schedule, or nil if no test is in flight.
func (r *CampaignABStateRepository) Get(ctx context.Context, workspaceID, scheduleID string) (*domain.CampaignABState, error) {
	var rows []domain.CampaignABState
	err := r.client.Select(ctx, "campaign_ab_state", &rows,
		WithFilter("workspace_id", "eq", workspaceID),
		WithFilter("schedule_id", "eq", scheduleID),
		WithLimit(1),
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// Upsert creates or updates the A/B state for a schedule.
func (r *CampaignABStateRepository) Upsert(ctx context.Context, state *domain.CampaignABState) error {
	return r.client.Upsert(ctx, "campaign_ab_state", []domain.CampaignABState{*state}, "workspace_id,schedule_id")
}

// ListDueForWinnerSelection fetches A/B states still "testing" whose
// test_end_at has passed (spec.md §4.7 step 4).
func (r *CampaignABStateRepository) ListDueForWinnerSelection(ctx context.Context, workspaceID string) ([]domain.CampaignABState, error) {
	var rows []domain.CampaignABState
	err := r.client.Select(ctx, "campaign_ab_state", &rows,
		WithFilter("workspace_id", "eq", workspaceID),
		WithFilter("status", "eq", string(domain.ABStateTesting)),
		WithFilter("test_end_at", "lte", nowISO()),
	)
	return rows, err
}
