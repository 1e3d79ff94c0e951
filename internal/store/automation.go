package store

import (
	"context"

	"github.com/flowmail/flowmail-core/internal/domain"
)

// AutomationRepository reads automation definitions.
type AutomationRepository struct {
	client *Client
}

// NewAutomationRepository builds an AutomationRepository over the shared Client.
func NewAutomationRepository(client *Client) *AutomationRepository {
	return &AutomationRepository{client: client}
}

// ListRunning fetches every running automation in a workspace, the set the
// trigger scanner matches incoming events against (spec.md §4.5).
func (r *AutomationRepository) ListRunning(ctx context.Context, workspaceID string) ([]domain.Automation, error) {
	var rows []domain.Automation
	err := r.client.Select(ctx, "automations", &rows,
		WithFilter("workspace_id", "eq", workspaceID),
		WithFilter("status", "eq", string(domain.AutomationStatusRunning)),
	)
	return rows, err
}

// Get fetches one automation by id.
func (r *AutomationRepository) Get(ctx context.Context, workspaceID, automationID string) (*domain.Automation, error) {
	var rows []domain.Automation
	err := r.client.Select(ctx, "automations", &rows,
		WithFilter("workspace_id", "eq", workspaceID),
		WithFilter("id", "eq", automationID),
		WithLimit(1),
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Entity: "automation", ID: automationID}
	}
	return &rows[0], nil
}

// AutomationRunRepository reads and writes automation_runs rows.
type AutomationRunRepository struct {
	client *Client
}

// NewAutomationRunRepository builds an AutomationRunRepository over the shared Client.
func NewAutomationRunRepository(client *Client) *AutomationRunRepository {
	return &AutomationRunRepository{client: client}
}

// Get fetches one run by id, the lookup the worker uses to load the run a
// queue item belongs to (spec.md §4.6: each queue item carries its run_id).
func (r *AutomationRunRepository) Get(ctx context.Context, workspaceID, runID string) (*domain.AutomationRun, error) {
	var rows []domain.AutomationRun
	err := r.client.Select(ctx, "automation_runs", &rows,
		WithFilter("workspace_id", "eq", workspaceID),
		WithFilter("id", "eq", runID),
		WithLimit(1),
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Entity: "automation_run", ID: runID}
	}
	return &rows[0], nil
}

// Create inserts a new run and returns the stored row (with its generated id).
func (r *AutomationRunRepository) Create(ctx context.Context, run *domain.AutomationRun) error {
	var created []domain.AutomationRun
	if err := r.client.Insert(ctx, "automation_runs", run, &created); err != nil {
		return err
	}
	if len(created) > 0 {
		*run = created[0]
	}
	return nil
}

// Update patches a run's status/current step/error/finished_at.
func (r *AutomationRunRepository) Update(ctx context.Context, run *domain.AutomationRun) error {
	body := map[string]interface{}{
		"status":          string(run.Status),
		"current_step_id": run.CurrentStepID,
		"last_error":      run.LastError,
		"finished_at":     run.FinishedAt,
	}
	return r.client.Update(ctx, "automation_runs", body,
		WithFilter("id", "eq", run.ID),
		WithFilter("workspace_id", "eq", run.WorkspaceID),
	)
}

// AutomationQueueRepository reads and writes the automation_queue's due-time
// work items.
type AutomationQueueRepository struct {
	client *Client
}

// NewAutomationQueueRepository builds an AutomationQueueRepository over the shared Client.
func NewAutomationQueueRepository(client *Client) *AutomationQueueRepository {
	return &AutomationQueueRepository{client: client}
}

// Enqueue inserts a new due-time item.
func (r *AutomationQueueRepository) Enqueue(ctx context.Context, item *domain.AutomationQueueItem) error {
	var created []domain.AutomationQueueItem
	if err := r.client.Insert(ctx, "automation_queue", item, &created); err != nil {
		return err
	}
	if len(created) > 0 {
		*item = created[0]
	}
	return nil
}

// ClaimDue claims up to limit due items, flipping them to processing and
// incrementing their attempt counters (spec.md §3: "claimed by
// status=processing + attempt increment"). The claim write sets only the
// status; the incremented attempts are returned on the items and stored by
// MarkDone or Fail.
func (r *AutomationQueueRepository) ClaimDue(ctx context.Context, workspaceID string, limit int) ([]domain.AutomationQueueItem, error) {
	var candidates []domain.AutomationQueueItem
	err := r.client.Select(ctx, "automation_queue", &candidates,
		WithFilter("workspace_id", "eq", workspaceID),
		WithFilter("status", "eq", string(domain.QueueStatusQueued)),
		WithFilter("execute_at", "lte", nowISO()),
		WithOrder("execute_at.asc"),
		WithLimit(limit),
	)
	if err != nil || len(candidates) == 0 {
		return candidates, err
	}

	ids := make([]string, len(candidates))
	for i := range candidates {
		ids[i] = candidates[i].ID
		candidates[i].Status = domain.QueueStatusProcessing
		candidates[i].Attempts++
	}
	if err := r.client.Update(ctx, "automation_queue",
		map[string]interface{}{"status": string(domain.QueueStatusProcessing)},
		WithFilter("id", "in", inList(ids)),
		WithFilter("workspace_id", "eq", workspaceID),
	); err != nil {
		return nil, err
	}
	return candidates, nil
}

// MarkDone transitions a queue item to its terminal done state.
func (r *AutomationQueueRepository) MarkDone(ctx context.Context, item *domain.AutomationQueueItem) error {
	return r.client.Update(ctx, "automation_queue",
		map[string]interface{}{"status": string(domain.QueueStatusDone), "attempts": item.Attempts},
		WithFilter("id", "eq", item.ID),
		WithFilter("workspace_id", "eq", item.WorkspaceID),
	)
}

// Fail transitions a queue item straight to its terminal failed state.
// Retries are not automatic: attempts is recorded for operators to observe,
// not consulted to decide whether to requeue.
func (r *AutomationQueueRepository) Fail(ctx context.Context, item *domain.AutomationQueueItem, cause error) error {
	msg := cause.Error()
	body := map[string]interface{}{
		"status":     string(domain.QueueStatusFailed),
		"attempts":   item.Attempts,
		"last_error": msg,
	}
	return r.client.Update(ctx, "automation_queue", body,
		WithFilter("id", "eq", item.ID),
		WithFilter("workspace_id", "eq", item.WorkspaceID),
	)
}
