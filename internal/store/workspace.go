package store

import (
	"context"

	"github.com/flowmail/flowmail-core/internal/domain"
)

// WorkspaceRepository reads per-workspace settings.
type WorkspaceRepository struct {
	client *Client
}

// NewWorkspaceRepository builds a WorkspaceRepository over the shared Client.
func NewWorkspaceRepository(client *Client) *WorkspaceRepository {
	return &WorkspaceRepository{client: client}
}

// Get fetches a workspace's settings, falling back to an empty struct (the
// caller applies process-wide defaults) if the row doesn't exist.
func (r *WorkspaceRepository) Get(ctx context.Context, workspaceID string) (*domain.WorkspaceSettings, error) {
	var rows []domain.WorkspaceSettings
	err := r.client.Select(ctx, "workspace_settings", &rows,
		WithFilter("workspace_id", "eq", workspaceID),
		WithLimit(1),
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return &domain.WorkspaceSettings{WorkspaceID: workspaceID}, nil
	}
	return &rows[0], nil
}
