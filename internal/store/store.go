package store

import (
	"net/http"
	"time"

	"github.com/flowmail/flowmail-core/internal/domain"
	"github.com/flowmail/flowmail-core/pkg/logger"
)

// Store bundles every repository behind one shared PostgREST Client, the
// single construction point cmd/flowmaild wires into the services.
type Store struct {
	Contacts      *ContactRepository
	Events        *ContactEventRepository
	Cursors       *CursorRepository
	EmailSends    *EmailSendRepository
	Campaigns     *CampaignRepository
	Schedules     *CampaignScheduleRepository
	ABStates      *CampaignABStateRepository
	Automations   *AutomationRepository
	Runs          *AutomationRunRepository
	Queue         *AutomationQueueRepository
	Workspaces    *WorkspaceRepository
}

// New builds a Store backed by a default *http.Client with a bounded
// timeout, matching the teacher's pattern of never leaving an outbound call
// unbounded.
func New(baseURL, serviceRoleKey string, log logger.Logger) *Store {
	httpClient := &http.Client{Timeout: 15 * time.Second}
	return NewWithHTTPClient(baseURL, serviceRoleKey, httpClient, log)
}

// NewWithHTTPClient builds a Store over a caller-supplied domain.HTTPClient,
// the seam tests substitute a fake transport through.
func NewWithHTTPClient(baseURL, serviceRoleKey string, httpClient domain.HTTPClient, log logger.Logger) *Store {
	client := NewClient(baseURL, serviceRoleKey, httpClient, log)
	return &Store{
		Contacts:    NewContactRepository(client),
		Events:      NewContactEventRepository(client),
		Cursors:     NewCursorRepository(client),
		EmailSends:  NewEmailSendRepository(client),
		Campaigns:   NewCampaignRepository(client),
		Schedules:   NewCampaignScheduleRepository(client),
		ABStates:    NewCampaignABStateRepository(client),
		Automations: NewAutomationRepository(client),
		Runs:        NewAutomationRunRepository(client),
		Queue:       NewAutomationQueueRepository(client),
		Workspaces:  NewWorkspaceRepository(client),
	}
}
