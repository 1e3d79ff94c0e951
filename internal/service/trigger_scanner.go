package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/flowmail/flowmail-core/internal/domain"
	"github.com/flowmail/flowmail-core/internal/store"
	"github.com/flowmail/flowmail-core/pkg/logger"
	"github.com/google/uuid"
)

// TriggerScanner is the cursor-driven consumer that matches new
// contact_events against the trigger nodes of running automations and
// starts runs (spec.md §4.5).
type TriggerScanner struct {
	cursors      *store.CursorRepository
	events       *store.ContactEventRepository
	automations  *store.AutomationRepository
	runs         *store.AutomationRunRepository
	queue        *store.AutomationQueueRepository
	logger       logger.Logger
}

// NewTriggerScanner builds a TriggerScanner.
func NewTriggerScanner(
	cursors *store.CursorRepository,
	events *store.ContactEventRepository,
	automations *store.AutomationRepository,
	runs *store.AutomationRunRepository,
	queue *store.AutomationQueueRepository,
	log logger.Logger,
) *TriggerScanner {
	return &TriggerScanner{cursors: cursors, events: events, automations: automations, runs: runs, queue: queue, logger: log}
}

// RunBatch implements BatchRunner.
func (s *TriggerScanner) RunBatch(ctx context.Context, workspaceID string, limit int) error {
	_, _, err := s.Process(ctx, workspaceID, limit)
	return err
}

// triggerMatches implements the per-kind predicate table in spec.md §4.5.
func triggerMatches(step domain.AutomationStep, ev domain.ContactEvent) bool {
	cfg := step.Config
	switch cfg.Kind {
	case "trigger.form_submitted":
		if ev.EventType != domain.EventFormSubmitted {
			return false
		}
		form := cfg.Str("form")
		return form == "" || strings.EqualFold(form, ev.MetaString("form")) || strings.EqualFold(form, ev.MetaString("formName"))

	case "trigger.email_open":
		if ev.EventType != domain.EventEmailOpen {
			return false
		}
		campaignID := cfg.Str("campaignId")
		if campaignID == "" {
			return true
		}
		return ev.CampaignID != nil && *ev.CampaignID == campaignID

	case "trigger.link_click":
		if ev.EventType != domain.EventLinkClick {
			return false
		}
		campaignID := cfg.Str("campaignId")
		if campaignID != "" && (ev.CampaignID == nil || *ev.CampaignID != campaignID) {
			return false
		}
		urlContains := cfg.Str("urlContains")
		if urlContains == "" {
			return true
		}
		return strings.Contains(strings.ToLower(ev.MetaString("url")), strings.ToLower(urlContains))

	case "trigger.tag_added":
		return tagListMatches(cfg, ev, domain.EventTagAdded, "tag")
	case "trigger.tag_removed":
		return tagListMatches(cfg, ev, domain.EventTagRemoved, "tag")
	case "trigger.list_joined":
		return tagListMatches(cfg, ev, domain.EventListJoined, "list")
	case "trigger.list_left":
		return tagListMatches(cfg, ev, domain.EventListLeft, "list")

	case "trigger.page_visited":
		if ev.EventType != domain.EventPageVisited {
			return false
		}
		urlContains := cfg.Str("urlContains")
		if urlContains == "" {
			return true
		}
		return strings.Contains(strings.ToLower(ev.MetaString("url")), strings.ToLower(urlContains))

	case "trigger.purchase":
		return ev.EventType == domain.EventPurchase
	case "trigger.purchase_upgraded":
		return ev.EventType == domain.EventPurchaseUpgraded
	case "trigger.purchase_cancelled":
		return ev.EventType == domain.EventPurchaseCancelled

	default:
		return false
	}
}

func tagListMatches(cfg domain.StepConfig, ev domain.ContactEvent, wantType domain.EventType, metaKey string) bool {
	if ev.EventType != wantType {
		return false
	}
	want := cfg.Str(metaKey)
	if want == "" {
		return true
	}
	return strings.Contains(strings.ToLower(ev.MetaString(metaKey)), strings.ToLower(want))
}

// Process scans up to limit new events against every running automation's
// trigger steps, starting a run for each match, and advances the cursor.
// Returns (processedEvents, startedRuns, error) per spec.md §6.
func (s *TriggerScanner) Process(ctx context.Context, workspaceID string, limit int) (int, int, error) {
	if limit <= 0 || limit > 200 {
		limit = 200
	}

	cursor, err := s.cursors.Get(ctx, workspaceID, domain.CursorAutomationEvent)
	if err != nil {
		return 0, 0, fmt.Errorf("load cursor: %w", err)
	}

	events, err := s.events.ListSince(ctx, workspaceID, cursor, nil, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("list events: %w", err)
	}
	if len(events) == 0 {
		return 0, 0, nil
	}

	automations, err := s.automations.ListRunning(ctx, workspaceID)
	if err != nil {
		return 0, 0, fmt.Errorf("list running automations: %w", err)
	}

	startedRuns := 0
	for _, ev := range events {
		for _, automation := range automations {
			for _, trig := range automation.TriggerSteps() {
				if !triggerMatches(trig, ev) {
					continue
				}
				started, err := s.startRun(ctx, workspaceID, &automation, trig, ev)
				if err != nil {
					s.logger.WithField("automation_id", automation.ID).WithField("error", err.Error()).
						Error("trigger scanner: failed to start run")
					continue
				}
				if started {
					startedRuns++
				}
			}
		}
	}

	last := events[len(events)-1]
	if err := s.cursors.Advance(ctx, domain.Cursor{
		WorkspaceID:    workspaceID,
		ID:             domain.CursorAutomationEvent,
		LastOccurredAt: last.OccurredAt,
		LastEventID:    last.ID,
	}); err != nil {
		return len(events), startedRuns, fmt.Errorf("advance cursor: %w", err)
	}

	return len(events), startedRuns, nil
}

func (s *TriggerScanner) startRun(ctx context.Context, workspaceID string, automation *domain.Automation, trig domain.AutomationStep, ev domain.ContactEvent) (bool, error) {
	successor := trig.Config.Next
	if successor == "" {
		successor = automation.NextPositional(trig.ID)
	}
	if successor == "" {
		return false, nil
	}

	run := &domain.AutomationRun{
		ID:            uuid.New().String(),
		WorkspaceID:   workspaceID,
		AutomationID:  automation.ID,
		ContactID:     ev.ContactID,
		Status:        domain.RunStatusRunning,
		CurrentStepID: &successor,
		Meta: map[string]interface{}{
			"triggered_by_event_id": ev.ID,
			"trigger_kind":          trig.Config.Kind,
		},
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return false, fmt.Errorf("create run: %w", err)
	}

	item := &domain.AutomationQueueItem{
		ID:           uuid.New().String(),
		WorkspaceID:  workspaceID,
		RunID:        run.ID,
		AutomationID: automation.ID,
		ContactID:    ev.ContactID,
		StepID:       successor,
		ExecuteAt:    nowFunc(),
		Status:       domain.QueueStatusQueued,
	}
	if err := s.queue.Enqueue(ctx, item); err != nil {
		return false, fmt.Errorf("enqueue successor: %w", err)
	}
	return true, nil
}
