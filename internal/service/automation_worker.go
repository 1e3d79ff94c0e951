package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/flowmail/flowmail-core/internal/domain"
	"github.com/flowmail/flowmail-core/internal/store"
	"github.com/flowmail/flowmail-core/pkg/logger"
)

// AutomationWorker drains due automation_queue items and interprets the
// step-graph one node at a time (spec.md §4.6).
type AutomationWorker struct {
	queue          *store.AutomationQueueRepository
	runs           *store.AutomationRunRepository
	automations    *store.AutomationRepository
	contacts       *store.ContactRepository
	events         *store.ContactEventRepository
	sends          *store.EmailSendRepository
	teamNotifyEmail string
	logger         logger.Logger
}

// NewAutomationWorker builds an AutomationWorker.
func NewAutomationWorker(
	queue *store.AutomationQueueRepository,
	runs *store.AutomationRunRepository,
	automations *store.AutomationRepository,
	contacts *store.ContactRepository,
	events *store.ContactEventRepository,
	sends *store.EmailSendRepository,
	teamNotifyEmail string,
	log logger.Logger,
) *AutomationWorker {
	return &AutomationWorker{
		queue: queue, runs: runs, automations: automations, contacts: contacts,
		events: events, sends: sends, teamNotifyEmail: teamNotifyEmail, logger: log,
	}
}

// RunBatch implements BatchRunner.
func (w *AutomationWorker) RunBatch(ctx context.Context, workspaceID string, batchSize int) error {
	_, err := w.Process(ctx, workspaceID, batchSize)
	return err
}

// Process drains up to batch ≤25 due queue items, processing each
// independently so one poison item never halts the batch (spec.md §7).
func (w *AutomationWorker) Process(ctx context.Context, workspaceID string, batch int) (int, error) {
	if batch <= 0 || batch > 25 {
		batch = 25
	}

	items, err := w.queue.ClaimDue(ctx, workspaceID, batch)
	if err != nil {
		return 0, fmt.Errorf("claim due queue items: %w", err)
	}

	for i := range items {
		item := &items[i]
		if err := w.processItem(ctx, item); err != nil {
			w.handleFailure(ctx, item, err)
		}
	}
	return len(items), nil
}

// handleFailure terminates a queue item and its run on any processing error.
// Retries are not automatic: attempts is observable for operators, but a
// failed step fails the item and the run immediately.
func (w *AutomationWorker) handleFailure(ctx context.Context, item *domain.AutomationQueueItem, cause error) {
	w.logger.WithField("queue_item_id", item.ID).WithField("error", cause.Error()).
		Error("automation step failed")

	if err := w.queue.Fail(ctx, item, cause); err != nil {
		w.logger.WithField("queue_item_id", item.ID).WithField("error", err.Error()).
			Error("failed to mark queue item failed")
	}

	run, err := w.runs.Get(ctx, item.WorkspaceID, item.RunID)
	if err == nil && run != nil {
		errMsg := cause.Error()
		run.Status = domain.RunStatusFailed
		run.LastError = &errMsg
		finished := nowFunc()
		run.FinishedAt = &finished
		_ = w.runs.Update(ctx, run)
	}
}

func (w *AutomationWorker) processItem(ctx context.Context, item *domain.AutomationQueueItem) error {
	automation, err := w.automations.Get(ctx, item.WorkspaceID, item.AutomationID)
	if err != nil {
		return fmt.Errorf("load automation: %w", err)
	}
	step := automation.StepByID(item.StepID)
	if step == nil {
		return fmt.Errorf("step %s not found in automation %s", item.StepID, automation.ID)
	}
	contact, err := w.contacts.Get(ctx, item.WorkspaceID, item.ContactID)
	if err != nil {
		return fmt.Errorf("load contact: %w", err)
	}

	successor, executeAt, err := w.interpret(ctx, automation, step, contact, item)
	if err != nil {
		return err
	}

	run, err := w.loadRun(ctx, item)
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}

	if successor == "" {
		run.Status = domain.RunStatusCompleted
		finished := nowFunc()
		run.FinishedAt = &finished
		run.CurrentStepID = nil
		if err := w.runs.Update(ctx, run); err != nil {
			return fmt.Errorf("complete run: %w", err)
		}
		return w.queue.MarkDone(ctx, item)
	}

	run.CurrentStepID = &successor
	if err := w.runs.Update(ctx, run); err != nil {
		return fmt.Errorf("advance run: %w", err)
	}

	next := &domain.AutomationQueueItem{
		WorkspaceID:  item.WorkspaceID,
		RunID:        item.RunID,
		AutomationID: item.AutomationID,
		ContactID:    item.ContactID,
		StepID:       successor,
		ExecuteAt:    executeAt,
		Status:       domain.QueueStatusQueued,
	}
	if err := w.queue.Enqueue(ctx, next); err != nil {
		return fmt.Errorf("enqueue successor: %w", err)
	}

	return w.queue.MarkDone(ctx, item)
}

func (w *AutomationWorker) loadRun(ctx context.Context, item *domain.AutomationQueueItem) (*domain.AutomationRun, error) {
	return w.runs.Get(ctx, item.WorkspaceID, item.RunID)
}

// interpret executes one step and returns (successorStepID, successorExecuteAt, error).
// An empty successor means the run is complete.
func (w *AutomationWorker) interpret(ctx context.Context, automation *domain.Automation, step *domain.AutomationStep, contact *domain.Contact, item *domain.AutomationQueueItem) (string, time.Time, error) {
	now := nowFunc()

	switch step.Type {
	case domain.StepTypeWait:
		days, _ := step.Config.Num("days")
		successor := defaultSuccessor(automation, step)
		return successor, now.Add(time.Duration(days) * 24 * time.Hour), nil

	case domain.StepTypeCondition:
		return w.interpretCondition(automation, step, contact, now)

	case domain.StepTypeAction:
		return w.interpretAction(ctx, automation, step, contact, now)

	default:
		return "", now, fmt.Errorf("step %s has unsupported type %s for execution", step.ID, step.Type)
	}
}

func defaultSuccessor(automation *domain.Automation, step *domain.AutomationStep) string {
	if step.Config.Next != "" {
		return step.Config.Next
	}
	return automation.NextPositional(step.ID)
}

func (w *AutomationWorker) interpretCondition(automation *domain.Automation, step *domain.AutomationStep, contact *domain.Contact, now time.Time) (string, time.Time, error) {
	var pass bool

	switch step.Config.Kind {
	case "condition.lead_score":
		value, _ := step.Config.Num("value")
		op := domain.ParseConditionOp(step.Config.Str("op"))
		pass = op.Compare(float64(contact.LeadScore), value)

	case "condition.lifecycle_stage":
		pass = strings.EqualFold(contact.LifecycleStage, step.Config.Str("value"))

	case "condition.last_open_days":
		days, _ := step.Config.Num("days")
		if contact.BestSendUpdated == nil {
			pass = true
		} else {
			elapsed := math.Floor(now.Sub(*contact.BestSendUpdated).Hours() / 24)
			pass = elapsed >= days
		}

	case "condition.has_tag":
		tag := step.Config.Str("tag")
		pass = tag == "" || contact.HasTag(tag)

	default:
		return "", now, fmt.Errorf("unsupported condition kind %q", step.Config.Kind)
	}

	successor := step.Config.NextYes
	if !pass {
		successor = step.Config.NextNo
	}
	if successor == "" {
		successor = defaultSuccessor(automation, step)
	}
	return successor, now, nil
}

func (w *AutomationWorker) interpretAction(ctx context.Context, automation *domain.Automation, step *domain.AutomationStep, contact *domain.Contact, now time.Time) (string, time.Time, error) {
	switch step.Config.Kind {
	case "action.send_email":
		if err := w.actionSendEmail(ctx, automation, step, contact, now); err != nil {
			return "", now, err
		}
	case "action.update_field":
		if err := w.actionUpdateField(ctx, automation, step, contact, now); err != nil {
			return "", now, err
		}
	case "action.notify":
		if err := w.actionNotify(ctx, automation, step, contact, now); err != nil {
			return "", now, err
		}
	default:
		return "", now, fmt.Errorf("unsupported action kind %q", step.Config.Kind)
	}
	return defaultSuccessor(automation, step), now, nil
}

// actionSendEmail inserts an email_sends row with campaign_id=automation_id
// (spec.md §4.6, §9 open question: "breaking the referential assumption
// that campaign_id references campaigns.id; kept for reporting convenience").
func (w *AutomationWorker) actionSendEmail(ctx context.Context, automation *domain.Automation, step *domain.AutomationStep, contact *domain.Contact, now time.Time) error {
	send := &domain.EmailSend{
		WorkspaceID: automation.WorkspaceID,
		CampaignID:  automation.ID,
		ContactID:   &contact.ID,
		ToEmail:     contact.Email,
		Subject:     step.Config.Str("subject"),
		Status:      domain.EmailSendStatusQueued,
		ExecuteAt:   now,
		Meta: map[string]interface{}{
			"source":        "automation",
			"automation_id": automation.ID,
			"step_id":       step.ID,
			"body":          step.Config.Str("body"),
		},
	}
	if err := w.sends.UpsertBatch(ctx, []domain.EmailSend{*send}); err != nil {
		return fmt.Errorf("insert email send: %w", err)
	}

	event := &domain.ContactEvent{
		WorkspaceID: automation.WorkspaceID,
		ContactID:   contact.ID,
		EventType:   domain.EventEmailQueued,
		OccurredAt:  now,
		CampaignID:  &automation.ID,
		Meta:        map[string]interface{}{"step_id": step.ID},
	}
	return w.events.Append(ctx, event)
}

func (w *AutomationWorker) actionUpdateField(ctx context.Context, automation *domain.Automation, step *domain.AutomationStep, contact *domain.Contact, now time.Time) error {
	field := step.Config.Str("field")
	op := step.Config.Str("op")

	switch field {
	case "lifecycle_stage", "temperature", "status", "lead_score":
		if err := w.patchScalarField(ctx, automation.WorkspaceID, contact.ID, field, step.Config); err != nil {
			return err
		}
	case "tag", "list":
		if err := w.patchSetField(ctx, automation.WorkspaceID, contact, field, op, step.Config.Str("value")); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported update_field field %q", field)
	}

	event := &domain.ContactEvent{
		WorkspaceID: automation.WorkspaceID,
		ContactID:   contact.ID,
		EventType:   domain.EventAutomationUpdate,
		OccurredAt:  now,
		Meta:        map[string]interface{}{"field": field, "op": op, "step_id": step.ID},
	}
	return w.events.Append(ctx, event)
}

func (w *AutomationWorker) patchScalarField(ctx context.Context, workspaceID, contactID, field string, cfg domain.StepConfig) error {
	if field == "lead_score" {
		n, _ := cfg.Num("value")
		newScore := domain.ClampScore(int(n))
		return w.contacts.UpdateFields(ctx, workspaceID, contactID, map[string]interface{}{
			"lead_score":  newScore,
			"temperature": string(domain.TemperatureForScore(newScore)),
		})
	}
	return w.contacts.UpdateFields(ctx, workspaceID, contactID, map[string]interface{}{
		field: cfg.Str("value"),
	})
}

func (w *AutomationWorker) patchSetField(ctx context.Context, workspaceID string, contact *domain.Contact, field, op, value string) error {
	set := contact.Tags
	if field == "list" {
		set = contact.Lists
	}

	switch op {
	case "set":
		set = []string{value}
	case "add":
		if !containsExact(set, value) {
			set = append(set, value)
		}
	case "remove":
		set = removeNormalized(set, value)
	default:
		return fmt.Errorf("unsupported set op %q", op)
	}

	return w.contacts.UpdateTagsOrLists(ctx, workspaceID, contact.ID, field, set)
}

func containsExact(items []string, value string) bool {
	for _, it := range items {
		if strings.EqualFold(it, value) {
			return true
		}
	}
	return false
}

func removeNormalized(items []string, value string) []string {
	out := items[:0]
	for _, it := range items {
		if !strings.EqualFold(it, value) && !strings.Contains(strings.ToLower(it), strings.ToLower(value)) {
			out = append(out, it)
		}
	}
	return out
}

// actionNotify inserts a send to a team address, never a customer inbox
// (spec.md §4.6).
func (w *AutomationWorker) actionNotify(ctx context.Context, automation *domain.Automation, step *domain.AutomationStep, contact *domain.Contact, now time.Time) error {
	to := step.Config.Str("email")
	if to == "" {
		to = w.teamNotifyEmail
	}
	if to == "" {
		return fmt.Errorf("action.notify has no destination configured")
	}

	send := &domain.EmailSend{
		WorkspaceID: automation.WorkspaceID,
		CampaignID:  automation.ID,
		ToEmail:     to,
		Subject:     fmt.Sprintf("Automation notify: %s", automation.Name),
		Status:      domain.EmailSendStatusQueued,
		ExecuteAt:   now,
		Meta: map[string]interface{}{
			"source":        "automation_notify",
			"automation_id": automation.ID,
			"contact_id":    contact.ID,
			"step_id":       step.ID,
		},
	}
	return w.sends.UpsertBatch(ctx, []domain.EmailSend{*send})
}
