package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/flowmail/flowmail-core/internal/domain"
	"github.com/flowmail/flowmail-core/internal/store"
	"github.com/flowmail/flowmail-core/pkg/logger"
)

// LeadScoreWorker is the cursor-driven consumer that applies scoring rules
// to new contact_events and maintains contacts.lead_score/temperature
// (spec.md §4.3).
type LeadScoreWorker struct {
	cursors  *store.CursorRepository
	events   *store.ContactEventRepository
	contacts *store.ContactRepository
	logger   logger.Logger
}

// NewLeadScoreWorker builds a LeadScoreWorker.
func NewLeadScoreWorker(cursors *store.CursorRepository, events *store.ContactEventRepository, contacts *store.ContactRepository, log logger.Logger) *LeadScoreWorker {
	return &LeadScoreWorker{cursors: cursors, events: events, contacts: contacts, logger: log}
}

// RunBatch implements BatchRunner.
func (w *LeadScoreWorker) RunBatch(ctx context.Context, workspaceID string, limit int) error {
	_, _, err := w.Process(ctx, workspaceID, limit)
	return err
}

// scoreDelta implements the per-event-type table in spec.md §4.3.
func scoreDelta(ev domain.ContactEvent) int {
	switch ev.EventType {
	case domain.EventEmailOpen:
		return 1
	case domain.EventLinkClick:
		url := strings.ToLower(ev.MetaString("url"))
		if strings.Contains(url, "pricing") || strings.Contains(url, "checkout") {
			return 5
		}
		return 3
	case domain.EventFormSubmitted:
		form := strings.ToLower(ev.MetaString("form"))
		if strings.Contains(form, "webinar") {
			return 10
		}
		return 4
	case domain.EventPurchase:
		return 15
	case domain.EventPurchaseUpgraded:
		return 10
	case domain.EventPurchaseCancelled:
		return -10
	default:
		return 0
	}
}

// Process fetches up to limit new events, aggregates per-contact score
// deltas, patches contacts, and advances the cursor. Returns
// (processedEvents, updatedContacts, error) per spec.md §6.
func (w *LeadScoreWorker) Process(ctx context.Context, workspaceID string, limit int) (int, int, error) {
	if limit <= 0 || limit > 500 {
		limit = 500
	}

	cursor, err := w.cursors.Get(ctx, workspaceID, domain.CursorLeadScore)
	if err != nil {
		return 0, 0, fmt.Errorf("load cursor: %w", err)
	}

	events, err := w.events.ListSince(ctx, workspaceID, cursor, nil, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("list events: %w", err)
	}
	if len(events) == 0 {
		return 0, 0, nil
	}

	deltas := map[string]int{}
	for _, ev := range events {
		deltas[ev.ContactID] += scoreDelta(ev)
	}

	updated := 0
	for contactID, delta := range deltas {
		contact, err := w.contacts.Get(ctx, workspaceID, contactID)
		if err != nil {
			w.logger.WithField("contact_id", contactID).WithField("error", err.Error()).
				Warn("lead score: contact lookup failed, skipping")
			continue
		}
		newScore := domain.ClampScore(contact.LeadScore + delta)
		temp := domain.TemperatureForScore(newScore)
		if err := w.contacts.UpdateLeadScore(ctx, workspaceID, contactID, newScore, temp); err != nil {
			w.logger.WithField("contact_id", contactID).WithField("error", err.Error()).
				Error("lead score: update failed")
			continue
		}
		updated++
	}

	last := events[len(events)-1]
	if err := w.cursors.Advance(ctx, domain.Cursor{
		WorkspaceID:    workspaceID,
		ID:             domain.CursorLeadScore,
		LastOccurredAt: last.OccurredAt,
		LastEventID:    last.ID,
	}); err != nil {
		return len(events), updated, fmt.Errorf("advance cursor: %w", err)
	}

	return len(events), updated, nil
}
