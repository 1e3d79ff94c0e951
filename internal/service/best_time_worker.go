package service

import (
	"context"
	"fmt"
	"time"

	"github.com/flowmail/flowmail-core/internal/domain"
	"github.com/flowmail/flowmail-core/internal/store"
	"github.com/flowmail/flowmail-core/pkg/logger"
)

// BestTimeWorker is the cursor-driven consumer over email_open events that
// learns each contact's best send hour/minute (spec.md §4.4).
type BestTimeWorker struct {
	cursors  *store.CursorRepository
	events   *store.ContactEventRepository
	contacts *store.ContactRepository
	logger   logger.Logger
}

// NewBestTimeWorker builds a BestTimeWorker.
func NewBestTimeWorker(cursors *store.CursorRepository, events *store.ContactEventRepository, contacts *store.ContactRepository, log logger.Logger) *BestTimeWorker {
	return &BestTimeWorker{cursors: cursors, events: events, contacts: contacts, logger: log}
}

// RunBatch implements BatchRunner.
func (w *BestTimeWorker) RunBatch(ctx context.Context, workspaceID string, limit int) error {
	_, _, err := w.Process(ctx, workspaceID, limit)
	return err
}

// bucketMinute rounds a minute to the nearest of {0,15,30,45}, rounding 60 down to 45
// (spec.md §4.4: "60 rounds down to 45").
func bucketMinute(m int) int {
	b := ((m + 7) / 15) * 15
	if b >= 60 {
		b = 45
	}
	return b
}

type histEntry struct {
	hour, bucket int
	count        int
	firstSeen    int // index of first occurrence, for tie-break
}

// Process fetches up to limit new email_open events, builds a per-contact
// (hour, bucket) histogram over the batch, and updates best_send_hour/minute
// to the argmax (ties broken by first-seen).
func (w *BestTimeWorker) Process(ctx context.Context, workspaceID string, limit int) (int, int, error) {
	if limit <= 0 || limit > 500 {
		limit = 500
	}

	cursor, err := w.cursors.Get(ctx, workspaceID, domain.CursorBestTime)
	if err != nil {
		return 0, 0, fmt.Errorf("load cursor: %w", err)
	}

	events, err := w.events.ListSince(ctx, workspaceID, cursor, []string{string(domain.EventEmailOpen)}, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("list events: %w", err)
	}
	if len(events) == 0 {
		return 0, 0, nil
	}

	histograms := map[string]map[string]*histEntry{}
	for i, ev := range events {
		contact, err := w.contacts.Get(ctx, workspaceID, ev.ContactID)
		if err != nil {
			continue
		}
		loc, err := time.LoadLocation(contact.TZ())
		if err != nil {
			loc = time.UTC
		}
		local := ev.OccurredAt.In(loc)
		bucket := bucketMinute(local.Minute())
		key := fmt.Sprintf("%d:%d", local.Hour(), bucket)

		if histograms[ev.ContactID] == nil {
			histograms[ev.ContactID] = map[string]*histEntry{}
		}
		entry, ok := histograms[ev.ContactID][key]
		if !ok {
			entry = &histEntry{hour: local.Hour(), bucket: bucket, firstSeen: i}
			histograms[ev.ContactID][key] = entry
		}
		entry.count++
	}

	updated := 0
	for contactID, hist := range histograms {
		var best *histEntry
		for _, entry := range hist {
			if best == nil || entry.count > best.count ||
				(entry.count == best.count && entry.firstSeen < best.firstSeen) {
				best = entry
			}
		}
		if best == nil {
			continue
		}
		if err := w.contacts.UpdateBestSendTime(ctx, workspaceID, contactID, best.hour, best.bucket); err != nil {
			w.logger.WithField("contact_id", contactID).WithField("error", err.Error()).
				Error("best time: update failed")
			continue
		}
		updated++
	}

	last := events[len(events)-1]
	if err := w.cursors.Advance(ctx, domain.Cursor{
		WorkspaceID:    workspaceID,
		ID:             domain.CursorBestTime,
		LastOccurredAt: last.OccurredAt,
		LastEventID:    last.ID,
	}); err != nil {
		return len(events), updated, fmt.Errorf("advance cursor: %w", err)
	}

	return len(events), updated, nil
}
