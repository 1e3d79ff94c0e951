package service

import (
	"context"

	"github.com/flowmail/flowmail-core/internal/domain"
	"github.com/flowmail/flowmail-core/internal/store"
	"github.com/flowmail/flowmail-core/pkg/logger"
)

// TrackingService implements the open-pixel and click-redirect logic shared
// by both tracking paths (spec.md §4.2). It is intentionally forgiving:
// every method swallows its own errors rather than surfacing them, since the
// tracking endpoint must never fail a mail client's prefetch.
type TrackingService struct {
	sends  *store.EmailSendRepository
	events *store.ContactEventRepository
	logger logger.Logger
}

// NewTrackingService builds a TrackingService.
func NewTrackingService(sends *store.EmailSendRepository, events *store.ContactEventRepository, log logger.Logger) *TrackingService {
	return &TrackingService{sends: sends, events: events, logger: log}
}

// DefaultClickTarget is used when a click arrives with no url parameter.
const DefaultClickTarget = "https://example.com"

// RecordOpen handles one /track/open?sid=... hit (spec.md §4.2). It never
// returns an error the caller should act on; a missing send row still
// counts as handled, the pixel is served regardless.
func (t *TrackingService) RecordOpen(ctx context.Context, workspaceID, sendID string) {
	send, err := t.sends.Get(ctx, workspaceID, sendID)
	if err != nil {
		return
	}
	if send.OpenedAt != nil {
		return
	}

	if err := t.sends.RecordOpen(ctx, workspaceID, sendID); err != nil {
		t.logger.WithField("send_id", sendID).WithField("error", err.Error()).Warn("failed to record open")
		return
	}

	contactID := ""
	if send.ContactID != nil {
		contactID = *send.ContactID
	}
	event := &domain.ContactEvent{
		WorkspaceID: workspaceID,
		ContactID:   contactID,
		EventType:   domain.EventEmailOpen,
		CampaignID:  strPtrIfNotEmpty(send.CampaignID),
		Meta:        map[string]interface{}{"sid": sendID},
	}
	if err := t.events.Append(ctx, event); err != nil {
		t.logger.WithField("send_id", sendID).WithField("error", err.Error()).Warn("failed to append open event")
	}
}

// RecordClick handles one /track/click?sid=&url=&bid= hit (spec.md §4.2).
// Every invocation appends a link_click event, even on a repeat click —
// downstream heatmap analysis depends on per-click events, not just the
// first-write-wins clicked_at column.
func (t *TrackingService) RecordClick(ctx context.Context, workspaceID, sendID, clickURL, bid string) {
	send, err := t.sends.Get(ctx, workspaceID, sendID)
	if err != nil {
		return
	}

	first := send.ClickedAt == nil
	if first {
		if err := t.sends.RecordClick(ctx, workspaceID, sendID); err != nil {
			t.logger.WithField("send_id", sendID).WithField("error", err.Error()).Warn("failed to record click")
		}
	}

	contactID := ""
	if send.ContactID != nil {
		contactID = *send.ContactID
	}
	event := &domain.ContactEvent{
		WorkspaceID: workspaceID,
		ContactID:   contactID,
		EventType:   domain.EventLinkClick,
		CampaignID:  strPtrIfNotEmpty(send.CampaignID),
		Meta: map[string]interface{}{
			"sid":   sendID,
			"url":   clickURL,
			"bid":   bid,
			"first": first,
		},
	}
	if err := t.events.Append(ctx, event); err != nil {
		t.logger.WithField("send_id", sendID).WithField("error", err.Error()).Warn("failed to append click event")
	}
}

func strPtrIfNotEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
