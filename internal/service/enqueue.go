package service

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/flowmail/flowmail-core/internal/domain"
	"github.com/flowmail/flowmail-core/internal/store"
	"github.com/flowmail/flowmail-core/pkg/logger"
)

// maxImmediateBulkRecipients caps send-bulk-email's synchronous path
// (spec.md §4.8: "recipients are capped at 50").
const maxImmediateBulkRecipients = 50

// bulkSendConcurrency is the fan-out width for the synchronous Resend path
// (spec.md §4.8: "sends are issued with concurrency 5").
const bulkSendConcurrency = 5

// Enqueuer implements the one-shot send-campaign / send-bulk-email endpoints
// (spec.md §4.8): they behave like the scheduler's immediate mode for a
// single campaign or ad-hoc blast, without the scheduler's upsert guards —
// callers are responsible for not invoking them twice.
type Enqueuer struct {
	campaigns *store.CampaignRepository
	contacts  *store.ContactRepository
	sends     *store.EmailSendRepository
	resend    *ResendSender
	logger    logger.Logger
}

// NewEnqueuer builds an Enqueuer. resend may be nil when RESEND_API_KEY is unset;
// SendBulkEmail then rejects sendImmediately requests.
func NewEnqueuer(
	campaigns *store.CampaignRepository,
	contacts *store.ContactRepository,
	sends *store.EmailSendRepository,
	resend *ResendSender,
	log logger.Logger,
) *Enqueuer {
	return &Enqueuer{campaigns: campaigns, contacts: contacts, sends: sends, resend: resend, logger: log}
}

// SendCampaignRequest is the send-campaign endpoint's input (spec.md §6).
type SendCampaignRequest struct {
	WorkspaceID    string
	CampaignID     string
	MaxRecipients  int
	PageSize       int
	SegmentJSON    *domain.SegmentDefinition
	DryRun         bool
}

// SendCampaignResult is returned on success; Report is populated only for DryRun.
type SendCampaignResult struct {
	Queued int
	DryRun bool
	Report []string
}

// SendCampaign queues one email_sends row per eligible, segment-matching
// contact with execute_at=now, capped at MaxRecipients (spec.md §4.8, §4.7
// step 1-2 with ab_enabled=false).
func (e *Enqueuer) SendCampaign(ctx context.Context, req SendCampaignRequest) (*SendCampaignResult, error) {
	if req.CampaignID == "" {
		return nil, domain.NewValidationError("campaignId is required")
	}
	maxRecipients := req.MaxRecipients
	if maxRecipients <= 0 || maxRecipients > 10000 {
		maxRecipients = 10000
	}

	campaign, err := e.campaigns.Get(ctx, req.WorkspaceID, req.CampaignID)
	if err != nil {
		return nil, fmt.Errorf("load campaign: %w", err)
	}

	all, err := e.contacts.ListEligible(ctx, req.WorkspaceID)
	if err != nil {
		return nil, fmt.Errorf("list eligible contacts: %w", err)
	}

	subject := campaign.Subject
	if subject == "" {
		subject = campaign.Name
	}

	var matched []domain.Contact
	for _, c := range all {
		if req.SegmentJSON.Evaluate(&c) {
			matched = append(matched, c)
			if len(matched) >= maxRecipients {
				break
			}
		}
	}

	if req.DryRun {
		report := make([]string, 0, len(matched))
		for _, c := range matched {
			report = append(report, c.Email)
		}
		return &SendCampaignResult{Queued: len(matched), DryRun: true, Report: report}, nil
	}

	now := nowFunc()
	sends := make([]domain.EmailSend, 0, len(matched))
	for i := range matched {
		contactID := matched[i].ID
		sends = append(sends, domain.EmailSend{
			WorkspaceID: req.WorkspaceID,
			CampaignID:  campaign.ID,
			ContactID:   &contactID,
			ToEmail:     matched[i].Email,
			Subject:     subject,
			Status:      domain.EmailSendStatusQueued,
			ExecuteAt:   now,
		})
	}
	if err := e.insertImmediate(ctx, sends); err != nil {
		return nil, fmt.Errorf("insert sends: %w", err)
	}
	return &SendCampaignResult{Queued: len(sends)}, nil
}

// insertImmediate inserts one-shot sends without the scheduler's
// (workspace_id, schedule_id, to_email) upsert key — schedule_id is absent
// here, so a plain insert is used rather than UpsertBatch.
func (e *Enqueuer) insertImmediate(ctx context.Context, sends []domain.EmailSend) error {
	if len(sends) == 0 {
		return nil
	}
	return e.sends.Insert(ctx, sends)
}

// SendBulkEmailRequest is the send-bulk-email endpoint's input (spec.md §6).
type SendBulkEmailRequest struct {
	WorkspaceID     string
	Subject         string
	Body            string
	ContactIDs      []string
	SendImmediately bool
	FromEmail       string
	FromName        string
}

// SendBulkEmailResult reports either a queued count or, for immediate mode,
// per-recipient outcome totals.
type SendBulkEmailResult struct {
	Mode   string // "queued" or "instant"
	Queued int
	Sent   int
	Failed int
}

// SendBulkEmail queues (or, in immediate mode, synchronously delivers) an
// ad-hoc blast against the well-known bulk_email campaign (spec.md §4.8).
func (e *Enqueuer) SendBulkEmail(ctx context.Context, req SendBulkEmailRequest) (*SendBulkEmailResult, error) {
	if req.Subject == "" || req.Body == "" {
		return nil, domain.NewValidationError("subject and body are required")
	}

	var recipients []domain.Contact
	var err error
	if len(req.ContactIDs) > 0 {
		recipients, err = e.contacts.ListByIDs(ctx, req.WorkspaceID, req.ContactIDs)
	} else {
		recipients, err = e.contacts.ListEligible(ctx, req.WorkspaceID)
	}
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}

	eligible := make([]domain.Contact, 0, len(recipients))
	for _, c := range recipients {
		if c.Eligible() {
			eligible = append(eligible, c)
		}
	}

	if req.SendImmediately {
		return e.sendBulkImmediate(ctx, req, eligible)
	}
	return e.sendBulkQueued(ctx, req, eligible)
}

func (e *Enqueuer) sendBulkQueued(ctx context.Context, req SendBulkEmailRequest, eligible []domain.Contact) (*SendBulkEmailResult, error) {
	now := nowFunc()
	sends := make([]domain.EmailSend, 0, len(eligible))
	for i := range eligible {
		contactID := eligible[i].ID
		sends = append(sends, domain.EmailSend{
			WorkspaceID: req.WorkspaceID,
			CampaignID:  domain.BulkEmailCampaignID,
			ContactID:   &contactID,
			ToEmail:     eligible[i].Email,
			Subject:     req.Subject,
			Status:      domain.EmailSendStatusQueued,
			ExecuteAt:   now,
			Meta:        map[string]interface{}{"body": req.Body},
		})
	}
	if err := e.insertImmediate(ctx, sends); err != nil {
		return nil, fmt.Errorf("insert sends: %w", err)
	}
	return &SendBulkEmailResult{Mode: "queued", Queued: len(sends)}, nil
}

func (e *Enqueuer) sendBulkImmediate(ctx context.Context, req SendBulkEmailRequest, eligible []domain.Contact) (*SendBulkEmailResult, error) {
	if e.resend == nil {
		return nil, domain.NewValidationError("immediate bulk send requires RESEND_API_KEY")
	}
	if len(eligible) > maxImmediateBulkRecipients {
		return nil, domain.NewValidationError("immediate bulk send is capped at %d recipients", maxImmediateBulkRecipients)
	}

	from := req.FromEmail
	if req.FromName != "" {
		from = fmt.Sprintf("%q <%s>", req.FromName, req.FromEmail)
	}

	var sent, failed int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkSendConcurrency)
	now := nowFunc()

	for i := range eligible {
		contact := eligible[i]
		g.Go(func() error {
			send := &domain.EmailSend{
				WorkspaceID: req.WorkspaceID,
				CampaignID:  domain.BulkEmailCampaignID,
				ContactID:   &contact.ID,
				ToEmail:     contact.Email,
				Subject:     req.Subject,
				Status:      domain.EmailSendStatusProcessing,
				ExecuteAt:   now,
			}
			messageID, err := e.resend.Send(gctx, from, contact.Email, req.Subject, req.Body)
			if err != nil {
				atomic.AddInt64(&failed, 1)
				send.Status = domain.EmailSendStatusFailed
				send.SetMetaError(err)
				e.logger.WithField("to", contact.Email).WithField("error", err.Error()).Error("immediate bulk send failed")
			} else {
				atomic.AddInt64(&sent, 1)
				send.Status = domain.EmailSendStatusSent
				send.SentAt = &now
				send.ProviderMessageID = &messageID
			}
			if err := e.insertImmediate(gctx, []domain.EmailSend{*send}); err != nil {
				e.logger.WithField("to", contact.Email).WithField("error", err.Error()).Error("recording immediate send outcome failed")
			}
			return nil
		})
	}
	g.Wait()

	return &SendBulkEmailResult{Mode: "instant", Sent: int(sent), Failed: int(failed)}, nil
}
