package service

import (
	"context"
	"fmt"

	"github.com/flowmail/flowmail-core/internal/domain"
	"github.com/flowmail/flowmail-core/internal/store"
	"github.com/flowmail/flowmail-core/pkg/logger"
)

// DeliveryWorker drains due email_sends, renders HTML, and posts to the
// mail gateway (spec.md §4.1).
type DeliveryWorker struct {
	sends      *store.EmailSendRepository
	campaigns  *store.CampaignRepository
	contacts   *store.ContactRepository
	workspaces *store.WorkspaceRepository
	templates  *TemplateEngine
	rewriter   *LinkRewriter
	gateway    *MailGateway
	defaultFromEmail string
	defaultFromName  string
	logger     logger.Logger
}

// NewDeliveryWorker builds a DeliveryWorker.
func NewDeliveryWorker(
	sends *store.EmailSendRepository,
	campaigns *store.CampaignRepository,
	contacts *store.ContactRepository,
	workspaces *store.WorkspaceRepository,
	templates *TemplateEngine,
	rewriter *LinkRewriter,
	gateway *MailGateway,
	defaultFromEmail, defaultFromName string,
	log logger.Logger,
) *DeliveryWorker {
	return &DeliveryWorker{
		sends: sends, campaigns: campaigns, contacts: contacts, workspaces: workspaces,
		templates: templates, rewriter: rewriter, gateway: gateway,
		defaultFromEmail: defaultFromEmail, defaultFromName: defaultFromName,
		logger: log,
	}
}

// RunBatch implements BatchRunner: drain up to batchSize ≤25 due sends.
func (w *DeliveryWorker) RunBatch(ctx context.Context, workspaceID string, batchSize int) error {
	_, err := w.Process(ctx, workspaceID, batchSize)
	return err
}

// Process drains up to batch due sends and returns the number processed
// (spec.md §6: response `{processed: n}`).
func (w *DeliveryWorker) Process(ctx context.Context, workspaceID string, batch int) (int, error) {
	if batch <= 0 || batch > 25 {
		batch = 25
	}

	due, err := w.sends.ClaimDue(ctx, workspaceID, batch)
	if err != nil {
		return 0, fmt.Errorf("claim due sends: %w", err)
	}

	settings, err := w.workspaces.Get(ctx, workspaceID)
	if err != nil {
		return 0, fmt.Errorf("load workspace settings: %w", err)
	}

	for i := range due {
		send := &due[i]
		if err := w.processOne(ctx, send, settings); err != nil {
			w.logger.WithField("send_id", send.ID).WithField("error", err.Error()).
				Error("email send failed")
			if markErr := w.sends.MarkFailed(ctx, send, err); markErr != nil {
				w.logger.WithField("send_id", send.ID).WithField("error", markErr.Error()).
					Error("failed to record send failure")
			}
			continue
		}
	}

	return len(due), nil
}

func (w *DeliveryWorker) processOne(ctx context.Context, send *domain.EmailSend, settings *domain.WorkspaceSettings) error {
	vars := TemplateVars{
		Email:       send.ToEmail,
		CompanyName: settings.CompanyName,
		SenderName:  settings.ResolveFromName(),
	}
	if vars.SenderName == "" {
		vars.SenderName = w.defaultFromName
	}

	if send.ContactID != nil {
		contact, err := w.contacts.Get(ctx, send.WorkspaceID, *send.ContactID)
		if err == nil {
			vars.FirstName = contact.FirstName
			vars.LastName = contact.LastName
		}
	}

	var campaign *domain.Campaign
	if send.CampaignID != "" && send.CampaignID != domain.BulkEmailCampaignID {
		c, err := w.campaigns.Get(ctx, send.WorkspaceID, send.CampaignID)
		if err == nil {
			campaign = c
		}
	}

	html, err := w.renderBody(ctx, send, campaign, vars)
	if err != nil {
		return fmt.Errorf("render html: %w", err)
	}

	contactID := ""
	if send.ContactID != nil {
		contactID = *send.ContactID
	}
	if w.rewriter.Enabled() {
		html, err = w.rewriter.Rewrite(html, send.ID, send.WorkspaceID, contactID)
		if err != nil {
			return fmt.Errorf("rewrite tracking links: %w", err)
		}
	}

	fromEmail := w.defaultFromEmail
	if send.FromEmail != nil && *send.FromEmail != "" {
		fromEmail = *send.FromEmail
	} else if settings.DefaultFromEmail != "" {
		fromEmail = settings.DefaultFromEmail
	}

	from := ""
	if fromEmail != "" {
		from = fmt.Sprintf("%q <%s>", vars.SenderName, fromEmail)
	}

	messageID, err := w.gateway.Send(ctx, send.ToEmail, send.Subject, html, from)
	if err != nil {
		return err
	}

	return w.sends.MarkSent(ctx, send, messageID)
}

func (w *DeliveryWorker) renderBody(ctx context.Context, send *domain.EmailSend, campaign *domain.Campaign, vars TemplateVars) (string, error) {
	if campaign != nil && len(campaign.EmailBlocks) > 0 {
		return RenderBlocks(campaign.EmailBlocks, vars), nil
	}

	body := send.Subject
	if campaign != nil {
		body = campaign.Body
	} else if b, ok := send.Meta["body"].(string); ok {
		body = b
	}
	return w.templates.RenderBody(ctx, body, vars)
}
