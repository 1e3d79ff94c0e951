package domain

import "time"

// EmailSendStatus is the state-machine status of a queued send (spec.md §3).
type EmailSendStatus string

const (
	EmailSendStatusQueued     EmailSendStatus = "queued"
	EmailSendStatusProcessing EmailSendStatus = "processing"
	EmailSendStatusSent       EmailSendStatus = "sent"
	EmailSendStatusFailed     EmailSendStatus = "failed"
)

// BulkEmailCampaignID is the well-known per-workspace campaign used for
// ad-hoc blasts (spec.md §3, "a well-known bulk_email campaign").
const BulkEmailCampaignID = "bulk_email"

// EmailSend is a single outbound delivery, upserted by the scheduler and
// drained by the delivery worker.
type EmailSend struct {
	ID                string                 `json:"id"`
	WorkspaceID       string                 `json:"workspace_id"`
	CampaignID        string                 `json:"campaign_id"`
	ContactID         *string                `json:"contact_id,omitempty"`
	ToEmail           string                 `json:"to_email"`
	FromEmail         *string                `json:"from_email,omitempty"`
	Subject           string                 `json:"subject"`
	Status            EmailSendStatus        `json:"status"`
	ExecuteAt         time.Time              `json:"execute_at"`
	SentAt            *time.Time             `json:"sent_at,omitempty"`
	OpenedAt          *time.Time             `json:"opened_at,omitempty"`
	ClickedAt         *time.Time             `json:"clicked_at,omitempty"`
	ProviderMessageID *string                `json:"provider_message_id,omitempty"`
	ScheduleID        *string                `json:"schedule_id,omitempty"`
	ABVariant         *string                `json:"ab_variant,omitempty"`
	IsTest            bool                   `json:"is_test"`
	Meta              map[string]interface{} `json:"meta,omitempty"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
}

// SetMetaError records a downstream failure on the send row's meta bag,
// the typed accessor spec.md §5 (Design Notes supplement) asks for.
func (e *EmailSend) SetMetaError(err error) {
	if e.Meta == nil {
		e.Meta = map[string]interface{}{}
	}
	e.Meta["error"] = err.Error()
}

// Campaign holds subject/body/blocks for a one-shot or scheduled send.
type Campaign struct {
	ID          string          `json:"id"`
	WorkspaceID string          `json:"workspace_id"`
	Name        string          `json:"name"`
	Subject     string          `json:"subject"`
	Body        string          `json:"body"`
	EmailBlocks []EmailBlock    `json:"email_blocks"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// EmailBlock is one ordered content block of a campaign (spec.md §4.1 step 4).
type EmailBlock struct {
	Type string                 `json:"type"` // header, text, button, divider, image
	Data map[string]interface{} `json:"data"`
}

// Str returns a string field from the block's data bag, or "" if absent.
func (b EmailBlock) Str(key string) string {
	if v, ok := b.Data[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
