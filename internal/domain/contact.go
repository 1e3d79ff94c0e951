package domain

import "time"

// ContactStatus mirrors the subscription lifecycle of a contact within a workspace.
type ContactStatus string

const (
	ContactStatusSubscribed   ContactStatus = "subscribed"
	ContactStatusUnsubscribed ContactStatus = "unsubscribed"
	ContactStatusPending      ContactStatus = "pending"
)

// Temperature buckets a contact's lead_score for quick segmentation.
type Temperature string

const (
	TemperatureCold Temperature = "cold"
	TemperatureWarm Temperature = "warm"
	TemperatureHot  Temperature = "hot"
)

// TemperatureForScore derives the temperature bucket per spec.md §4.3.
func TemperatureForScore(score int) Temperature {
	switch {
	case score >= 50:
		return TemperatureHot
	case score >= 20:
		return TemperatureWarm
	default:
		return TemperatureCold
	}
}

// ClampScore keeps a lead score within [0, 100].
func ClampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Contact is a single addressable recipient scoped to a workspace.
type Contact struct {
	ID               string        `json:"id"`
	WorkspaceID      string        `json:"workspace_id"`
	Email            string        `json:"email"`
	FirstName        string        `json:"first_name"`
	LastName         string        `json:"last_name"`
	Status           ContactStatus `json:"status"`
	Unsubscribed     bool          `json:"unsubscribed"`
	Bounced          bool          `json:"bounced"`
	SpamComplaint    bool          `json:"spam_complaint"`
	LifecycleStage   string        `json:"lifecycle_stage"`
	Temperature      Temperature   `json:"temperature"`
	Tags             []string      `json:"tags"`
	Lists            []string      `json:"lists"`
	LeadScore        int           `json:"lead_score"`
	BestSendHour     *int          `json:"best_send_hour,omitempty"`
	BestSendMinute   *int          `json:"best_send_minute,omitempty"`
	BestSendUpdated  *time.Time    `json:"best_send_updated_at,omitempty"`
	Timezone         string        `json:"timezone"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// Eligible implements the eligibility predicate from spec.md §3/§GLOSSARY:
// status=Subscribed ∧ ¬unsubscribed ∧ ¬bounced ∧ ¬spam_complaint.
func (c *Contact) Eligible() bool {
	return c.Status == ContactStatusSubscribed && !c.Unsubscribed && !c.Bounced && !c.SpamComplaint
}

// TZ returns the contact's IANA timezone, defaulting to UTC per spec.md §4.4.
func (c *Contact) TZ() string {
	if c.Timezone == "" {
		return "UTC"
	}
	return c.Timezone
}

// HasTag reports whether tag (normalized) matches any of the contact's tags
// by equality or substring containment, per the "contains" semantics used
// throughout trigger matching (spec.md §4.5) and segment evaluation (§4.9).
func (c *Contact) HasTag(tag string) bool {
	return containsNormalized(c.Tags, tag)
}

// HasList reports list membership with the same equals-or-contains semantics as HasTag.
func (c *Contact) HasList(list string) bool {
	return containsNormalized(c.Lists, list)
}
