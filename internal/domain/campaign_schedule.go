package domain

import "time"

// ScheduleStatus is the lifecycle status of a campaign_schedules row.
type ScheduleStatus string

const (
	ScheduleStatusActive    ScheduleStatus = "active"
	ScheduleStatusCompleted ScheduleStatus = "completed"
)

// ScheduleMode selects how execute_at is derived for each recipient.
type ScheduleMode string

const (
	ScheduleModeBestTime  ScheduleMode = "best_time"
	ScheduleModeFixedTime ScheduleMode = "fixed_time"
)

// ABMetric selects which engagement signal decides the A/B winner.
type ABMetric string

const (
	ABMetricOpens  ABMetric = "opens"
	ABMetricClicks ABMetric = "clicks"
)

// CampaignSchedule is one due-time entry driving the scheduler (spec.md §3, §4.7).
type CampaignSchedule struct {
	ID             string         `json:"id"`
	WorkspaceID    string         `json:"workspace_id"`
	CampaignID     string         `json:"campaign_id"`
	Status         ScheduleStatus `json:"status"`
	Mode           ScheduleMode   `json:"mode"`
	WindowStart    string         `json:"window_start"` // "HH:MM"
	WindowEnd      string         `json:"window_end"`   // "HH:MM"
	Timezone       string         `json:"timezone"`
	NextRunAt      time.Time      `json:"next_run_at"`
	ABEnabled      bool           `json:"ab_enabled"`
	ABSubjectA     string         `json:"ab_subject_a"`
	ABSubjectB     string         `json:"ab_subject_b"`
	ABSubjectC     string         `json:"ab_subject_c"`
	ABTestFraction float64        `json:"ab_test_fraction"`
	ABWaitMinutes  int            `json:"ab_wait_minutes"`
	ABMetric       ABMetric       `json:"ab_metric"`
	SegmentJSON    *SegmentDefinition `json:"segment_json,omitempty"`
}

// ABVariant pairs a variant's label (A/B/C, also the tie-break order) with
// its subject line.
type ABVariant struct {
	Label   string
	Subject string
}

// ABVariants returns the non-empty configured subject variants, in A/B/C
// label order.
func (s *CampaignSchedule) ABVariants() []ABVariant {
	var variants []ABVariant
	for _, pair := range []ABVariant{{"A", s.ABSubjectA}, {"B", s.ABSubjectB}, {"C", s.ABSubjectC}} {
		if pair.Subject != "" {
			variants = append(variants, pair)
		}
	}
	return variants
}

// ABTestEligible reports whether this schedule should run the A/B test path
// (spec.md §4.7 step 3: enabled and at least two non-empty subjects).
func (s *CampaignSchedule) ABTestEligible() bool {
	return s.ABEnabled && len(s.ABVariants()) >= 2
}

// CampaignABStateStatus is the lifecycle of an in-progress A/B test.
type CampaignABStateStatus string

const (
	ABStateTesting        CampaignABStateStatus = "testing"
	ABStateWinnerSelected CampaignABStateStatus = "winner_selected"
)

// CampaignABState tracks one schedule's A/B test, keyed by (workspace, schedule).
type CampaignABState struct {
	WorkspaceID   string                 `json:"workspace_id"`
	ScheduleID    string                 `json:"schedule_id"`
	Status        CampaignABStateStatus  `json:"status"`
	TestEndAt     time.Time              `json:"test_end_at"`
	WinnerSubject string                 `json:"winner_subject"`
}
