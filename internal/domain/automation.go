package domain

import (
	"fmt"
	"time"
)

// AutomationStatus is the lifecycle state of an automation definition.
type AutomationStatus string

const (
	AutomationStatusDraft   AutomationStatus = "draft"
	AutomationStatusRunning AutomationStatus = "running"
	AutomationStatusPaused  AutomationStatus = "paused"
)

// StepType discriminates the AutomationStep union (spec.md §9 Design Notes:
// "AutomationStep is a discriminated union over
// {Trigger(kind, params), Wait(days), Condition(kind, params, yes, no), Action(kind, params)}").
type StepType string

const (
	StepTypeTrigger    StepType = "trigger"
	StepTypeWait       StepType = "wait"
	StepTypeCondition  StepType = "condition"
	StepTypeAction     StepType = "action"
)

// StepConfig is the untyped-bag payload of a step, addressed by Kind. Flow
// edges are string ids of steps in the automation's Steps slice (spec.md §9: "arena +
// index, not object pointers, because the graph is persisted as JSON").
type StepConfig struct {
	Kind   string                 `json:"kind"`
	Params map[string]interface{} `json:"params,omitempty"`
	Next   string                 `json:"next,omitempty"`
	NextYes string                `json:"nextYes,omitempty"`
	NextNo  string                `json:"nextNo,omitempty"`
}

// Str returns a string field from the step's params bag, or "" if absent.
func (c StepConfig) Str(key string) string {
	if v, ok := c.Params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Num returns a numeric field from the step's params bag.
func (c StepConfig) Num(key string) (float64, bool) {
	if v, ok := c.Params[key]; ok {
		switch n := v.(type) {
		case float64:
			return n, true
		case int:
			return float64(n), true
		}
	}
	return 0, false
}

// AutomationStep is one node in the automation's step graph.
type AutomationStep struct {
	ID     string     `json:"id"`
	Type   StepType   `json:"type"`
	Config StepConfig `json:"config"`
}

// Automation is an ordered step graph; steps are addressed by id for JSON
// round-tripping (the id→step arena from spec.md §9).
type Automation struct {
	ID          string           `json:"id"`
	WorkspaceID string           `json:"workspace_id"`
	Name        string           `json:"name"`
	Status      AutomationStatus `json:"status"`
	Steps       []AutomationStep `json:"steps"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`

	stepIndex map[string]int // built lazily by StepByID
}

// StepByID looks up a step by id in O(1) after the first call.
func (a *Automation) StepByID(id string) *AutomationStep {
	if a.stepIndex == nil {
		a.stepIndex = make(map[string]int, len(a.Steps))
		for i, s := range a.Steps {
			a.stepIndex[s.ID] = i
		}
	}
	idx, ok := a.stepIndex[id]
	if !ok {
		return nil
	}
	return &a.Steps[idx]
}

// NextPositional returns the id of the step that follows stepID in Steps, or
// "" if stepID is last or absent; used when a step's config has no explicit "next" (spec.md §4.5, §4.6:
// "else the next positional step").
func (a *Automation) NextPositional(stepID string) string {
	for i, s := range a.Steps {
		if s.ID == stepID {
			if i+1 < len(a.Steps) {
				return a.Steps[i+1].ID
			}
			return ""
		}
	}
	return ""
}

// TriggerSteps returns every step of type trigger, in order.
func (a *Automation) TriggerSteps() []AutomationStep {
	var out []AutomationStep
	for _, s := range a.Steps {
		if s.Type == StepTypeTrigger {
			out = append(out, s)
		}
	}
	return out
}

// RunStatus is the lifecycle of one contact's pass through an automation.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// AutomationRun is one (automation, contact, trigger-event) instance.
type AutomationRun struct {
	ID            string                 `json:"id"`
	WorkspaceID   string                 `json:"workspace_id"`
	AutomationID  string                 `json:"automation_id"`
	ContactID     string                 `json:"contact_id"`
	Status        RunStatus              `json:"status"`
	CurrentStepID *string                `json:"current_step_id,omitempty"`
	StartedAt     time.Time              `json:"started_at"`
	FinishedAt    *time.Time             `json:"finished_at,omitempty"`
	LastError     *string                `json:"last_error,omitempty"`
	Meta          map[string]interface{} `json:"meta,omitempty"`
}

// QueueStatus is the lifecycle of one automation_queue item.
type QueueStatus string

const (
	QueueStatusQueued     QueueStatus = "queued"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusDone       QueueStatus = "done"
	QueueStatusFailed     QueueStatus = "failed"
)

// AutomationQueueItem is one due unit of work for the execution worker
// (spec.md §3: "at-least-once. Claimed by status=processing + attempt increment").
type AutomationQueueItem struct {
	ID           string                 `json:"id"`
	WorkspaceID  string                 `json:"workspace_id"`
	RunID        string                 `json:"run_id"`
	AutomationID string                 `json:"automation_id"`
	ContactID    string                 `json:"contact_id"`
	StepID       string                 `json:"step_id"`
	ExecuteAt    time.Time              `json:"execute_at"`
	Status       QueueStatus            `json:"status"`
	Attempts     int                    `json:"attempts"`
	LastError    *string                `json:"last_error,omitempty"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
}

// ConditionOp is a comparison operator used by condition.lead_score.
type ConditionOp string

const (
	OpGT  ConditionOp = ">"
	OpGTE ConditionOp = ">="
	OpLT  ConditionOp = "<"
	OpLTE ConditionOp = "<="
)

// Compare evaluates lhs <op> rhs.
func (op ConditionOp) Compare(lhs, rhs float64) bool {
	switch op {
	case OpGTE:
		return lhs >= rhs
	case OpLT:
		return lhs < rhs
	case OpLTE:
		return lhs <= rhs
	case OpGT, "":
		return lhs > rhs
	default:
		return lhs > rhs
	}
}

// ParseConditionOp parses an operator string, defaulting to ">" (spec.md
// §4.6: "default >") when unset or unrecognized.
func ParseConditionOp(s string) ConditionOp {
	switch ConditionOp(s) {
	case OpGT, OpGTE, OpLT, OpLTE:
		return ConditionOp(s)
	default:
		return OpGT
	}
}

func (s StepConfig) String() string {
	return fmt.Sprintf("StepConfig{kind=%s}", s.Kind)
}
