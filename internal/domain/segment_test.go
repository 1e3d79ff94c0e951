package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSegmentDefinition_EvaluateNilOrEmpty(t *testing.T) {
	var nilSeg *SegmentDefinition
	assert.True(t, nilSeg.Evaluate(&Contact{}))

	empty := &SegmentDefinition{Logic: SegmentLogicAnd}
	assert.True(t, empty.Evaluate(&Contact{}))
}

func TestSegmentDefinition_EvaluateAnd(t *testing.T) {
	seg := &SegmentDefinition{
		Logic: SegmentLogicAnd,
		Conditions: []SegmentCondition{
			{Field: "lifecycleStage", Op: "=", Value: "customer"},
			{Field: "temperature", Op: "=", Value: "hot"},
		},
	}
	match := &Contact{LifecycleStage: "customer", Temperature: TemperatureHot}
	assert.True(t, seg.Evaluate(match))

	noMatch := &Contact{LifecycleStage: "customer", Temperature: TemperatureCold}
	assert.False(t, seg.Evaluate(noMatch))
}

func TestSegmentDefinition_EvaluateOr(t *testing.T) {
	seg := &SegmentDefinition{
		Logic: SegmentLogicOr,
		Conditions: []SegmentCondition{
			{Field: "tag", Op: "=", Value: "vip"},
			{Field: "leadScore", Op: ">=", Value: 80},
		},
	}
	byTag := &Contact{Tags: []string{"vip"}, LeadScore: 10}
	assert.True(t, seg.Evaluate(byTag))

	byScore := &Contact{LeadScore: 90}
	assert.True(t, seg.Evaluate(byScore))

	neither := &Contact{LeadScore: 5}
	assert.False(t, seg.Evaluate(neither))
}

func TestSegmentDefinition_UnknownFieldPassesThrough(t *testing.T) {
	seg := &SegmentDefinition{
		Logic:      SegmentLogicAnd,
		Conditions: []SegmentCondition{{Field: "favoriteColor", Op: "=", Value: "blue"}},
	}
	assert.True(t, seg.Evaluate(&Contact{}))
}

func TestSegmentDefinition_LeadScoreNumericOps(t *testing.T) {
	seg := &SegmentDefinition{
		Logic:      SegmentLogicAnd,
		Conditions: []SegmentCondition{{Field: "leadScore", Op: "<", Value: 50}},
	}
	assert.True(t, seg.Evaluate(&Contact{LeadScore: 10}))
	assert.False(t, seg.Evaluate(&Contact{LeadScore: 90}))
}

func TestSegmentCondition_NotEqualOperator(t *testing.T) {
	seg := &SegmentDefinition{
		Logic:      SegmentLogicAnd,
		Conditions: []SegmentCondition{{Field: "status", Op: "!=", Value: "unsubscribed"}},
	}
	assert.True(t, seg.Evaluate(&Contact{Status: ContactStatusSubscribed}))
	assert.False(t, seg.Evaluate(&Contact{Status: ContactStatusUnsubscribed}))
}

func TestSegmentCondition_StatusIsExactNotCaseFolded(t *testing.T) {
	seg := &SegmentDefinition{
		Logic:      SegmentLogicAnd,
		Conditions: []SegmentCondition{{Field: "status", Op: "=", Value: "Unsubscribed"}},
	}
	// status is an exact match: a mixed-case condition value must not match
	// the lowercase enum, unlike lifecycleStage/temperature which normalize.
	assert.False(t, seg.Evaluate(&Contact{Status: ContactStatusUnsubscribed}))

	seg.Conditions[0].Value = "unsubscribed"
	assert.True(t, seg.Evaluate(&Contact{Status: ContactStatusUnsubscribed}))
}

func TestSegmentCondition_LifecycleStageNormalizesCase(t *testing.T) {
	seg := &SegmentDefinition{
		Logic:      SegmentLogicAnd,
		Conditions: []SegmentCondition{{Field: "lifecycleStage", Op: "=", Value: "Customer"}},
	}
	assert.True(t, seg.Evaluate(&Contact{LifecycleStage: "customer"}))
}
