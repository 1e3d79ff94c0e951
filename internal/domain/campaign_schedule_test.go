package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCampaignSchedule_ABVariantsOrderAndFiltering(t *testing.T) {
	s := &CampaignSchedule{ABSubjectA: "Hello A", ABSubjectC: "Hello C"}
	variants := s.ABVariants()
	assert.Equal(t, []ABVariant{{"A", "Hello A"}, {"C", "Hello C"}}, variants)
}

func TestCampaignSchedule_ABVariantsEmpty(t *testing.T) {
	s := &CampaignSchedule{}
	assert.Empty(t, s.ABVariants())
}

func TestCampaignSchedule_ABTestEligible(t *testing.T) {
	notEnabled := &CampaignSchedule{ABEnabled: false, ABSubjectA: "A", ABSubjectB: "B"}
	assert.False(t, notEnabled.ABTestEligible())

	onlyOneVariant := &CampaignSchedule{ABEnabled: true, ABSubjectA: "A"}
	assert.False(t, onlyOneVariant.ABTestEligible())

	eligible := &CampaignSchedule{ABEnabled: true, ABSubjectA: "A", ABSubjectB: "B"}
	assert.True(t, eligible.ABTestEligible())

	threeVariants := &CampaignSchedule{ABEnabled: true, ABSubjectA: "A", ABSubjectB: "B", ABSubjectC: "C"}
	assert.True(t, threeVariants.ABTestEligible())
}
