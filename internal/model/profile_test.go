package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAgeGroupForAge_Boundaries(t *testing.T) {
	cases := []struct {
		age  int
		want AgeGroup
	}{
		{0, AgeGroupToddler},
		{2, AgeGroupToddler},
		{3, AgeGroupPreschool},
		{5, AgeGroupPreschool},
		{6, AgeGroupEarlySchool},
		{7, AgeGroupEarlySchool},
		{9, AgeGroupEarlySchool},
		{10, AgeGroupTween},
		{12, AgeGroupTween},
		{13, AgeGroupTeen},
		{17, AgeGroupTeen},
		{40, AgeGroupTeen},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, AgeGroupForAge(c.age), "age %d", c.age)
	}
}

func TestBudgetTierForLevel(t *testing.T) {
	assert.Equal(t, BudgetTierBudget, BudgetTierForLevel(BudgetLevelLow))
	assert.Equal(t, BudgetTierModerate, BudgetTierForLevel(BudgetLevelMedium))
	assert.Equal(t, BudgetTierPremium, BudgetTierForLevel(BudgetLevelHigh))
	// Unknown answers fall back to moderate.
	assert.Equal(t, BudgetTierModerate, BudgetTierForLevel(""))
	assert.Equal(t, BudgetTierModerate, BudgetTierForLevel("mystery"))
}

func TestAllStages_Order(t *testing.T) {
	assert.Equal(t, []StageID{StageVision, StageProfileMerge, StageMatching, StageNarration}, AllStages())
}
