package model

// AgeGroup is an enumerated age bucket derived from a numeric age.
type AgeGroup string

const (
	AgeGroupToddler     AgeGroup = "toddler"
	AgeGroupPreschool   AgeGroup = "preschool"
	AgeGroupEarlySchool AgeGroup = "early_school"
	AgeGroupTween       AgeGroup = "tween"
	AgeGroupTeen        AgeGroup = "teen"
)

// AgeGroupForAge maps a numeric age to its bucket. This is the single
// canonical mapping; every component that needs an age bucket goes through it.
func AgeGroupForAge(age int) AgeGroup {
	switch {
	case age <= 2:
		return AgeGroupToddler
	case age <= 5:
		return AgeGroupPreschool
	case age <= 9:
		return AgeGroupEarlySchool
	case age <= 12:
		return AgeGroupTween
	default:
		return AgeGroupTeen
	}
}

// BudgetTier is the catalog price tier a profile maps to.
type BudgetTier string

const (
	BudgetTierBudget   BudgetTier = "budget"
	BudgetTierModerate BudgetTier = "moderate"
	BudgetTierPremium  BudgetTier = "premium"
)

// BudgetTierForLevel maps the intake form's budget answer to a catalog tier.
// Unknown values map to moderate.
func BudgetTierForLevel(level BudgetLevel) BudgetTier {
	switch level {
	case BudgetLevelLow:
		return BudgetTierBudget
	case BudgetLevelHigh:
		return BudgetTierPremium
	default:
		return BudgetTierModerate
	}
}

// RecipientProfile is the accumulated picture of the gift recipient. It is
// seeded from form data, optionally enriched by the vision stage, and
// finalized by the profile-merge stage.
type RecipientProfile struct {
	Name               string     `json:"name"`
	AgeGroup           AgeGroup   `json:"age_group"`
	PrimaryInterests   []string   `json:"primary_interests"`
	SecondaryInterests []string   `json:"secondary_interests,omitempty"`
	PersonalityTraits  []string   `json:"personality_traits,omitempty"`
	GiftCategories     []string   `json:"gift_categories"`
	BudgetTier         BudgetTier `json:"budget_tier"`
	AvoidCategories    []string   `json:"avoid_categories,omitempty"`
}

// VisionResult is the vision stage's structured output. Confidence 0 means
// "no usable image signal" and downstream consumers must treat it as absent.
type VisionResult struct {
	EstimatedAgeRange string   `json:"estimated_age_range"`
	AgeGroupGuess     AgeGroup `json:"age_group_guess"`
	ObservedInterests []string `json:"observed_interests"`
	ObservedColors    []string `json:"observed_colors"`
	EnvironmentNotes  []string `json:"environment_notes"`
	Confidence        float64  `json:"confidence"`
	Skipped           bool     `json:"skipped,omitempty"`
}

// MergedProfile is the profile-merge stage's output.
type MergedProfile struct {
	Profile    RecipientProfile `json:"profile"`
	Confidence float64          `json:"confidence"`
}
