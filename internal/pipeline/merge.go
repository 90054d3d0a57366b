package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/giftwise/giftwise-cli/internal/model"
	"github.com/giftwise/giftwise-cli/pkg/anthropic"
)

const mergeSystemPrompt = `You merge a gift recipient's intake-form answers with signals extracted
from a photo into one coherent profile. Form answers are authoritative;
image signals only enrich them.

Respond with ONLY a JSON object:
{
  "profile": {
    "name": "<recipient name, unchanged>",
    "age_group": "toddler|preschool|early_school|tween|teen",
    "primary_interests": ["<interest>", ...],
    "secondary_interests": ["<interest>", ...],
    "personality_traits": ["<trait>", ...],
    "gift_categories": ["<category tag>", ...],
    "budget_tier": "<tier, unchanged>",
    "avoid_categories": ["<category tag>", ...]
  },
  "confidence": <0.0-1.0>
}

Rules:
- Keep name, age_group, and budget_tier exactly as given in the form
  profile. Never override them from the image.
- primary_interests come from the form; image-only interests go into
  secondary_interests.
- gift_categories must come from the allowed category list.
- When form and image disagree, the form wins.`

// maxPrimaryInterests caps how many form interests seed the profile.
const maxPrimaryInterests = 5

// MergeProfile runs the profile-merge stage. When no usable vision signal
// exists the merge is fully deterministic; otherwise the model reconciles the
// two sources and a failure there degrades to the deterministic merge with
// the vision interests appended as secondary.
func (p *Pipeline) MergeProfile(ctx context.Context, form *model.FormData, vision *model.VisionResult) Outcome[model.MergedProfile] {
	base := formOnlyProfile(form)

	if vision == nil || vision.Confidence <= 0 {
		return Ok(model.MergedProfile{Profile: base, Confidence: 0.6})
	}

	merged, err := p.mergeWithInference(ctx, base, vision)
	if err != nil {
		zap.L().Warn("profile merge inference failed, using form-only profile", zap.Error(err))
		fallback := base
		fallback.SecondaryInterests = appendMissing(fallback.SecondaryInterests, vision.ObservedInterests, fallback.PrimaryInterests)
		return Degraded(
			model.MergedProfile{Profile: fallback, Confidence: 0.5},
			fmt.Sprintf("merge inference failed: %v", err),
		)
	}
	return Ok(*merged)
}

func (p *Pipeline) mergeWithInference(ctx context.Context, base model.RecipientProfile, vision *model.VisionResult) (*model.MergedProfile, error) {
	baseJSON, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}
	visionJSON, err := json.Marshal(vision)
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(
		"Form profile:\n%s\n\nImage signals:\n%s\n\nAllowed gift categories: %s",
		baseJSON, visionJSON, strings.Join(p.vocab.Categories, ", "),
	)

	resp, err := p.anthropic.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     p.cfg.Anthropic.HaikuModel,
		MaxTokens: p.cfg.Anthropic.MaxTokens,
		System:    anthropic.BuildCachedSystemBlocks(mergeSystemPrompt),
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, err
	}
	resp.Usage.LogCost(p.cfg.Anthropic.HaikuModel, string(model.StageProfileMerge))

	var merged model.MergedProfile
	if err := decodePayload(resp.Text(), &merged); err != nil {
		return nil, err
	}

	// Form-authoritative fields cannot be overridden by the model.
	merged.Profile.Name = base.Name
	merged.Profile.AgeGroup = base.AgeGroup
	merged.Profile.BudgetTier = base.BudgetTier

	merged.Profile.GiftCategories = p.vocab.Constrain(merged.Profile.GiftCategories)
	merged.Profile.AvoidCategories = p.vocab.Constrain(merged.Profile.AvoidCategories)
	if len(merged.Profile.PrimaryInterests) == 0 {
		merged.Profile.PrimaryInterests = base.PrimaryInterests
	}
	if len(merged.Profile.GiftCategories) == 0 {
		merged.Profile.GiftCategories = base.GiftCategories
	}
	if merged.Confidence <= 0 || merged.Confidence > 1 {
		merged.Confidence = 0.7
	}
	return &merged, nil
}

// formOnlyProfile builds the deterministic profile used when no vision
// signal exists and as the base the inference merge starts from. Form
// interests flow through unchanged; no inference touches this path.
func formOnlyProfile(form *model.FormData) model.RecipientProfile {
	interests := make([]string, 0, len(form.Interests))
	for _, in := range form.Interests {
		in = strings.TrimSpace(in)
		if in != "" {
			interests = append(interests, in)
		}
	}
	if len(interests) > maxPrimaryInterests {
		interests = interests[:maxPrimaryInterests]
	}

	categories := make([]string, len(interests))
	copy(categories, interests)

	return model.RecipientProfile{
		Name:             form.RecipientName,
		AgeGroup:         model.AgeGroupForAge(form.Age),
		PrimaryInterests: interests,
		GiftCategories:   categories,
		BudgetTier:       model.BudgetTierForLevel(form.Budget),
	}
}

// appendMissing appends items from add to dst, skipping anything already in
// dst or excluded.
func appendMissing(dst, add, excluded []string) []string {
	seen := make(map[string]bool, len(dst)+len(excluded))
	for _, s := range dst {
		seen[strings.ToLower(s)] = true
	}
	for _, s := range excluded {
		seen[strings.ToLower(s)] = true
	}
	for _, s := range add {
		key := strings.ToLower(strings.TrimSpace(s))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		dst = append(dst, strings.TrimSpace(s))
	}
	return dst
}
