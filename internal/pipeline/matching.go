package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/giftwise/giftwise-cli/internal/model"
	"github.com/giftwise/giftwise-cli/internal/store"
	"github.com/giftwise/giftwise-cli/pkg/anthropic"
)

const matchingSystemPrompt = `You rank gift catalog items for a recipient profile. You only rank the
candidates given to you; you never invent items.

Respond with ONLY a JSON array:
[
  {
    "item_id": "<candidate id>",
    "score": <0-100>,
    "reasoning": "<one sentence tied to the profile>",
    "matched_interests": ["<interest>", ...]
  },
  ...
]

Rules:
- item_id must be one of the provided candidate ids.
- Order the array best gift first.
- score reflects fit with the recipient's interests, age group, and
  categories to avoid. A poor fit scores low rather than being omitted.`

// fallbackBaseScore is the score of the first fallback recommendation;
// each following one steps down by fallbackScoreStep.
const (
	fallbackBaseScore = 80
	fallbackScoreStep = 5
)

// rankedItem mirrors the model's per-candidate ranking element.
type rankedItem struct {
	ItemID           string   `json:"item_id"`
	Score            float64  `json:"score"`
	Reasoning        string   `json:"reasoning"`
	MatchedInterests []string `json:"matched_interests"`
}

// MatchGifts runs the matching stage: retrieve candidates for the profile,
// have the model rank them, and post-process the ranking into at most
// MaxRecommendations entries with dense 1-based ranks. Inference failures
// degrade to a deterministic popularity-order fallback; only the store
// failing is fatal.
func (p *Pipeline) MatchGifts(ctx context.Context, profile *model.RecipientProfile) (Outcome[[]model.ScoredRecommendation], error) {
	categories := appendMissing(append([]string{}, profile.GiftCategories...), profile.PrimaryInterests, nil)

	candidates, err := RetrieveCandidates(ctx, p.store, categories, profile.BudgetTier,
		p.cfg.Pipeline.CandidateLimit, p.cfg.Pipeline.RetrievalFloor)
	if err != nil {
		return Outcome[[]model.ScoredRecommendation]{}, eris.Wrap(err, "matching: retrieve candidates")
	}
	if len(candidates) == 0 {
		zap.L().Info("no catalog candidates for profile", zap.String("tier", string(profile.BudgetTier)))
		return Ok([]model.ScoredRecommendation{}), nil
	}

	recs, rankErr := p.rankWithInference(ctx, profile, candidates)
	if rankErr == nil {
		return Ok(recs), nil
	}
	zap.L().Warn("matching inference failed, using fallback ranking", zap.Error(rankErr))

	fallback, err := p.fallbackRecommendations(ctx, profile)
	if err != nil {
		return Outcome[[]model.ScoredRecommendation]{}, eris.Wrap(err, "matching: fallback retrieval")
	}
	return Degraded(fallback, fmt.Sprintf("matching inference failed: %v", rankErr)), nil
}

func (p *Pipeline) rankWithInference(ctx context.Context, profile *model.RecipientProfile, candidates []model.CatalogItem) ([]model.ScoredRecommendation, error) {
	profileJSON, err := json.Marshal(profile)
	if err != nil {
		return nil, err
	}
	candidateJSON, err := json.Marshal(candidates)
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf("Recipient profile:\n%s\n\nCandidate items:\n%s", profileJSON, candidateJSON)

	resp, err := p.anthropic.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     p.cfg.Anthropic.SonnetModel,
		MaxTokens: p.cfg.Anthropic.MaxTokens,
		System:    anthropic.BuildCachedSystemBlocks(matchingSystemPrompt),
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, err
	}
	resp.Usage.LogCost(p.cfg.Anthropic.SonnetModel, string(model.StageMatching))

	var ranked []rankedItem
	if err := decodePayload(resp.Text(), &ranked); err != nil {
		return nil, err
	}
	if len(ranked) == 0 {
		return nil, eris.New("matching: empty ranking")
	}

	byID := make(map[string]model.CatalogItem, len(candidates))
	for _, c := range candidates {
		byID[c.ID] = c
	}

	recs := make([]model.ScoredRecommendation, 0, p.cfg.Pipeline.MaxRecommendations)
	seen := make(map[string]bool, len(ranked))
	for _, r := range ranked {
		if len(recs) >= p.cfg.Pipeline.MaxRecommendations {
			break
		}
		item, ok := byID[r.ItemID]
		if !ok || seen[r.ItemID] {
			// Hallucinated or repeated ids are dropped, not fatal.
			continue
		}
		seen[r.ItemID] = true
		recs = append(recs, model.ScoredRecommendation{
			Item:             item,
			Score:            clampScore(r.Score),
			Reasoning:        strings.TrimSpace(r.Reasoning),
			MatchedInterests: r.MatchedInterests,
			Rank:             len(recs) + 1,
		})
	}
	if len(recs) == 0 {
		return nil, eris.New("matching: ranking referenced no known candidates")
	}
	return recs, nil
}

// fallbackRecommendations builds a deterministic list when ranking is
// unavailable: a small tier-only retrieval in catalog order, with scores
// stepping down from fallbackBaseScore and generic reasoning naming the
// recipient's top interests.
func (p *Pipeline) fallbackRecommendations(ctx context.Context, profile *model.RecipientProfile) ([]model.ScoredRecommendation, error) {
	items, err := p.store.ListActiveCatalogItems(ctx, store.CatalogFilter{
		Tier:  profile.BudgetTier,
		Limit: p.cfg.Pipeline.FallbackCandidates,
	})
	if err != nil {
		return nil, err
	}

	top := profile.PrimaryInterests
	if len(top) > 2 {
		top = top[:2]
	}
	reason := "A popular pick for this age group and budget."
	if len(top) > 0 {
		reason = fmt.Sprintf("A popular pick for someone into %s.", strings.Join(top, " and "))
	}

	recs := make([]model.ScoredRecommendation, 0, len(items))
	for i, item := range items {
		recs = append(recs, model.ScoredRecommendation{
			Item:             item,
			Score:            clampScore(float64(fallbackBaseScore - i*fallbackScoreStep)),
			Reasoning:        reason,
			MatchedInterests: top,
			Rank:             i + 1,
		})
	}
	return recs, nil
}
