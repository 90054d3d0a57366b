package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/giftwise/giftwise-cli/internal/model"
	"github.com/giftwise/giftwise-cli/pkg/anthropic"
)

const narrationSystemPrompt = `You write a short, warm gift-recommendation letter addressed to the
person shopping for the recipient. Two or three paragraphs, plain text.

Rules:
- Mention the recipient by name.
- Weave in the top recommended gifts naturally; do not output a list.
- Ground every claim in the provided profile and recommendations.
- No markdown, no headings, no sign-off placeholder like "[Your name]".`

// Narrate runs the narration stage. The top recommendations and profile
// highlights seed the prompt; when streaming is enabled each text delta is
// forwarded to the event sink as it arrives. Any inference failure degrades
// to a templated letter so the session always ends with narration text.
func (p *Pipeline) Narrate(ctx context.Context, profile *model.RecipientProfile, recs []model.ScoredRecommendation, em *emitter) Outcome[string] {
	req := anthropic.MessageRequest{
		Model:     p.cfg.Anthropic.SonnetModel,
		MaxTokens: p.cfg.Anthropic.MaxTokens,
		System:    anthropic.BuildCachedSystemBlocks(narrationSystemPrompt),
		Messages: []anthropic.Message{
			{Role: "user", Content: p.narrationPrompt(profile, recs)},
		},
	}

	var (
		resp *anthropic.MessageResponse
		err  error
	)
	if p.cfg.Pipeline.StreamNarration {
		resp, err = p.anthropic.StreamMessage(ctx, req, func(text string) error {
			em.stageOutput(model.StageNarration, map[string]any{"delta": text})
			return nil
		})
	} else {
		resp, err = p.anthropic.CreateMessage(ctx, req)
	}
	if err != nil {
		zap.L().Warn("narration inference failed, using templated letter", zap.Error(err))
		return Degraded(fallbackNarration(profile), fmt.Sprintf("narration failed: %v", err))
	}
	resp.Usage.LogCost(p.cfg.Anthropic.SonnetModel, string(model.StageNarration))

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		zap.L().Warn("narration reply empty, using templated letter")
		return Degraded(fallbackNarration(profile), "narration reply empty")
	}
	return Ok(text)
}

func (p *Pipeline) narrationPrompt(profile *model.RecipientProfile, recs []model.ScoredRecommendation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Recipient: %s (%s, %s budget)\n", profile.Name, profile.AgeGroup, profile.BudgetTier)
	if len(profile.PrimaryInterests) > 0 {
		fmt.Fprintf(&b, "Interests: %s\n", strings.Join(profile.PrimaryInterests, ", "))
	}
	if len(profile.PersonalityTraits) > 0 {
		fmt.Fprintf(&b, "Personality: %s\n", strings.Join(profile.PersonalityTraits, ", "))
	}

	hints := recs
	if len(hints) > p.cfg.Pipeline.NarrationHints {
		hints = hints[:p.cfg.Pipeline.NarrationHints]
	}
	if len(hints) > 0 {
		b.WriteString("\nTop recommendations:\n")
		for _, r := range hints {
			fmt.Fprintf(&b, "%d. %s: %s\n", r.Rank, r.Item.Name, r.Reasoning)
		}
	} else {
		b.WriteString("\nNo catalog matches were found; suggest how to choose a gift for this profile instead.\n")
	}
	return b.String()
}

// fallbackNarration is the deterministic letter used when inference is
// unavailable. The title caser keeps an all-lowercase form name presentable.
func fallbackNarration(profile *model.RecipientProfile) string {
	name := cases.Title(language.English).String(strings.TrimSpace(profile.Name))
	if name == "" {
		name = "your recipient"
	}

	interest := "the things they love most"
	if len(profile.PrimaryInterests) > 0 {
		top := profile.PrimaryInterests
		if len(top) > 2 {
			top = top[:2]
		}
		interest = strings.Join(top, " and ")
	}

	return fmt.Sprintf(
		"We put together some gift ideas for %s. Based on what you shared, anything involving %s should be a hit. "+
			"Each pick above was chosen to suit a %s recipient within your budget, so you can choose with confidence. "+
			"Happy gifting!",
		name, interest, strings.ReplaceAll(string(profile.AgeGroup), "_", " "),
	)
}
