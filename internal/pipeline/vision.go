package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/giftwise/giftwise-cli/internal/model"
	"github.com/giftwise/giftwise-cli/pkg/anthropic"
)

const visionSystemPrompt = `You analyze a photo of a gift recipient's room, belongings, or artwork to
infer gift-relevant signals. You never attempt to identify the person.

Respond with ONLY a JSON object:
{
  "estimated_age_range": "<e.g. 6-9>",
  "age_group_guess": "toddler|preschool|early_school|tween|teen",
  "observed_interests": ["<interest>", ...],
  "observed_colors": ["<color>", ...],
  "environment_notes": ["<short observation>", ...],
  "confidence": <0.0-1.0>
}

Rules:
- observed_interests are hobby or theme signals visible in the image,
  such as "dinosaurs", "drawing", "soccer".
- confidence reflects how much gift-relevant signal the image carries.
  A blurry or empty image gets confidence 0.0.
- Never guess identity, gender, or location. Only describe objects.`

// AnalyzeImage runs the vision stage against the session's uploaded image.
// Every failure mode, from the API call to an unparseable reply, degrades to
// a zero-confidence result so the pipeline can continue on form data alone.
func (p *Pipeline) AnalyzeImage(ctx context.Context, form *model.FormData) Outcome[model.VisionResult] {
	prompt := fmt.Sprintf(
		"Analyze this image for gift ideas. The recipient is %d years old. Occasion: %s.",
		form.Age, orUnspecified(form.Occasion),
	)

	image := anthropic.ImageSource{}
	if strings.HasPrefix(form.ImageRef, "http://") || strings.HasPrefix(form.ImageRef, "https://") {
		image.URL = form.ImageRef
	} else {
		image.Base64Data = form.ImageRef
	}

	resp, err := p.anthropic.CreateVisionMessage(ctx, anthropic.MessageRequest{
		Model:     p.cfg.Anthropic.HaikuModel,
		MaxTokens: p.cfg.Anthropic.MaxTokens,
		System:    anthropic.BuildCachedSystemBlocks(visionSystemPrompt),
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	}, image)
	if err != nil {
		zap.L().Warn("vision call failed, continuing without image signal", zap.Error(err))
		return Degraded(zeroVisionResult(), fmt.Sprintf("vision request failed: %v", err))
	}
	resp.Usage.LogCost(p.cfg.Anthropic.HaikuModel, string(model.StageVision))

	var result model.VisionResult
	if err := decodePayload(resp.Text(), &result); err != nil {
		zap.L().Warn("vision reply unparseable", zap.Error(err))
		return Degraded(zeroVisionResult(), fmt.Sprintf("vision reply unparseable: %v", err))
	}

	if result.Confidence < 0 {
		result.Confidence = 0
	}
	if result.Confidence > 1 {
		result.Confidence = 1
	}
	if result.AgeGroupGuess != "" && !validAgeGroup(result.AgeGroupGuess) {
		result.AgeGroupGuess = ""
	}
	return Ok(result)
}

// zeroVisionResult is the stand-in used whenever no usable image signal
// exists. Confidence 0 tells the merge stage to ignore it.
func zeroVisionResult() model.VisionResult {
	return model.VisionResult{
		AgeGroupGuess:     model.AgeGroupEarlySchool,
		ObservedInterests: []string{},
		ObservedColors:    []string{},
		EnvironmentNotes:  []string{},
		Confidence:        0,
	}
}

func validAgeGroup(g model.AgeGroup) bool {
	switch g {
	case model.AgeGroupToddler, model.AgeGroupPreschool, model.AgeGroupEarlySchool,
		model.AgeGroupTween, model.AgeGroupTeen:
		return true
	}
	return false
}

func orUnspecified(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unspecified"
	}
	return s
}
