// Package pipeline runs the four-stage gift recommendation flow for one
// session: vision, profile merge, matching, and narration. Stages self-heal
// through fallbacks wherever inference misbehaves; only persistence failures
// and missing preconditions abort a run.
package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/giftwise/giftwise-cli/internal/config"
	"github.com/giftwise/giftwise-cli/internal/model"
	"github.com/giftwise/giftwise-cli/internal/store"
	"github.com/giftwise/giftwise-cli/pkg/anthropic"
)

// Pipeline orchestrates stage execution for gift sessions. It is safe for
// concurrent use across distinct sessions; per-session exclusivity comes from
// the store's processing transition.
type Pipeline struct {
	cfg       *config.Config
	store     store.Store
	anthropic anthropic.Client
	vocab     *Vocabulary
}

// New creates a Pipeline. A nil vocab falls back to the built-in category
// set.
func New(cfg *config.Config, st store.Store, client anthropic.Client, vocab *Vocabulary) *Pipeline {
	if vocab == nil {
		vocab = DefaultVocabulary()
	}
	return &Pipeline{cfg: cfg, store: st, anthropic: client, vocab: vocab}
}

// Run executes the full pipeline for one session, emitting progress events
// to sink (which may be nil). The returned summary is non-nil whenever the
// session was acquired; Success reports whether the run reached completion.
func (p *Pipeline) Run(ctx context.Context, sessionID string, sink model.EventSink) (*model.RunSummary, error) {
	em := newEmitter(sink)

	if _, err := p.store.GetSession(ctx, sessionID); err != nil {
		return nil, eris.Wrap(err, "pipeline: load session")
	}

	acquired, err := p.store.BeginProcessing(ctx, sessionID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: begin processing")
	}
	if !acquired {
		return nil, eris.Errorf("pipeline: session %s is already processing", sessionID)
	}

	form, err := p.store.GetFormData(ctx, sessionID)
	if err != nil {
		return p.fail(ctx, em, sessionID, eris.Wrap(err, "pipeline: load form data"))
	}

	zap.L().Info("pipeline run started",
		zap.String("session_id", sessionID),
		zap.Bool("has_image", form.ImageRef != ""),
	)

	// Stage 1: vision. Skipped entirely when no image was uploaded; the
	// ledger still records a completed run so every session shows all four
	// stages.
	vision, err := runStage(ctx, p, em, sessionID, model.StageVision, form,
		func(ctx context.Context) (Outcome[model.VisionResult], error) {
			if form.ImageRef == "" {
				skipped := zeroVisionResult()
				skipped.Skipped = true
				return Ok(skipped), nil
			}
			return p.AnalyzeImage(ctx, form), nil
		},
		func(v model.VisionResult) map[string]any {
			return map[string]any{
				"skipped":            v.Skipped,
				"confidence":         v.Confidence,
				"observed_interests": len(v.ObservedInterests),
			}
		})
	if err != nil {
		return p.fail(ctx, em, sessionID, err)
	}

	// Stage 2: profile merge.
	merged, err := runStage(ctx, p, em, sessionID, model.StageProfileMerge, form,
		func(ctx context.Context) (Outcome[model.MergedProfile], error) {
			return p.MergeProfile(ctx, form, &vision), nil
		},
		func(v model.MergedProfile) map[string]any {
			return map[string]any{
				"confidence":        v.Confidence,
				"age_group":         string(v.Profile.AgeGroup),
				"primary_interests": len(v.Profile.PrimaryInterests),
			}
		})
	if err != nil {
		return p.fail(ctx, em, sessionID, err)
	}
	if err := p.store.UpsertProfile(ctx, sessionID, merged.Profile); err != nil {
		return p.fail(ctx, em, sessionID, eris.Wrap(err, "pipeline: persist profile"))
	}

	// Stage 3: matching.
	recs, err := runStage(ctx, p, em, sessionID, model.StageMatching, &merged.Profile,
		func(ctx context.Context) (Outcome[[]model.ScoredRecommendation], error) {
			return p.MatchGifts(ctx, &merged.Profile)
		},
		func(v []model.ScoredRecommendation) map[string]any {
			return map[string]any{"recommendation_count": len(v)}
		})
	if err != nil {
		return p.fail(ctx, em, sessionID, err)
	}
	if err := p.store.ReplaceRecommendations(ctx, sessionID, recs); err != nil {
		return p.fail(ctx, em, sessionID, eris.Wrap(err, "pipeline: persist recommendations"))
	}

	// Stage 4: narration.
	narration, err := runStage(ctx, p, em, sessionID, model.StageNarration, &merged.Profile,
		func(ctx context.Context) (Outcome[string], error) {
			return p.Narrate(ctx, &merged.Profile, recs, em), nil
		},
		func(v string) map[string]any {
			return map[string]any{"narration_chars": len(v)}
		})
	if err != nil {
		return p.fail(ctx, em, sessionID, err)
	}
	if err := p.store.InsertNarration(ctx, sessionID, narration); err != nil {
		return p.fail(ctx, em, sessionID, eris.Wrap(err, "pipeline: persist narration"))
	}

	if err := p.store.SetSessionStatus(ctx, sessionID, model.SessionStatusCompleted); err != nil {
		return p.fail(ctx, em, sessionID, eris.Wrap(err, "pipeline: mark session completed"))
	}

	em.complete(map[string]any{
		"recommendation_count": len(recs),
	})
	zap.L().Info("pipeline run completed",
		zap.String("session_id", sessionID),
		zap.Int("recommendations", len(recs)),
	)

	return &model.RunSummary{
		Success:             true,
		NarrationText:       narration,
		RecommendationCount: len(recs),
	}, nil
}

// fail is the single fatal exit: mark the session failed (best effort, the
// session may be left processing if even that write fails), emit one error
// event, and surface the cause.
func (p *Pipeline) fail(ctx context.Context, em *emitter, sessionID string, cause error) (*model.RunSummary, error) {
	zap.L().Error("pipeline run failed",
		zap.String("session_id", sessionID),
		zap.Error(cause),
	)
	if err := p.store.SetSessionStatus(ctx, sessionID, model.SessionStatusFailed); err != nil {
		zap.L().Error("could not mark session failed", zap.String("session_id", sessionID), zap.Error(err))
	}
	em.failure(cause.Error())
	return &model.RunSummary{Success: false, Error: cause.Error()}, cause
}

// runStage records one stage execution in the ledger around invoke. The
// ledger write sequence is pending, running, then completed or failed; an
// error from invoke or from any ledger write is fatal to the run. Degraded
// outcomes complete normally with the fallback reason kept on the run row.
func runStage[T any](
	ctx context.Context,
	p *Pipeline,
	em *emitter,
	sessionID string,
	stage model.StageID,
	input any,
	invoke func(ctx context.Context) (Outcome[T], error),
	describe func(v T) map[string]any,
) (T, error) {
	var zero T

	run, err := p.store.CreateStageRun(ctx, sessionID, stage)
	if err != nil {
		return zero, eris.Wrapf(err, "pipeline: create %s run", stage)
	}

	started := time.Now().UTC()
	running := model.StageStatusRunning
	update := model.StageRunUpdate{Status: &running, StartedAt: &started}
	if input != nil {
		if raw, merr := json.Marshal(input); merr == nil {
			update.Input = raw
		}
	}
	if err := p.store.UpdateStageRun(ctx, run.ID, update); err != nil {
		return zero, eris.Wrapf(err, "pipeline: start %s run", stage)
	}
	em.stageStatus(stage, model.StageStatusRunning)

	outcome, err := invoke(ctx)
	completed := time.Now().UTC()
	duration := completed.Sub(started).Milliseconds()

	if err != nil {
		failed := model.StageStatusFailed
		msg := err.Error()
		uerr := p.store.UpdateStageRun(ctx, run.ID, model.StageRunUpdate{
			Status:      &failed,
			Error:       &msg,
			CompletedAt: &completed,
			DurationMs:  &duration,
		})
		if uerr != nil {
			zap.L().Error("could not record stage failure", zap.String("stage", string(stage)), zap.Error(uerr))
		}
		em.stageStatus(stage, model.StageStatusFailed)
		return zero, eris.Wrapf(err, "pipeline: stage %s", stage)
	}

	done := model.StageStatusCompleted
	update = model.StageRunUpdate{
		Status:      &done,
		CompletedAt: &completed,
		DurationMs:  &duration,
	}
	if raw, merr := json.Marshal(outcome.Value); merr == nil {
		update.Output = raw
	}
	if outcome.Degraded {
		update.Error = &outcome.Reason
	}
	if err := p.store.UpdateStageRun(ctx, run.ID, update); err != nil {
		return zero, eris.Wrapf(err, "pipeline: finish %s run", stage)
	}

	em.stageStatus(stage, model.StageStatusCompleted)
	data := map[string]any{"duration_ms": duration}
	if describe != nil {
		for k, v := range describe(outcome.Value) {
			data[k] = v
		}
	}
	if outcome.Degraded {
		data["degraded"] = true
		data["reason"] = outcome.Reason
	}
	em.stageOutput(stage, data)

	return outcome.Value, nil
}
