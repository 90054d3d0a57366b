package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giftwise/giftwise-cli/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite("file:" + t.TempDir() + "/test.db")
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func testForm() model.FormData {
	return model.FormData{
		RecipientName: "Alex",
		Age:           7,
		Interests:     []string{"science", "building"},
		Budget:        model.BudgetLevelMedium,
	}
}

func TestSQLiteStore_SessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, testForm())
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, model.SessionStatusNotStarted, sess.Status)

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, model.SessionStatusNotStarted, got.Status)

	require.NoError(t, s.SetSessionStatus(ctx, sess.ID, model.SessionStatusCompleted))
	got, err = s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCompleted, got.Status)
}

func TestSQLiteStore_GetSession_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetSession(context.Background(), "missing")
	assert.Error(t, err)
}

func TestSQLiteStore_BeginProcessing_CAS(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, testForm())
	require.NoError(t, err)

	acquired, err := s.BeginProcessing(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, acquired)

	// A second acquire while processing must lose.
	acquired, err = s.BeginProcessing(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, acquired)

	// Terminal state releases the lease.
	require.NoError(t, s.SetSessionStatus(ctx, sess.ID, model.SessionStatusFailed))
	acquired, err = s.BeginProcessing(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestSQLiteStore_FormData(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, testForm())
	require.NoError(t, err)

	form, err := s.GetFormData(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alex", form.RecipientName)
	assert.Equal(t, 7, form.Age)
	assert.Equal(t, []string{"science", "building"}, form.Interests)

	_, err = s.GetFormData(ctx, "missing")
	assert.Error(t, err)
}

func TestSQLiteStore_UpsertProfile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, testForm())
	require.NoError(t, err)

	profile := model.RecipientProfile{
		Name:             "Alex",
		AgeGroup:         model.AgeGroupEarlySchool,
		PrimaryInterests: []string{"science"},
		GiftCategories:   []string{"science"},
		BudgetTier:       model.BudgetTierModerate,
	}
	require.NoError(t, s.UpsertProfile(ctx, sess.ID, profile))

	// Second upsert replaces without error.
	profile.PrimaryInterests = append(profile.PrimaryInterests, "building")
	require.NoError(t, s.UpsertProfile(ctx, sess.ID, profile))
}

func TestSQLiteStore_StageRunLedger(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, testForm())
	require.NoError(t, err)

	run, err := s.CreateStageRun(ctx, sess.ID, model.StageVision)
	require.NoError(t, err)
	assert.Equal(t, model.StageStatusPending, run.Status)

	started := time.Now().UTC()
	running := model.StageStatusRunning
	require.NoError(t, s.UpdateStageRun(ctx, run.ID, model.StageRunUpdate{
		Status:    &running,
		Input:     []byte(`{"image_ref":"photo.jpg"}`),
		StartedAt: &started,
	}))

	completed := model.StageStatusCompleted
	completedAt := started.Add(1200 * time.Millisecond)
	durationMs := int64(1200)
	errNote := "fallback used: parse failure"
	require.NoError(t, s.UpdateStageRun(ctx, run.ID, model.StageRunUpdate{
		Status:      &completed,
		Output:      []byte(`{"confidence":0}`),
		Error:       &errNote,
		CompletedAt: &completedAt,
		DurationMs:  &durationMs,
	}))

	runs, err := s.ListStageRuns(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.StageVision, runs[0].Stage)
	assert.Equal(t, model.StageStatusCompleted, runs[0].Status)
	assert.Equal(t, "fallback used: parse failure", runs[0].Error)
	assert.Equal(t, int64(1200), runs[0].DurationMs)
	assert.JSONEq(t, `{"image_ref":"photo.jpg"}`, string(runs[0].Input))
	assert.JSONEq(t, `{"confidence":0}`, string(runs[0].Output))
	require.NotNil(t, runs[0].StartedAt)
	require.NotNil(t, runs[0].CompletedAt)
}

func TestSQLiteStore_UpdateStageRun_NotFound(t *testing.T) {
	s := newTestStore(t)
	running := model.StageStatusRunning
	err := s.UpdateStageRun(context.Background(), "missing", model.StageRunUpdate{Status: &running})
	assert.Error(t, err)
}

func TestSQLiteStore_ReplaceRecommendations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, testForm())
	require.NoError(t, err)

	first := []model.ScoredRecommendation{
		{Item: model.CatalogItem{ID: "item-1", Name: "Microscope"}, Score: 90, Rank: 1},
		{Item: model.CatalogItem{ID: "item-2", Name: "Blocks"}, Score: 80, Rank: 2},
	}
	require.NoError(t, s.ReplaceRecommendations(ctx, sess.ID, first))

	// Replacing drops the previous set.
	second := []model.ScoredRecommendation{
		{Item: model.CatalogItem{ID: "item-3", Name: "Chemistry Set"}, Score: 85, Rank: 1},
	}
	require.NoError(t, s.ReplaceRecommendations(ctx, sess.ID, second))

	var count int
	row := s.db.QueryRow(`SELECT COUNT(*) FROM recommendations WHERE session_id = ?`, sess.ID)
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, 1, count)
}

func TestSQLiteStore_InsertNarration(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, testForm())
	require.NoError(t, err)
	require.NoError(t, s.InsertNarration(ctx, sess.ID, "Dear Alex, ..."))
}

func TestSQLiteStore_CatalogRetrieval(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	items := []model.CatalogItem{
		{ID: "a", Name: "Microscope", Category: "science", PriceTier: model.BudgetTierModerate, Active: true},
		{ID: "b", Name: "Blocks", Category: "building", PriceTier: model.BudgetTierModerate, Active: true},
		{ID: "c", Name: "Diamond Kit", Category: "science", PriceTier: model.BudgetTierPremium, Active: true},
		{ID: "d", Name: "Retired Toy", Category: "science", PriceTier: model.BudgetTierModerate, Active: false},
	}
	n, err := s.UpsertCatalogItems(ctx, items)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	got, err := s.ListActiveCatalogItems(ctx, CatalogFilter{
		Tier:       model.BudgetTierModerate,
		Categories: []string{"science", "building"},
		Limit:      25,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, item := range got {
		assert.True(t, item.Active)
		assert.Equal(t, model.BudgetTierModerate, item.PriceTier)
	}

	// Tier-only query (category filter dropped).
	got, err = s.ListActiveCatalogItems(ctx, CatalogFilter{Tier: model.BudgetTierModerate, Limit: 25})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	// No matches returns an empty slice, not an error.
	got, err = s.ListActiveCatalogItems(ctx, CatalogFilter{Tier: model.BudgetTierBudget, Limit: 25})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLiteStore_ListSessionsByStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s1, err := s.CreateSession(ctx, testForm())
	require.NoError(t, err)
	s2, err := s.CreateSession(ctx, testForm())
	require.NoError(t, err)
	require.NoError(t, s.SetSessionStatus(ctx, s2.ID, model.SessionStatusCompleted))

	pending, err := s.ListSessionsByStatus(ctx, model.SessionStatusNotStarted, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, s1.ID, pending[0].ID)
}
