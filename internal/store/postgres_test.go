package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giftwise/giftwise-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetSession_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, status, created_at, updated_at FROM sessions WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetSession(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSession(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT id, status, created_at, updated_at FROM sessions WHERE id = \$1`).
		WithArgs("sess-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "status", "created_at", "updated_at"}).
			AddRow("sess-1", "processing", now, now))

	sess, err := s.GetSession(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusProcessing, sess.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_BeginProcessing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE sessions SET status = \$1, updated_at = \$2 WHERE id = \$3 AND status != \$1`).
		WithArgs("processing", pgxmock.AnyArg(), "sess-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	acquired, err := s.BeginProcessing(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.True(t, acquired)

	mock.ExpectExec(`UPDATE sessions SET status = \$1, updated_at = \$2 WHERE id = \$3 AND status != \$1`).
		WithArgs("processing", pgxmock.AnyArg(), "sess-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	acquired, err = s.BeginProcessing(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.False(t, acquired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetSessionStatus_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE sessions SET status = \$1, updated_at = \$2 WHERE id = \$3`).
		WithArgs("failed", pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.SetSessionStatus(context.Background(), "missing", model.SessionStatusFailed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetFormData(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT form_data FROM sessions WHERE id = \$1`).
		WithArgs("sess-1").
		WillReturnRows(pgxmock.NewRows([]string{"form_data"}).
			AddRow([]byte(`{"recipient_name":"Alex","age":7,"interests":["science"],"budget":"medium"}`)))

	form, err := s.GetFormData(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "Alex", form.RecipientName)
	assert.Equal(t, model.BudgetLevelMedium, form.Budget)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateStageRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO stage_runs \(id, session_id, stage, status\) VALUES \(\$1, \$2, \$3, \$4\)`).
		WithArgs(pgxmock.AnyArg(), "sess-1", "matching", "pending").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateStageRun(context.Background(), "sess-1", model.StageMatching)
	require.NoError(t, err)
	assert.Equal(t, model.StageStatusPending, run.Status)
	assert.NotEmpty(t, run.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateStageRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	completed := model.StageStatusCompleted
	durationMs := int64(900)

	mock.ExpectExec(`UPDATE stage_runs SET status = \$1, output = \$2, duration_ms = \$3 WHERE id = \$4`).
		WithArgs("completed", []byte(`{"ok":true}`), durationMs, "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.UpdateStageRun(context.Background(), "run-1", model.StageRunUpdate{
		Status:     &completed,
		Output:     []byte(`{"ok":true}`),
		DurationMs: &durationMs,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateStageRun_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	// No fields set: no query issued.
	require.NoError(t, s.UpdateStageRun(context.Background(), "run-1", model.StageRunUpdate{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListActiveCatalogItems(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, name, COALESCE\(description, ''\), category, price_tier, price_cents, active`).
		WithArgs("moderate", []string{"science"}, 25).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "description", "category", "price_tier", "price_cents", "active"}).
			AddRow("a", "Microscope", "600x zoom", "science", "moderate", 4500, true))

	items, err := s.ListActiveCatalogItems(context.Background(), CatalogFilter{
		Tier:       model.BudgetTierModerate,
		Categories: []string{"science"},
		Limit:      25,
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Microscope", items[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReplaceRecommendations(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM recommendations WHERE session_id = \$1`).
		WithArgs("sess-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec(`INSERT INTO recommendations`).
		WithArgs(pgxmock.AnyArg(), "sess-1", "item-1", pgxmock.AnyArg(), 1).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := s.ReplaceRecommendations(context.Background(), "sess-1", []model.ScoredRecommendation{
		{Item: model.CatalogItem{ID: "item-1"}, Score: 88, Rank: 1},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertNarration(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO narrations \(id, session_id, letter\) VALUES \(\$1, \$2, \$3\)`).
		WithArgs(pgxmock.AnyArg(), "sess-1", "Dear Alex, ...").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.InsertNarration(context.Background(), "sess-1", "Dear Alex, ..."))
	assert.NoError(t, mock.ExpectationsWereMet())
}
