package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/giftwise/giftwise-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it in
// tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id         UUID PRIMARY KEY,
	status     TEXT NOT NULL DEFAULT 'not_started',
	form_data  JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS profiles (
	session_id UUID PRIMARY KEY REFERENCES sessions(id),
	profile    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS stage_runs (
	id           UUID PRIMARY KEY,
	session_id   UUID NOT NULL REFERENCES sessions(id),
	stage        TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'pending',
	input        JSONB,
	output       JSONB,
	error        TEXT,
	started_at   TIMESTAMPTZ,
	completed_at TIMESTAMPTZ,
	duration_ms  BIGINT NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS recommendations (
	id         UUID PRIMARY KEY,
	session_id UUID NOT NULL REFERENCES sessions(id),
	item_id    TEXT NOT NULL,
	payload    JSONB NOT NULL,
	rank       INT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS narrations (
	id         UUID PRIMARY KEY,
	session_id UUID NOT NULL REFERENCES sessions(id),
	letter     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS catalog_items (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT,
	category    TEXT NOT NULL,
	price_tier  TEXT NOT NULL,
	price_cents INT NOT NULL DEFAULT 0,
	active      BOOLEAN NOT NULL DEFAULT true
);

CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_stage_runs_session_id ON stage_runs(session_id);
CREATE INDEX IF NOT EXISTS idx_recommendations_session_id ON recommendations(session_id);
CREATE INDEX IF NOT EXISTS idx_catalog_items_tier ON catalog_items(price_tier);
CREATE INDEX IF NOT EXISTS idx_catalog_items_category ON catalog_items(category);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, form model.FormData) (*model.Session, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	formJSON, err := json.Marshal(form)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal form data")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO sessions (id, status, form_data, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, string(model.SessionStatusNotStarted), formJSON, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert session")
	}

	return &model.Session{
		ID:        id,
		Status:    model.SessionStatusNotStarted,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, status, created_at, updated_at FROM sessions WHERE id = $1`,
		sessionID,
	)

	var sess model.Session
	err := row.Scan(&sess.ID, &sess.Status, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("session not found: %s", sessionID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get session")
	}
	return &sess, nil
}

func (s *PostgresStore) SetSessionStatus(ctx context.Context, sessionID string, status model.SessionStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), sessionID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set session status %s", sessionID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("session not found: %s", sessionID)
	}
	return nil
}

func (s *PostgresStore) BeginProcessing(ctx context.Context, sessionID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET status = $1, updated_at = $2 WHERE id = $3 AND status != $1`,
		string(model.SessionStatusProcessing), time.Now().UTC(), sessionID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: begin processing %s", sessionID)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ListSessionsByStatus(ctx context.Context, status model.SessionStatus, limit int) ([]model.Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, status, created_at, updated_at FROM sessions WHERE status = $1 ORDER BY created_at LIMIT $2`,
		string(status), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sessions")
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		var sess model.Session
		if err := rows.Scan(&sess.ID, &sess.Status, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan session")
		}
		sessions = append(sessions, sess)
	}
	return sessions, eris.Wrap(rows.Err(), "postgres: list sessions iterate")
}

func (s *PostgresStore) GetFormData(ctx context.Context, sessionID string) (*model.FormData, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT form_data FROM sessions WHERE id = $1`,
		sessionID,
	)

	var formJSON []byte
	err := row.Scan(&formJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("form data not found for session: %s", sessionID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get form data")
	}

	var form model.FormData
	if err := json.Unmarshal(formJSON, &form); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal form data")
	}
	return &form, nil
}

func (s *PostgresStore) UpsertProfile(ctx context.Context, sessionID string, profile model.RecipientProfile) error {
	profileJSON, err := json.Marshal(profile)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal profile")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO profiles (session_id, profile, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (session_id) DO UPDATE SET profile = EXCLUDED.profile, updated_at = EXCLUDED.updated_at`,
		sessionID, profileJSON, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: upsert profile")
}

func (s *PostgresStore) CreateStageRun(ctx context.Context, sessionID string, stage model.StageID) (*model.StageRun, error) {
	id := uuid.New().String()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO stage_runs (id, session_id, stage, status) VALUES ($1, $2, $3, $4)`,
		id, sessionID, string(stage), string(model.StageStatusPending),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert stage run for session %s", sessionID)
	}

	return &model.StageRun{
		ID:        id,
		SessionID: sessionID,
		Stage:     stage,
		Status:    model.StageStatusPending,
	}, nil
}

func (s *PostgresStore) UpdateStageRun(ctx context.Context, runID string, update model.StageRunUpdate) error {
	var sets []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if update.Status != nil {
		sets = append(sets, "status = "+arg(string(*update.Status)))
	}
	if update.Input != nil {
		sets = append(sets, "input = "+arg([]byte(update.Input)))
	}
	if update.Output != nil {
		sets = append(sets, "output = "+arg([]byte(update.Output)))
	}
	if update.Error != nil {
		sets = append(sets, "error = "+arg(*update.Error))
	}
	if update.StartedAt != nil {
		sets = append(sets, "started_at = "+arg(*update.StartedAt))
	}
	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = "+arg(*update.CompletedAt))
	}
	if update.DurationMs != nil {
		sets = append(sets, "duration_ms = "+arg(*update.DurationMs))
	}
	if len(sets) == 0 {
		return nil
	}

	query := fmt.Sprintf(`UPDATE stage_runs SET %s WHERE id = %s`, strings.Join(sets, ", "), arg(runID))

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update stage run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("stage run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) ListStageRuns(ctx context.Context, sessionID string) ([]model.StageRun, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, stage, status, input, output, error, started_at, completed_at, duration_ms
		 FROM stage_runs WHERE session_id = $1 ORDER BY created_at`,
		sessionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list stage runs")
	}
	defer rows.Close()

	var runs []model.StageRun
	for rows.Next() {
		var run model.StageRun
		var input, output []byte
		var errMsg *string
		if err := rows.Scan(&run.ID, &run.SessionID, &run.Stage, &run.Status,
			&input, &output, &errMsg, &run.StartedAt, &run.CompletedAt, &run.DurationMs); err != nil {
			return nil, eris.Wrap(err, "postgres: scan stage run")
		}
		run.Input = input
		run.Output = output
		if errMsg != nil {
			run.Error = *errMsg
		}
		runs = append(runs, run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list stage runs iterate")
}

func (s *PostgresStore) ReplaceRecommendations(ctx context.Context, sessionID string, recs []model.ScoredRecommendation) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM recommendations WHERE session_id = $1`, sessionID,
	); err != nil {
		return eris.Wrap(err, "postgres: delete old recommendations")
	}

	for _, rec := range recs {
		payload, err := json.Marshal(rec)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal recommendation")
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO recommendations (id, session_id, item_id, payload, rank) VALUES ($1, $2, $3, $4, $5)`,
			uuid.New().String(), sessionID, rec.Item.ID, payload, rec.Rank,
		); err != nil {
			return eris.Wrap(err, "postgres: insert recommendation")
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit recommendations")
}

func (s *PostgresStore) InsertNarration(ctx context.Context, sessionID string, text string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO narrations (id, session_id, letter) VALUES ($1, $2, $3)`,
		uuid.New().String(), sessionID, text,
	)
	return eris.Wrap(err, "postgres: insert narration")
}

func (s *PostgresStore) ListActiveCatalogItems(ctx context.Context, filter CatalogFilter) ([]model.CatalogItem, error) {
	query := `SELECT id, name, COALESCE(description, ''), category, price_tier, price_cents, active
	          FROM catalog_items WHERE active = true`
	var args []any

	if filter.Tier != "" {
		args = append(args, string(filter.Tier))
		query += fmt.Sprintf(` AND price_tier = $%d`, len(args))
	}
	if len(filter.Categories) > 0 {
		args = append(args, filter.Categories)
		query += fmt.Sprintf(` AND category = ANY($%d)`, len(args))
	}
	query += ` ORDER BY name`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(` LIMIT $%d`, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list catalog items")
	}
	defer rows.Close()

	items := []model.CatalogItem{}
	for rows.Next() {
		var item model.CatalogItem
		if err := rows.Scan(&item.ID, &item.Name, &item.Description, &item.Category,
			&item.PriceTier, &item.PriceCents, &item.Active); err != nil {
			return nil, eris.Wrap(err, "postgres: scan catalog item")
		}
		items = append(items, item)
	}
	return items, eris.Wrap(rows.Err(), "postgres: list catalog items iterate")
}

func (s *PostgresStore) UpsertCatalogItems(ctx context.Context, items []model.CatalogItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx)

	count := 0
	for _, item := range items {
		if _, err := tx.Exec(ctx,
			`INSERT INTO catalog_items (id, name, description, category, price_tier, price_cents, active)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (id) DO UPDATE SET
			   name = EXCLUDED.name, description = EXCLUDED.description,
			   category = EXCLUDED.category, price_tier = EXCLUDED.price_tier,
			   price_cents = EXCLUDED.price_cents, active = EXCLUDED.active`,
			item.ID, item.Name, item.Description, item.Category,
			string(item.PriceTier), item.PriceCents, item.Active,
		); err != nil {
			return 0, eris.Wrapf(err, "postgres: upsert catalog item %s", item.ID)
		}
		count++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit catalog items")
	}
	return count, nil
}
