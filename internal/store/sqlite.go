package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/giftwise/giftwise-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL DEFAULT 'not_started',
	form_data  TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS profiles (
	session_id TEXT PRIMARY KEY REFERENCES sessions(id),
	profile    TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS stage_runs (
	id           TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL REFERENCES sessions(id),
	stage        TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'pending',
	input        TEXT,
	output       TEXT,
	error        TEXT,
	started_at   DATETIME,
	completed_at DATETIME,
	duration_ms  INTEGER NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS recommendations (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	item_id    TEXT NOT NULL,
	payload    TEXT NOT NULL,
	rank       INTEGER NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS narrations (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	letter     TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS catalog_items (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT,
	category    TEXT NOT NULL,
	price_tier  TEXT NOT NULL,
	price_cents INTEGER NOT NULL DEFAULT 0,
	active      INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_stage_runs_session_id ON stage_runs(session_id);
CREATE INDEX IF NOT EXISTS idx_recommendations_session_id ON recommendations(session_id);
CREATE INDEX IF NOT EXISTS idx_catalog_items_tier ON catalog_items(price_tier);
CREATE INDEX IF NOT EXISTS idx_catalog_items_category ON catalog_items(category);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateSession(ctx context.Context, form model.FormData) (*model.Session, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	formJSON, err := json.Marshal(form)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal form data")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, status, form_data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(model.SessionStatusNotStarted), string(formJSON), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert session")
	}

	return &model.Session{
		ID:        id,
		Status:    model.SessionStatusNotStarted,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, created_at, updated_at FROM sessions WHERE id = ?`,
		sessionID,
	)

	var sess model.Session
	err := row.Scan(&sess.ID, &sess.Status, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("session not found: %s", sessionID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get session")
	}
	return &sess, nil
}

func (s *SQLiteStore) SetSessionStatus(ctx context.Context, sessionID string, status model.SessionStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), sessionID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set session status %s", sessionID)
	}
	return checkRowsAffected(res, "session", sessionID)
}

func (s *SQLiteStore) BeginProcessing(ctx context.Context, sessionID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, updated_at = ? WHERE id = ? AND status != ?`,
		string(model.SessionStatusProcessing), time.Now().UTC(), sessionID, string(model.SessionStatusProcessing),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: begin processing %s", sessionID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListSessionsByStatus(ctx context.Context, status model.SessionStatus, limit int) ([]model.Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, created_at, updated_at FROM sessions WHERE status = ? ORDER BY created_at LIMIT ?`,
		string(status), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		var sess model.Session
		if err := rows.Scan(&sess.ID, &sess.Status, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan session")
		}
		sessions = append(sessions, sess)
	}
	return sessions, eris.Wrap(rows.Err(), "sqlite: list sessions iterate")
}

func (s *SQLiteStore) GetFormData(ctx context.Context, sessionID string) (*model.FormData, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT form_data FROM sessions WHERE id = ?`,
		sessionID,
	)

	var formJSON string
	err := row.Scan(&formJSON)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("form data not found for session: %s", sessionID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get form data")
	}

	var form model.FormData
	if err := json.Unmarshal([]byte(formJSON), &form); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal form data")
	}
	return &form, nil
}

func (s *SQLiteStore) UpsertProfile(ctx context.Context, sessionID string, profile model.RecipientProfile) error {
	profileJSON, err := json.Marshal(profile)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal profile")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO profiles (session_id, profile, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET profile = excluded.profile, updated_at = excluded.updated_at`,
		sessionID, string(profileJSON), time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: upsert profile")
}

func (s *SQLiteStore) CreateStageRun(ctx context.Context, sessionID string, stage model.StageID) (*model.StageRun, error) {
	id := uuid.New().String()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stage_runs (id, session_id, stage, status) VALUES (?, ?, ?, ?)`,
		id, sessionID, string(stage), string(model.StageStatusPending),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert stage run for session %s", sessionID)
	}

	return &model.StageRun{
		ID:        id,
		SessionID: sessionID,
		Stage:     stage,
		Status:    model.StageStatusPending,
	}, nil
}

func (s *SQLiteStore) UpdateStageRun(ctx context.Context, runID string, update model.StageRunUpdate) error {
	var sets []string
	var args []any

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.Input != nil {
		sets = append(sets, "input = ?")
		args = append(args, string(update.Input))
	}
	if update.Output != nil {
		sets = append(sets, "output = ?")
		args = append(args, string(update.Output))
	}
	if update.Error != nil {
		sets = append(sets, "error = ?")
		args = append(args, *update.Error)
	}
	if update.StartedAt != nil {
		sets = append(sets, "started_at = ?")
		args = append(args, *update.StartedAt)
	}
	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, *update.CompletedAt)
	}
	if update.DurationMs != nil {
		sets = append(sets, "duration_ms = ?")
		args = append(args, *update.DurationMs)
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, runID)
	query := fmt.Sprintf(`UPDATE stage_runs SET %s WHERE id = ?`, strings.Join(sets, ", "))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update stage run %s", runID)
	}
	return checkRowsAffected(res, "stage run", runID)
}

func (s *SQLiteStore) ListStageRuns(ctx context.Context, sessionID string) ([]model.StageRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, stage, status, input, output, error, started_at, completed_at, duration_ms
		 FROM stage_runs WHERE session_id = ? ORDER BY created_at`,
		sessionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list stage runs")
	}
	defer rows.Close()

	var runs []model.StageRun
	for rows.Next() {
		var run model.StageRun
		var input, output, errMsg sql.NullString
		var startedAt, completedAt sql.NullTime
		if err := rows.Scan(&run.ID, &run.SessionID, &run.Stage, &run.Status,
			&input, &output, &errMsg, &startedAt, &completedAt, &run.DurationMs); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan stage run")
		}
		if input.Valid {
			run.Input = json.RawMessage(input.String)
		}
		if output.Valid {
			run.Output = json.RawMessage(output.String)
		}
		if errMsg.Valid {
			run.Error = errMsg.String
		}
		if startedAt.Valid {
			run.StartedAt = &startedAt.Time
		}
		if completedAt.Valid {
			run.CompletedAt = &completedAt.Time
		}
		runs = append(runs, run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list stage runs iterate")
}

func (s *SQLiteStore) ReplaceRecommendations(ctx context.Context, sessionID string, recs []model.ScoredRecommendation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM recommendations WHERE session_id = ?`, sessionID,
	); err != nil {
		return eris.Wrap(err, "sqlite: delete old recommendations")
	}

	for _, rec := range recs {
		payload, err := json.Marshal(rec)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal recommendation")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO recommendations (id, session_id, item_id, payload, rank) VALUES (?, ?, ?, ?, ?)`,
			uuid.New().String(), sessionID, rec.Item.ID, string(payload), rec.Rank,
		); err != nil {
			return eris.Wrap(err, "sqlite: insert recommendation")
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit recommendations")
}

func (s *SQLiteStore) InsertNarration(ctx context.Context, sessionID string, text string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO narrations (id, session_id, letter) VALUES (?, ?, ?)`,
		uuid.New().String(), sessionID, text,
	)
	return eris.Wrap(err, "sqlite: insert narration")
}

func (s *SQLiteStore) ListActiveCatalogItems(ctx context.Context, filter CatalogFilter) ([]model.CatalogItem, error) {
	query := `SELECT id, name, description, category, price_tier, price_cents, active
	          FROM catalog_items WHERE active = 1`
	var args []any

	if filter.Tier != "" {
		query += ` AND price_tier = ?`
		args = append(args, string(filter.Tier))
	}
	if len(filter.Categories) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(filter.Categories)), ",")
		query += ` AND category IN (` + placeholders + `)`
		for _, c := range filter.Categories {
			args = append(args, c)
		}
	}
	query += ` ORDER BY name`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list catalog items")
	}
	defer rows.Close()

	items := []model.CatalogItem{}
	for rows.Next() {
		var item model.CatalogItem
		var desc sql.NullString
		if err := rows.Scan(&item.ID, &item.Name, &desc, &item.Category,
			&item.PriceTier, &item.PriceCents, &item.Active); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan catalog item")
		}
		if desc.Valid {
			item.Description = desc.String
		}
		items = append(items, item)
	}
	return items, eris.Wrap(rows.Err(), "sqlite: list catalog items iterate")
}

func (s *SQLiteStore) UpsertCatalogItems(ctx context.Context, items []model.CatalogItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	count := 0
	for _, item := range items {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO catalog_items (id, name, description, category, price_tier, price_cents, active)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
			   name = excluded.name, description = excluded.description,
			   category = excluded.category, price_tier = excluded.price_tier,
			   price_cents = excluded.price_cents, active = excluded.active`,
			item.ID, item.Name, item.Description, item.Category,
			string(item.PriceTier), item.PriceCents, boolToInt(item.Active),
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert catalog item %s", item.ID)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit catalog items")
	}
	return count, nil
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
