// Package store persists sessions, profiles, the stage-run ledger,
// recommendations, narrations, and the gift catalog.
package store

import (
	"context"

	"github.com/giftwise/giftwise-cli/internal/model"
)

// CatalogFilter specifies criteria for catalog retrieval queries.
type CatalogFilter struct {
	Tier       model.BudgetTier
	Categories []string // nil or empty means no category filter
	Limit      int
}

// Store defines the persistence interface consumed by the pipeline.
type Store interface {
	// Sessions
	CreateSession(ctx context.Context, form model.FormData) (*model.Session, error)
	GetSession(ctx context.Context, sessionID string) (*model.Session, error)
	SetSessionStatus(ctx context.Context, sessionID string, status model.SessionStatus) error
	// BeginProcessing atomically moves a session into processing and reports
	// whether the caller won the transition. A session already processing
	// cannot be acquired again until it reaches a terminal state.
	BeginProcessing(ctx context.Context, sessionID string) (bool, error)
	ListSessionsByStatus(ctx context.Context, status model.SessionStatus, limit int) ([]model.Session, error)

	// Profiles
	GetFormData(ctx context.Context, sessionID string) (*model.FormData, error)
	UpsertProfile(ctx context.Context, sessionID string, profile model.RecipientProfile) error

	// Stage-run ledger
	CreateStageRun(ctx context.Context, sessionID string, stage model.StageID) (*model.StageRun, error)
	UpdateStageRun(ctx context.Context, runID string, update model.StageRunUpdate) error
	ListStageRuns(ctx context.Context, sessionID string) ([]model.StageRun, error)

	// Results
	ReplaceRecommendations(ctx context.Context, sessionID string, recs []model.ScoredRecommendation) error
	InsertNarration(ctx context.Context, sessionID string, text string) error

	// Catalog
	ListActiveCatalogItems(ctx context.Context, filter CatalogFilter) ([]model.CatalogItem, error)
	UpsertCatalogItems(ctx context.Context, items []model.CatalogItem) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
