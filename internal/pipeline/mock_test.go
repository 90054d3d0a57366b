package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/giftwise/giftwise-cli/internal/config"
	"github.com/giftwise/giftwise-cli/internal/model"
	"github.com/giftwise/giftwise-cli/internal/store"
	"github.com/giftwise/giftwise-cli/pkg/anthropic"
)

// --- Anthropic Mock ---

type mockAnthropicClient struct {
	mock.Mock
}

func (m *mockAnthropicClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func (m *mockAnthropicClient) CreateVisionMessage(ctx context.Context, req anthropic.MessageRequest, image anthropic.ImageSource) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req, image)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func (m *mockAnthropicClient) StreamMessage(ctx context.Context, req anthropic.MessageRequest, onDelta func(text string) error) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req, onDelta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	resp := args.Get(0).(*anthropic.MessageResponse)
	for _, block := range resp.Content {
		if block.Text != "" {
			if err := onDelta(block.Text); err != nil {
				return nil, err
			}
		}
	}
	return resp, args.Error(1)
}

// textResponse wraps a raw model reply the way the API returns it.
func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
	}
}

// --- Store helpers ---

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// faultStore passes everything through to the wrapped store except the
// methods a test arms to fail.
type faultStore struct {
	store.Store
	replaceRecsErr error
	narrationErr   error
	profileErr     error
}

func (f *faultStore) ReplaceRecommendations(ctx context.Context, sessionID string, recs []model.ScoredRecommendation) error {
	if f.replaceRecsErr != nil {
		return f.replaceRecsErr
	}
	return f.Store.ReplaceRecommendations(ctx, sessionID, recs)
}

func (f *faultStore) InsertNarration(ctx context.Context, sessionID, text string) error {
	if f.narrationErr != nil {
		return f.narrationErr
	}
	return f.Store.InsertNarration(ctx, sessionID, text)
}

func (f *faultStore) UpsertProfile(ctx context.Context, sessionID string, profile model.RecipientProfile) error {
	if f.profileErr != nil {
		return f.profileErr
	}
	return f.Store.UpsertProfile(ctx, sessionID, profile)
}

// --- Fixtures ---

func testConfig() *config.Config {
	return &config.Config{
		Anthropic: config.AnthropicConfig{
			HaikuModel:  "claude-haiku-test",
			SonnetModel: "claude-sonnet-test",
			MaxTokens:   1024,
		},
		Pipeline: config.PipelineConfig{
			CandidateLimit:     25,
			RetrievalFloor:     10,
			FallbackCandidates: 6,
			MaxRecommendations: 8,
			NarrationHints:     4,
		},
	}
}

func seedCatalog(t *testing.T, st store.Store, items []model.CatalogItem) {
	t.Helper()
	_, err := st.UpsertCatalogItems(context.Background(), items)
	require.NoError(t, err)
}

func catalogItem(id, name, category string, tier model.BudgetTier) model.CatalogItem {
	return model.CatalogItem{
		ID:        id,
		Name:      name,
		Category:  category,
		PriceTier: tier,
		Active:    true,
	}
}
