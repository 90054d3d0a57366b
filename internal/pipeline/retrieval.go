package pipeline

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/giftwise/giftwise-cli/internal/model"
	"github.com/giftwise/giftwise-cli/internal/store"
)

// retrievalFloor is the minimum candidate count before the query widens to
// drop category filters.
const retrievalFloor = 10

// RetrieveCandidates pulls active catalog items for the matching stage.
// The primary query filters on price tier and categories. When it returns
// fewer than floor items, a second tier-only query widens the pool; primary
// hits keep their position ahead of widened ones and duplicates are dropped.
// An empty result is not an error, only the store failing is.
func RetrieveCandidates(ctx context.Context, st store.Store, categories []string, tier model.BudgetTier, limit, floor int) ([]model.CatalogItem, error) {
	if floor <= 0 {
		floor = retrievalFloor
	}

	primary, err := st.ListActiveCatalogItems(ctx, store.CatalogFilter{
		Tier:       tier,
		Categories: categories,
		Limit:      limit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "retrieval: primary query")
	}
	if len(primary) >= floor || len(categories) == 0 {
		return primary, nil
	}

	widened, err := st.ListActiveCatalogItems(ctx, store.CatalogFilter{
		Tier:  tier,
		Limit: limit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "retrieval: widened query")
	}

	seen := make(map[string]bool, len(primary))
	merged := make([]model.CatalogItem, 0, limit)
	for _, item := range primary {
		seen[item.ID] = true
		merged = append(merged, item)
	}
	for _, item := range widened {
		if len(merged) >= limit {
			break
		}
		if seen[item.ID] {
			continue
		}
		seen[item.ID] = true
		merged = append(merged, item)
	}
	return merged, nil
}
