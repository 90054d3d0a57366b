package model

// CatalogItem is a product that can be recommended as a gift.
type CatalogItem struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Category    string     `json:"category"`
	PriceTier   BudgetTier `json:"price_tier"`
	PriceCents  int        `json:"price_cents"`
	Active      bool       `json:"active"`
}

// ScoredRecommendation is one ranked gift suggestion. Score is always an
// integer in [0,100]; Rank is 1-based and dense by descending score.
type ScoredRecommendation struct {
	Item             CatalogItem `json:"item"`
	Score            int         `json:"score"`
	Reasoning        string      `json:"reasoning"`
	MatchedInterests []string    `json:"matched_interests,omitempty"`
	Rank             int         `json:"rank"`
}
