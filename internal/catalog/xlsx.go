// Package catalog imports gift catalog items from XLSX workbooks.
package catalog

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/giftwise/giftwise-cli/internal/model"
)

// Column order expected in the workbook: id, name, description, category,
// price_tier, price_cents, active. A header row is detected by the first
// cell reading "id" and skipped.
const expectedColumns = 7

// ReadItems parses catalog items from the first sheet of an XLSX workbook.
// Blank rows are skipped; a malformed row fails the whole import so a bad
// file never half-loads.
func ReadItems(path string) ([]model.CatalogItem, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: open workbook")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("catalog: workbook %s has no sheets", path)
	}

	var items []model.CatalogItem
	for i, row := range f.Sheets[0].Rows {
		cells := rowToStrings(row)
		if isBlank(cells) {
			continue
		}
		if i == 0 && strings.EqualFold(strings.TrimSpace(cells[0]), "id") {
			continue
		}

		item, err := parseRow(cells)
		if err != nil {
			return nil, eris.Wrapf(err, "catalog: row %d", i+1)
		}
		items = append(items, item)
	}
	return items, nil
}

func parseRow(cells []string) (model.CatalogItem, error) {
	if len(cells) < expectedColumns {
		return model.CatalogItem{}, eris.Errorf("expected %d columns, got %d", expectedColumns, len(cells))
	}

	id := strings.TrimSpace(cells[0])
	name := strings.TrimSpace(cells[1])
	if id == "" || name == "" {
		return model.CatalogItem{}, eris.New("id and name are required")
	}

	tier, err := parseTier(cells[4])
	if err != nil {
		return model.CatalogItem{}, err
	}

	priceCents := 0
	if s := strings.TrimSpace(cells[5]); s != "" {
		// Numeric cells sometimes render as floats.
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return model.CatalogItem{}, eris.Wrapf(err, "price_cents %q", s)
		}
		priceCents = int(v)
	}

	active := true
	if s := strings.TrimSpace(cells[6]); s != "" {
		active, err = strconv.ParseBool(s)
		if err != nil {
			return model.CatalogItem{}, eris.Wrapf(err, "active %q", s)
		}
	}

	return model.CatalogItem{
		ID:          id,
		Name:        name,
		Description: strings.TrimSpace(cells[2]),
		Category:    strings.ToLower(strings.TrimSpace(cells[3])),
		PriceTier:   tier,
		PriceCents:  priceCents,
		Active:      active,
	}, nil
}

func parseTier(s string) (model.BudgetTier, error) {
	switch model.BudgetTier(strings.ToLower(strings.TrimSpace(s))) {
	case model.BudgetTierBudget:
		return model.BudgetTierBudget, nil
	case model.BudgetTierModerate:
		return model.BudgetTierModerate, nil
	case model.BudgetTierPremium:
		return model.BudgetTierPremium, nil
	}
	return "", eris.Errorf("unknown price_tier %q", s)
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
