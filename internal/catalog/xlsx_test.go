package catalog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/giftwise/giftwise-cli/internal/model"
)

func createTestXLSX(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("catalog")
	require.NoError(t, err)
	for _, rowData := range rows {
		row := sheet.AddRow()
		for _, cellData := range rowData {
			cell := row.AddCell()
			cell.SetString(cellData)
		}
	}
	path := filepath.Join(t.TempDir(), "catalog.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadItems(t *testing.T) {
	path := createTestXLSX(t, [][]string{
		{"id", "name", "description", "category", "price_tier", "price_cents", "active"},
		{"kit-1", "Dino Dig Kit", "Excavate replica fossils", "Science", "moderate", "2499", "true"},
		{"", "", "", "", "", "", ""},
		{"plush-1", "Triceratops Plush", "", "animals", "budget", "", ""},
	})

	items, err := ReadItems(path)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "kit-1", items[0].ID)
	assert.Equal(t, "science", items[0].Category)
	assert.Equal(t, model.BudgetTierModerate, items[0].PriceTier)
	assert.Equal(t, 2499, items[0].PriceCents)
	assert.True(t, items[0].Active)

	// Missing price and active default to zero and true.
	assert.Equal(t, 0, items[1].PriceCents)
	assert.True(t, items[1].Active)
	assert.Equal(t, model.BudgetTierBudget, items[1].PriceTier)
}

func TestReadItemsNoHeader(t *testing.T) {
	path := createTestXLSX(t, [][]string{
		{"kit-1", "Dino Dig Kit", "", "science", "moderate", "2499", "true"},
	})

	items, err := ReadItems(path)
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestReadItemsMalformedRow(t *testing.T) {
	tests := []struct {
		name string
		row  []string
	}{
		{"too few columns", []string{"kit-1", "Dino Dig Kit", "science"}},
		{"missing id", []string{"", "Dino Dig Kit", "", "science", "moderate", "100", "true"}},
		{"bad tier", []string{"kit-1", "Dino Dig Kit", "", "science", "luxury", "100", "true"}},
		{"bad price", []string{"kit-1", "Dino Dig Kit", "", "science", "moderate", "cheap", "true"}},
		{"bad active", []string{"kit-1", "Dino Dig Kit", "", "science", "moderate", "100", "maybe"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := createTestXLSX(t, [][]string{tt.row})
			_, err := ReadItems(path)
			assert.Error(t, err)
		})
	}
}

func TestReadItemsMissingFile(t *testing.T) {
	_, err := ReadItems(filepath.Join(t.TempDir(), "absent.xlsx"))
	assert.Error(t, err)
}
