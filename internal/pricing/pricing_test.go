package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTable() *Table {
	return NewTable(map[string]ModelPrice{
		"gpt-5-mini": {PromptPerMillion: 0.25, CompletionPerMillion: 2.0},
		"gpt-4o":     {PromptPerMillion: 2.5, CompletionPerMillion: 10.0},
	})
}

func TestCostUSD(t *testing.T) {
	table := testTable()

	// 1000 prompt + 500 completion tokens on gpt-5-mini:
	// 0.00025 + 0.001 = 0.00125
	assert.InDelta(t, 0.00125, table.CostUSD("gpt-5-mini", 1000, 500), 1e-9)
	assert.Equal(t, 0.0, table.CostUSD("gpt-5-mini", 0, 0))
}

func TestCostUSDRoundsToMicroDollars(t *testing.T) {
	table := NewTable(map[string]ModelPrice{
		"m": {PromptPerMillion: 0.333333, CompletionPerMillion: 0},
	})

	cost := table.CostUSD("m", 7, 0)
	assert.Equal(t, cost, float64(int64(cost*1e6))/1e6)
}

func TestCostUSDUnknownModelIsFree(t *testing.T) {
	table := testTable()
	assert.Equal(t, 0.0, table.CostUSD("mystery-model", 100000, 100000))
	assert.False(t, table.Known("mystery-model"))
	assert.True(t, table.Known("gpt-4o"))
}

func TestValidate(t *testing.T) {
	table := testTable()

	require.NoError(t, table.Validate([]string{"gpt-5-mini", "gpt-4o"}))
	require.NoError(t, table.Validate(nil))
	// Blank entries (unset optional models) are skipped.
	require.NoError(t, table.Validate([]string{"gpt-5-mini", ""}))

	err := table.Validate([]string{"gpt-5-mini", "gpt-unpriced"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gpt-unpriced")
}

func TestValidateRejectsNegativePrices(t *testing.T) {
	table := NewTable(map[string]ModelPrice{
		"m": {PromptPerMillion: -1, CompletionPerMillion: 2},
	})
	assert.Error(t, table.Validate([]string{"m"}))
}
