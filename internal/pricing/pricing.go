// Package pricing converts token usage into USD cost for the budget
// gate. Prices are configured per model in USD per million tokens.
package pricing

import (
	"fmt"
	"math"
	"sort"

	"github.com/hashicorp/go-multierror"
)

// ModelPrice holds the two per-million-token rates for one model.
type ModelPrice struct {
	PromptPerMillion     float64
	CompletionPerMillion float64
}

// Table resolves model names to prices. Immutable after construction.
type Table struct {
	prices map[string]ModelPrice
}

func NewTable(prices map[string]ModelPrice) *Table {
	copied := make(map[string]ModelPrice, len(prices))
	for name, p := range prices {
		copied[name] = p
	}
	return &Table{prices: copied}
}

// CostUSD prices a single generation. An unpriced model costs zero so
// telemetry still flows; Validate is what keeps unpriced models out of
// the routing config in the first place.
func (t *Table) CostUSD(model string, promptTokens, completionTokens int) float64 {
	p, ok := t.prices[model]
	if !ok {
		return 0
	}
	cost := float64(promptTokens)/1e6*p.PromptPerMillion +
		float64(completionTokens)/1e6*p.CompletionPerMillion
	// Round to micro-dollar precision so sums stay stable across stores.
	return math.Round(cost*1e6) / 1e6
}

// Known reports whether the model has a configured price.
func (t *Table) Known(model string) bool {
	_, ok := t.prices[model]
	return ok
}

// Models lists the priced model names, sorted.
func (t *Table) Models() []string {
	names := make([]string, 0, len(t.prices))
	for name := range t.prices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate fails fast at startup when any actively routed model lacks a
// price or carries a negative one. Running blind on cost would let the
// daily budget gate pass everything.
func (t *Table) Validate(activeModels []string) error {
	var result *multierror.Error
	for _, model := range activeModels {
		if model == "" {
			continue
		}
		p, ok := t.prices[model]
		if !ok {
			result = multierror.Append(result, fmt.Errorf("no pricing configured for model %q", model))
			continue
		}
		if p.PromptPerMillion < 0 || p.CompletionPerMillion < 0 {
			result = multierror.Append(result, fmt.Errorf("negative pricing configured for model %q", model))
		}
	}
	return result.ErrorOrNil()
}
