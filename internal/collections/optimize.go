package collections

import (
	"sort"

	"github.com/nlenjibi/storefront-wishlist/internal/wishlist"
	"github.com/nlenjibi/storefront-wishlist/pkg/enums"
	pkgerrors "github.com/nlenjibi/storefront-wishlist/pkg/errors"
	"github.com/shopspring/decimal"
)

// Constraints narrow an optimisation. A nil Collection means every item; a
// pointer to "" selects uncategorised items only.
type Constraints struct {
	MaxBudget          *decimal.Decimal `json:"maxBudget,omitempty"`
	IncludeOnlyInStock bool             `json:"includeOnlyInStock"`
	Collection         *string          `json:"collection,omitempty"`
	Limit              int              `json:"limit,omitempty"`
}

func (c Constraints) validate(strategy enums.OptimizeStrategy) error {
	if !strategy.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown optimize strategy").
			WithDetails(map[string]any{"strategy": string(strategy)})
	}
	if strategy == enums.OptimizeStrategyBudget && c.MaxBudget == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "budget strategy requires maxBudget")
	}
	if c.MaxBudget != nil && c.MaxBudget.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "maxBudget cannot be negative")
	}
	if c.Limit < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "limit cannot be negative")
	}
	return nil
}

func (c Constraints) inScope(item wishlist.Item) bool {
	if c.IncludeOnlyInStock && !item.InStock {
		return false
	}
	if c.Collection == nil {
		return true
	}
	want := wishlist.NormalizeCollection(c.Collection)
	if want == nil {
		return item.CollectionName == nil
	}
	return item.Collection() == *want
}

// Optimize selects and orders a subset of items. It never mutates its input.
//
// BUDGET walks items by ascending current price and skips every item whose
// cost (price * quantity) would push the running total past MaxBudget, so no
// unselected item fits in what is left.
func Optimize(items []wishlist.Item, strategy enums.OptimizeStrategy, c Constraints) ([]wishlist.Item, error) {
	if err := c.validate(strategy); err != nil {
		return nil, err
	}

	eligible := make([]wishlist.Item, 0, len(items))
	for _, item := range items {
		if c.inScope(item) {
			eligible = append(eligible, item.Clone())
		}
	}

	switch strategy {
	case enums.OptimizeStrategyPriority:
		sort.SliceStable(eligible, func(a, b int) bool {
			ra, rb := eligible[a].Priority.Rank(), eligible[b].Priority.Rank()
			if ra != rb {
				return ra > rb
			}
			return earlier(eligible[a], eligible[b])
		})
	default:
		sortByPrice(eligible)
	}

	if strategy == enums.OptimizeStrategyBudget {
		eligible = withinBudget(eligible, *c.MaxBudget)
	}
	if c.Limit > 0 && len(eligible) > c.Limit {
		eligible = eligible[:c.Limit]
	}
	return eligible, nil
}

func sortByPrice(items []wishlist.Item) {
	sort.SliceStable(items, func(a, b int) bool {
		if !items[a].CurrentPrice.Equal(items[b].CurrentPrice) {
			return items[a].CurrentPrice.LessThan(items[b].CurrentPrice)
		}
		return earlier(items[a], items[b])
	})
}

func withinBudget(sorted []wishlist.Item, budget decimal.Decimal) []wishlist.Item {
	selected := make([]wishlist.Item, 0, len(sorted))
	total := decimal.Zero
	for _, item := range sorted {
		next := total.Add(item.LineTotal())
		if next.GreaterThan(budget) {
			continue
		}
		total = next
		selected = append(selected, item)
	}
	return selected
}

// TotalCost sums price * quantity over items.
func TotalCost(items []wishlist.Item) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total
}

func earlier(a, b wishlist.Item) bool {
	if !a.AddedAt.Equal(b.AddedAt) {
		return a.AddedAt.Before(b.AddedAt)
	}
	return a.ProductID < b.ProductID
}
