// Package analytics computes read-only rollups over a wishlist snapshot.
package analytics

import (
	"sort"
	"time"

	"github.com/nlenjibi/storefront-wishlist/internal/wishlist"
	"github.com/nlenjibi/storefront-wishlist/pkg/enums"
	"github.com/shopspring/decimal"
)

// UncategorizedLabel is reported for items without a catalog category.
const UncategorizedLabel = "Uncategorized"

var (
	hundred     = decimal.NewFromInt(100)
	hoursPerDay = decimal.NewFromInt(24)
	cent        = decimal.New(1, -2)
)

type CategoryBreakdown struct {
	Category     string          `json:"category"`
	Count        int             `json:"count"`
	TotalValue   decimal.Decimal `json:"totalValue"`
	AveragePrice decimal.Decimal `json:"averagePrice"`
}

type PriorityShare struct {
	Priority   enums.Priority  `json:"priority"`
	Count      int             `json:"count"`
	Percentage decimal.Decimal `json:"percentage"`
}

// Summary is the analytics view of a wishlist at one point in time.
type Summary struct {
	TotalItems            int                 `json:"totalItems"`
	AddedThisMonth        int                 `json:"addedThisMonth"`
	Categories            []CategoryBreakdown `json:"categories"`
	Priorities            []PriorityShare     `json:"priorities"`
	AverageDaysInWishlist decimal.Decimal     `json:"averageDaysInWishlist"`
	TotalSavings          decimal.Decimal     `json:"totalSavings"`
	TotalValue            decimal.Decimal     `json:"totalValue"`
	PriceDroppedCount     int                 `json:"priceDroppedCount"`
	InStockCount          int                 `json:"inStockCount"`
}

// Summarize rolls up items as of now. An empty input yields zero values.
func Summarize(items []wishlist.Item, now time.Time) Summary {
	now = now.UTC()
	summary := Summary{
		TotalItems:            len(items),
		Categories:            []CategoryBreakdown{},
		Priorities:            make([]PriorityShare, 0, len(enums.Priorities())),
		AverageDaysInWishlist: decimal.Zero,
		TotalSavings:          decimal.Zero,
		TotalValue:            decimal.Zero,
	}

	categories := map[string]*categoryAccumulator{}
	priorityCounts := map[enums.Priority]int{}
	totalHours := decimal.Zero

	for _, item := range items {
		added := item.AddedAt.UTC()
		if added.Year() == now.Year() && added.Month() == now.Month() {
			summary.AddedThisMonth++
		}
		if age := now.Sub(added); age > 0 {
			totalHours = totalHours.Add(decimal.NewFromFloat(age.Hours()))
		}

		lineTotal := item.LineTotal()
		summary.TotalValue = summary.TotalValue.Add(lineTotal)
		if item.IsPriceDropped() {
			summary.PriceDroppedCount++
			summary.TotalSavings = summary.TotalSavings.Add(item.Savings())
		}
		if item.InStock {
			summary.InStockCount++
		}

		label := item.Category
		if label == "" {
			label = UncategorizedLabel
		}
		acc, ok := categories[label]
		if !ok {
			acc = &categoryAccumulator{totalValue: decimal.Zero, priceSum: decimal.Zero}
			categories[label] = acc
		}
		acc.count++
		acc.totalValue = acc.totalValue.Add(lineTotal)
		acc.priceSum = acc.priceSum.Add(item.CurrentPrice)

		priority := item.Priority
		if !priority.IsValid() {
			priority = enums.DefaultPriority
		}
		priorityCounts[priority]++
	}

	for label, acc := range categories {
		summary.Categories = append(summary.Categories, CategoryBreakdown{
			Category:     label,
			Count:        acc.count,
			TotalValue:   acc.totalValue,
			AveragePrice: acc.priceSum.Div(decimal.NewFromInt(int64(acc.count))).Round(2),
		})
	}
	sort.Slice(summary.Categories, func(a, b int) bool {
		return summary.Categories[a].Category < summary.Categories[b].Category
	})

	percentages := distributePercentages(priorityCounts, len(items))
	for _, priority := range enums.Priorities() {
		summary.Priorities = append(summary.Priorities, PriorityShare{
			Priority:   priority,
			Count:      priorityCounts[priority],
			Percentage: percentages[priority],
		})
	}

	if len(items) > 0 {
		summary.AverageDaysInWishlist = totalHours.Div(hoursPerDay).Div(decimal.NewFromInt(int64(len(items)))).Round(1)
	}
	return summary
}

type categoryAccumulator struct {
	count      int
	totalValue decimal.Decimal
	priceSum   decimal.Decimal
}

// distributePercentages rounds shares to cents using the largest remainder
// method so the non-empty shares add up to exactly 100.
func distributePercentages(counts map[enums.Priority]int, total int) map[enums.Priority]decimal.Decimal {
	out := make(map[enums.Priority]decimal.Decimal, len(counts))
	for _, priority := range enums.Priorities() {
		out[priority] = decimal.Zero
	}
	if total == 0 {
		return out
	}

	type share struct {
		priority  enums.Priority
		remainder decimal.Decimal
	}
	shares := []share{}
	assigned := decimal.Zero
	for _, priority := range enums.Priorities() {
		count := counts[priority]
		if count == 0 {
			continue
		}
		raw := decimal.NewFromInt(int64(count)).Mul(hundred).Div(decimal.NewFromInt(int64(total)))
		floored := raw.RoundFloor(2)
		out[priority] = floored
		assigned = assigned.Add(floored)
		shares = append(shares, share{priority: priority, remainder: raw.Sub(floored)})
	}

	sort.SliceStable(shares, func(a, b int) bool {
		return shares[a].remainder.GreaterThan(shares[b].remainder)
	})
	leftover := hundred.Sub(assigned).Div(cent).IntPart()
	for i := 0; i < int(leftover) && len(shares) > 0; i++ {
		p := shares[i%len(shares)].priority
		out[p] = out[p].Add(cent)
	}
	return out
}
