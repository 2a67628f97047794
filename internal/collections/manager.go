// Package collections groups wishlist items by collection name and runs
// reversible bulk operations through the sync engine.
package collections

import (
	"context"
	"sort"
	"strings"

	"github.com/nlenjibi/storefront-wishlist/internal/wishlist"
	"github.com/nlenjibi/storefront-wishlist/pkg/enums"
	pkgerrors "github.com/nlenjibi/storefront-wishlist/pkg/errors"
	"github.com/nlenjibi/storefront-wishlist/pkg/logger"
)

// Engine is the part of the sync engine the manager reads and mutates through.
type Engine interface {
	Items() []wishlist.Item
	Add(ctx context.Context, req wishlist.AddRequest) (wishlist.Item, error)
	Update(ctx context.Context, productID int64, patch wishlist.Patch) (wishlist.Item, error)
	Remove(ctx context.Context, productID int64) error
}

// Summary is one collection and how many items it holds. The uncategorised
// group is reported with an empty name.
type Summary struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Moved records where an item was before a move so the move can be undone.
type Moved struct {
	ProductID int64   `json:"productId"`
	Previous  *string `json:"previous,omitempty"`
}

type MoveResult struct {
	Target *string              `json:"target,omitempty"`
	Result wishlist.BatchResult `json:"result"`
	Moved  []Moved              `json:"moved"`
}

type TrimResult struct {
	Kept    []wishlist.Item      `json:"kept"`
	Removed []wishlist.Item      `json:"removed"`
	Result  wishlist.BatchResult `json:"result"`
}

type Manager struct {
	engine Engine
	logg   *logger.Logger
}

func NewManager(engine Engine, logg *logger.Logger) *Manager {
	return &Manager{engine: engine, logg: logg}
}

// List returns every collection with its item count, uncategorised first.
func (m *Manager) List() []Summary {
	counts := map[string]int{}
	for _, item := range m.engine.Items() {
		counts[item.Collection()]++
	}
	out := make([]Summary, 0, len(counts))
	for name, count := range counts {
		out = append(out, Summary{Name: name, Count: count})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

// Move reassigns each product to target (nil clears the collection). Unknown
// products are skipped and failed updates reported; the batch never fails.
func (m *Manager) Move(ctx context.Context, productIDs []int64, target *string) (MoveResult, error) {
	target = wishlist.NormalizeCollection(target)
	res := MoveResult{Target: target, Result: wishlist.NewBatchResult(), Moved: []Moved{}}
	current := index(m.engine.Items())
	seen := make(map[int64]struct{}, len(productIDs))

	for _, productID := range productIDs {
		if err := ctx.Err(); err != nil {
			return res, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "bulk move interrupted")
		}
		if _, dup := seen[productID]; dup {
			continue
		}
		seen[productID] = struct{}{}

		if productID <= 0 {
			res.Result.Fail(productID, pkgerrors.New(pkgerrors.CodeValidation, "product id must be positive"))
			continue
		}
		item, ok := current[productID]
		if !ok {
			res.Result.Skip(productID)
			continue
		}
		if sameCollection(item.CollectionName, target) {
			res.Result.Succeed(productID)
			continue
		}
		if _, err := m.engine.Update(ctx, productID, wishlist.MoveTo(target)); err != nil {
			res.Result.Fail(productID, err)
			continue
		}
		res.Result.Succeed(productID)
		res.Moved = append(res.Moved, Moved{ProductID: productID, Previous: item.CollectionName})
	}

	m.logg.Info(m.logg.WithFields(ctx, map[string]any{
		"target":    collectionLabel(target),
		"succeeded": len(res.Result.Succeeded),
		"skipped":   len(res.Result.Skipped),
		"failed":    len(res.Result.Failed),
	}), "wishlist bulk move finished")
	return res, nil
}

// Revert moves every item of a previous Move back to its old collection.
// Items removed since the move are skipped.
func (m *Manager) Revert(ctx context.Context, move MoveResult) (wishlist.BatchResult, error) {
	result := wishlist.NewBatchResult()
	current := index(m.engine.Items())
	for _, moved := range move.Moved {
		if err := ctx.Err(); err != nil {
			return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revert interrupted")
		}
		if _, ok := current[moved.ProductID]; !ok {
			result.Skip(moved.ProductID)
			continue
		}
		if _, err := m.engine.Update(ctx, moved.ProductID, wishlist.MoveTo(moved.Previous)); err != nil {
			result.Fail(moved.ProductID, err)
			continue
		}
		result.Succeed(moved.ProductID)
	}
	return result, nil
}

// DeleteCollection uncategorises every item of the collection. Items are never deleted.
func (m *Manager) DeleteCollection(ctx context.Context, name string) (MoveResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return MoveResult{}, pkgerrors.New(pkgerrors.CodeValidation, "collection name is required")
	}
	var ids []int64
	for _, item := range m.engine.Items() {
		if item.Collection() == name {
			ids = append(ids, item.ProductID)
		}
	}
	return m.Move(ctx, ids, nil)
}

// Optimize runs a read-only selection over the engine's current items.
func (m *Manager) Optimize(strategy enums.OptimizeStrategy, c Constraints) ([]wishlist.Item, error) {
	return Optimize(m.engine.Items(), strategy, c)
}

// Trim removes the items of one collection that Optimize does not select.
// The removed items are returned so Restore can bring them back.
func (m *Manager) Trim(ctx context.Context, strategy enums.OptimizeStrategy, c Constraints) (TrimResult, error) {
	if c.Collection == nil {
		return TrimResult{}, pkgerrors.New(pkgerrors.CodeValidation, "trim is scoped to a collection")
	}
	items := m.engine.Items()
	kept, err := Optimize(items, strategy, c)
	if err != nil {
		return TrimResult{}, err
	}

	keep := index(kept)
	scope := Constraints{Collection: c.Collection}
	res := TrimResult{Kept: kept, Removed: []wishlist.Item{}, Result: wishlist.NewBatchResult()}
	for _, item := range items {
		if !scope.inScope(item) {
			continue
		}
		if _, ok := keep[item.ProductID]; ok {
			res.Result.Skip(item.ProductID)
			continue
		}
		if err := m.engine.Remove(ctx, item.ProductID); err != nil {
			res.Result.Fail(item.ProductID, err)
			continue
		}
		res.Result.Succeed(item.ProductID)
		res.Removed = append(res.Removed, item)
	}

	m.logg.Info(m.logg.WithFields(ctx, map[string]any{
		"collection": collectionLabel(c.Collection),
		"strategy":   string(strategy),
		"removed":    len(res.Removed),
	}), "wishlist collection trimmed")
	return res, nil
}

// Restore re-adds trimmed items with their original attributes.
func (m *Manager) Restore(ctx context.Context, removed []wishlist.Item) (wishlist.BatchResult, error) {
	result := wishlist.NewBatchResult()
	for _, item := range removed {
		if err := ctx.Err(); err != nil {
			return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore interrupted")
		}
		if _, err := m.engine.Add(ctx, wishlist.RequestFromItem(item)); err != nil {
			result.Fail(item.ProductID, err)
			continue
		}
		result.Succeed(item.ProductID)
	}
	return result, nil
}

func index(items []wishlist.Item) map[int64]wishlist.Item {
	out := make(map[int64]wishlist.Item, len(items))
	for _, item := range items {
		out[item.ProductID] = item
	}
	return out
}

func sameCollection(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func collectionLabel(name *string) string {
	if name == nil {
		return ""
	}
	return *name
}
