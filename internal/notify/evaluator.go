// Package notify derives per-item notification flags from fresh catalog data
// and hands false→true transitions to a Dispatcher.
package notify

import (
	"github.com/nlenjibi/storefront-wishlist/internal/wishlist"
	"github.com/nlenjibi/storefront-wishlist/pkg/enums"
	"github.com/shopspring/decimal"
)

// DerivedFlags are the independently evaluated notification conditions.
type DerivedFlags struct {
	PriceDrop   bool
	TargetPrice bool
	BackInStock bool
}

func (f DerivedFlags) ShouldNotifyPriceDrop() bool {
	return f.PriceDrop || f.TargetPrice
}

func (f DerivedFlags) ShouldNotifyStock() bool {
	return f.BackInStock
}

// Transition is a derived condition that just went from false to true.
type Transition struct {
	Kind           enums.NotificationKind `json:"kind"`
	ProductID      int64                  `json:"productId"`
	ProductName    string                 `json:"productName,omitempty"`
	PriceWhenAdded decimal.Decimal        `json:"priceWhenAdded"`
	CurrentPrice   decimal.Decimal        `json:"currentPrice"`
	TargetPrice    *decimal.Decimal       `json:"targetPrice,omitempty"`
}

// Evaluate computes the notification conditions for item against snapshot.
// It is deterministic and has no side effects.
//
// The stock condition fires on an out-of-stock to in-stock transition and
// stays latched through ShouldNotifyStock while the product remains in stock,
// so evaluating the same snapshot twice yields the same flags.
func Evaluate(item wishlist.Item, snapshot wishlist.CatalogSnapshot) DerivedFlags {
	var flags DerivedFlags
	if item.NotifyOnPriceDrop {
		flags.PriceDrop = snapshot.Price.LessThan(item.PriceWhenAdded)
		flags.TargetPrice = item.TargetPrice != nil && snapshot.Price.LessThanOrEqual(*item.TargetPrice)
	}
	if item.NotifyOnStock && snapshot.InStock {
		flags.BackInStock = !item.InStock || item.ShouldNotifyStock
	}
	return flags
}

// Apply writes the snapshot's price and stock into item, recomputes the
// derived flags and reports the conditions that newly fired.
func Apply(item wishlist.Item, snapshot wishlist.CatalogSnapshot) (wishlist.Item, []Transition) {
	before := previousFlags(item)
	flags := Evaluate(item, snapshot)

	out := item.Clone()
	out.CurrentPrice = snapshot.Price
	out.InStock = snapshot.InStock
	if out.Name == "" {
		out.Name = snapshot.Name
	}
	if out.Category == "" {
		out.Category = snapshot.Category
	}
	out.ShouldNotifyPriceDrop = flags.ShouldNotifyPriceDrop()
	out.ShouldNotifyStock = flags.ShouldNotifyStock()

	var transitions []Transition
	if flags.PriceDrop && !before.PriceDrop {
		transitions = append(transitions, newTransition(enums.NotificationKindPriceDrop, out))
	}
	if flags.TargetPrice && !before.TargetPrice {
		transitions = append(transitions, newTransition(enums.NotificationKindTargetPrice, out))
	}
	if flags.BackInStock && !before.BackInStock {
		transitions = append(transitions, newTransition(enums.NotificationKindBackInStock, out))
	}
	return out, transitions
}

// Recompute re-derives the cached flags from the item's own inputs. Call it
// after any user change to the notify toggles or target price.
func Recompute(item wishlist.Item) wishlist.Item {
	flags := Evaluate(item, wishlist.CatalogSnapshot{
		ProductID: item.ProductID,
		Price:     item.CurrentPrice,
		InStock:   item.InStock,
	})
	out := item.Clone()
	out.ShouldNotifyPriceDrop = flags.ShouldNotifyPriceDrop()
	out.ShouldNotifyStock = flags.ShouldNotifyStock()
	return out
}

// previousFlags reconstructs which conditions were already reported, gated
// by the cached flags so a freshly enabled toggle can still fire.
func previousFlags(item wishlist.Item) DerivedFlags {
	var flags DerivedFlags
	if item.ShouldNotifyPriceDrop {
		flags.PriceDrop = item.CurrentPrice.LessThan(item.PriceWhenAdded)
		flags.TargetPrice = item.TargetPrice != nil && item.CurrentPrice.LessThanOrEqual(*item.TargetPrice)
	}
	flags.BackInStock = item.ShouldNotifyStock
	return flags
}

func newTransition(kind enums.NotificationKind, item wishlist.Item) Transition {
	t := Transition{
		Kind:           kind,
		ProductID:      item.ProductID,
		ProductName:    item.Name,
		PriceWhenAdded: item.PriceWhenAdded,
		CurrentPrice:   item.CurrentPrice,
	}
	if item.TargetPrice != nil {
		v := *item.TargetPrice
		t.TargetPrice = &v
	}
	return t
}

// ReminderFor builds the reminder alert for an item; reminders are scheduled,
// not derived, so they never come out of Apply.
func ReminderFor(item wishlist.Item) Transition {
	return newTransition(enums.NotificationKindReminder, item)
}
