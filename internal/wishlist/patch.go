package wishlist

import (
	"github.com/nlenjibi/storefront-wishlist/pkg/enums"
	"github.com/shopspring/decimal"
)

// Patch carries the user-editable fields of an item. Nil pointers leave the
// field unchanged; Clear* flags reset optional fields to unset. A nil Tags
// slice leaves tags unchanged while an empty one clears them.
type Patch struct {
	Priority          *enums.Priority  `json:"priority,omitempty"`
	Notes             *string          `json:"notes,omitempty"`
	TargetPrice       *decimal.Decimal `json:"targetPrice,omitempty"`
	ClearTargetPrice  bool             `json:"clearTargetPrice,omitempty"`
	DesiredQuantity   *int             `json:"desiredQuantity,omitempty"`
	Tags              []string         `json:"tags"`
	CollectionName    *string          `json:"collectionName,omitempty"`
	ClearCollection   bool             `json:"clearCollection,omitempty"`
	NotifyOnPriceDrop *bool            `json:"notifyOnPriceDrop,omitempty"`
	NotifyOnStock     *bool            `json:"notifyOnStock,omitempty"`
}

// IsEmpty reports whether applying the patch would change nothing.
func (p Patch) IsEmpty() bool {
	return p.Priority == nil &&
		p.Notes == nil &&
		p.TargetPrice == nil &&
		!p.ClearTargetPrice &&
		p.DesiredQuantity == nil &&
		p.Tags == nil &&
		p.CollectionName == nil &&
		!p.ClearCollection &&
		p.NotifyOnPriceDrop == nil &&
		p.NotifyOnStock == nil
}

func (p Patch) Validate() error {
	if p.Priority != nil && !p.Priority.IsValid() {
		return validationError("priority", "unknown priority")
	}
	if p.DesiredQuantity != nil && *p.DesiredQuantity < 1 {
		return validationError("desiredQuantity", "desired quantity must be at least 1")
	}
	if p.TargetPrice != nil && p.TargetPrice.IsNegative() {
		return validationError("targetPrice", "target price cannot be negative")
	}
	if p.TargetPrice != nil && p.ClearTargetPrice {
		return validationError("targetPrice", "target price cannot be set and cleared together")
	}
	if p.CollectionName != nil && p.ClearCollection {
		return validationError("collectionName", "collection cannot be set and cleared together")
	}
	return nil
}

// ApplyTo returns a copy of item with the patch applied. Server-owned and
// derived fields are never touched.
func (p Patch) ApplyTo(item Item) Item {
	out := item.Clone()
	if p.Priority != nil {
		out.Priority = *p.Priority
	}
	if p.Notes != nil {
		out.Notes = *p.Notes
	}
	if p.ClearTargetPrice {
		out.TargetPrice = nil
	} else if p.TargetPrice != nil {
		v := *p.TargetPrice
		out.TargetPrice = &v
	}
	if p.DesiredQuantity != nil {
		out.DesiredQuantity = *p.DesiredQuantity
	}
	if p.Tags != nil {
		out.Tags = NormalizeTags(p.Tags)
	}
	if p.ClearCollection {
		out.CollectionName = nil
	} else if p.CollectionName != nil {
		out.CollectionName = NormalizeCollection(p.CollectionName)
	}
	if p.NotifyOnPriceDrop != nil {
		out.NotifyOnPriceDrop = *p.NotifyOnPriceDrop
	}
	if p.NotifyOnStock != nil {
		out.NotifyOnStock = *p.NotifyOnStock
	}
	return out
}

// MoveTo is the patch that reassigns an item to a collection; nil clears it.
func MoveTo(collection *string) Patch {
	if NormalizeCollection(collection) == nil {
		return Patch{ClearCollection: true}
	}
	name := *NormalizeCollection(collection)
	return Patch{CollectionName: &name}
}
