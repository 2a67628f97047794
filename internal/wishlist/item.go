package wishlist

import (
	"sort"
	"strings"
	"time"

	"github.com/nlenjibi/storefront-wishlist/pkg/enums"
	pkgerrors "github.com/nlenjibi/storefront-wishlist/pkg/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Item is one wishlist entry. Exactly one Item exists per owner and product.
type Item struct {
	ProductID             int64            `json:"productId"`
	Name                  string           `json:"name,omitempty"`
	Category              string           `json:"category,omitempty"`
	AddedAt               time.Time        `json:"addedAt"`
	PriceWhenAdded        decimal.Decimal  `json:"priceWhenAdded"`
	CurrentPrice          decimal.Decimal  `json:"currentPrice"`
	TargetPrice           *decimal.Decimal `json:"targetPrice,omitempty"`
	Priority              enums.Priority   `json:"priority"`
	DesiredQuantity       int              `json:"desiredQuantity"`
	Notes                 string           `json:"notes,omitempty"`
	Tags                  []string         `json:"tags,omitempty"`
	CollectionName        *string          `json:"collectionName,omitempty"`
	NotifyOnPriceDrop     bool             `json:"notifyOnPriceDrop"`
	NotifyOnStock         bool             `json:"notifyOnStock"`
	ShouldNotifyPriceDrop bool             `json:"shouldNotifyPriceDrop"`
	ShouldNotifyStock     bool             `json:"shouldNotifyStock"`
	InStock               bool             `json:"inStock"`
}

// AddRequest describes an "add to wishlist" action. Zero values mean "use the
// default" on creation and "leave unchanged" when the product is already present.
type AddRequest struct {
	ProductID         int64            `json:"productId" validate:"required,gt=0"`
	Name              string           `json:"name,omitempty"`
	Category          string           `json:"category,omitempty"`
	Price             decimal.Decimal  `json:"price"`
	InStock           bool             `json:"inStock"`
	TargetPrice       *decimal.Decimal `json:"targetPrice,omitempty"`
	Priority          enums.Priority   `json:"priority,omitempty"`
	DesiredQuantity   int              `json:"desiredQuantity,omitempty" validate:"omitempty,gte=1"`
	Notes             string           `json:"notes,omitempty"`
	Tags              []string         `json:"tags,omitempty"`
	CollectionName    *string          `json:"collectionName,omitempty"`
	NotifyOnPriceDrop *bool            `json:"notifyOnPriceDrop,omitempty"`
	NotifyOnStock     *bool            `json:"notifyOnStock,omitempty"`

	// AddedAt and PriceWhenAdded carry an existing record across stores
	// (guest merge, import). They are ignored when the product is already present.
	AddedAt        *time.Time       `json:"addedAt,omitempty"`
	PriceWhenAdded *decimal.Decimal `json:"priceWhenAdded,omitempty"`
}

// Validate rejects malformed requests before any store is touched.
func (r AddRequest) Validate() error {
	if r.ProductID <= 0 {
		return validationError("productId", "product id must be positive")
	}
	if r.Price.IsNegative() {
		return validationError("price", "price cannot be negative")
	}
	if r.PriceWhenAdded != nil && r.PriceWhenAdded.IsNegative() {
		return validationError("priceWhenAdded", "price cannot be negative")
	}
	return r.Patch().Validate()
}

// Patch projects the user-editable part of the request.
func (r AddRequest) Patch() Patch {
	patch := Patch{
		TargetPrice:       r.TargetPrice,
		CollectionName:    r.CollectionName,
		NotifyOnPriceDrop: r.NotifyOnPriceDrop,
		NotifyOnStock:     r.NotifyOnStock,
	}
	if r.Priority != "" {
		p := r.Priority
		patch.Priority = &p
	}
	if r.DesiredQuantity != 0 {
		q := r.DesiredQuantity
		patch.DesiredQuantity = &q
	}
	if r.Notes != "" {
		n := r.Notes
		patch.Notes = &n
	}
	if r.Tags != nil {
		patch.Tags = append([]string{}, r.Tags...)
	}
	return patch
}

// RequestFromItem rebuilds the request that recreates item in another store,
// preserving its creation time and price snapshot.
func RequestFromItem(item Item) AddRequest {
	addedAt := item.AddedAt
	priceWhenAdded := item.PriceWhenAdded
	notifyDrop := item.NotifyOnPriceDrop
	notifyStock := item.NotifyOnStock
	c := item.Clone()
	return AddRequest{
		ProductID:         c.ProductID,
		Name:              c.Name,
		Category:          c.Category,
		Price:             c.CurrentPrice,
		InStock:           c.InStock,
		TargetPrice:       c.TargetPrice,
		Priority:          c.Priority,
		DesiredQuantity:   c.DesiredQuantity,
		Notes:             c.Notes,
		Tags:              c.Tags,
		CollectionName:    c.CollectionName,
		NotifyOnPriceDrop: &notifyDrop,
		NotifyOnStock:     &notifyStock,
		AddedAt:           &addedAt,
		PriceWhenAdded:    &priceWhenAdded,
	}
}

// NewItem builds a normalised item from an add request.
func NewItem(req AddRequest, now time.Time) Item {
	item := Item{
		ProductID:       req.ProductID,
		Name:            strings.TrimSpace(req.Name),
		Category:        strings.TrimSpace(req.Category),
		AddedAt:         now.UTC(),
		PriceWhenAdded:  req.Price,
		CurrentPrice:    req.Price,
		Priority:        enums.DefaultPriority,
		DesiredQuantity: 1,
		InStock:         req.InStock,
	}
	if req.AddedAt != nil && !req.AddedAt.IsZero() {
		item.AddedAt = req.AddedAt.UTC()
	}
	if req.PriceWhenAdded != nil {
		item.PriceWhenAdded = *req.PriceWhenAdded
	}
	return req.Patch().ApplyTo(item)
}

// ApplyAdd folds a repeated add of an already-present product into the
// existing item. AddedAt and PriceWhenAdded are never touched.
func ApplyAdd(existing Item, req AddRequest) Item {
	updated := req.Patch().ApplyTo(existing)
	if name := strings.TrimSpace(req.Name); name != "" {
		updated.Name = name
	}
	if category := strings.TrimSpace(req.Category); category != "" {
		updated.Category = category
	}
	return updated
}

// Validate checks the item invariants.
func (i Item) Validate() error {
	if i.ProductID <= 0 {
		return validationError("productId", "product id must be positive")
	}
	if i.DesiredQuantity < 1 {
		return validationError("desiredQuantity", "desired quantity must be at least 1")
	}
	if i.TargetPrice != nil && i.TargetPrice.IsNegative() {
		return validationError("targetPrice", "target price cannot be negative")
	}
	if !i.Priority.IsValid() {
		return validationError("priority", "unknown priority")
	}
	return nil
}

// Clone returns a deep copy safe to hand to other goroutines.
func (i Item) Clone() Item {
	out := i
	if i.TargetPrice != nil {
		v := *i.TargetPrice
		out.TargetPrice = &v
	}
	if i.CollectionName != nil {
		v := *i.CollectionName
		out.CollectionName = &v
	}
	if i.Tags != nil {
		out.Tags = append([]string{}, i.Tags...)
	}
	return out
}

// Collection returns the collection name, "" when uncategorised.
func (i Item) Collection() string {
	if i.CollectionName == nil {
		return ""
	}
	return *i.CollectionName
}

// IsPriceDropped reports whether the current price is below the price at add time.
func (i Item) IsPriceDropped() bool {
	return i.CurrentPrice.LessThan(i.PriceWhenAdded)
}

// PriceDropPercent is the drop relative to PriceWhenAdded, rounded to two
// places. It is zero when there is no reference price or no drop.
func (i Item) PriceDropPercent() decimal.Decimal {
	if !i.PriceWhenAdded.IsPositive() || !i.IsPriceDropped() {
		return decimal.Zero
	}
	return i.PriceWhenAdded.Sub(i.CurrentPrice).Div(i.PriceWhenAdded).Mul(hundred).Round(2)
}

func (i Item) TargetReached() bool {
	return i.TargetPrice != nil && i.CurrentPrice.LessThanOrEqual(*i.TargetPrice)
}

// Savings is max(0, PriceWhenAdded-CurrentPrice) * DesiredQuantity.
func (i Item) Savings() decimal.Decimal {
	if !i.IsPriceDropped() {
		return decimal.Zero
	}
	return i.PriceWhenAdded.Sub(i.CurrentPrice).Mul(decimal.NewFromInt(int64(i.quantity())))
}

func (i Item) LineTotal() decimal.Decimal {
	return i.CurrentPrice.Mul(decimal.NewFromInt(int64(i.quantity())))
}

func (i Item) quantity() int {
	if i.DesiredQuantity < 1 {
		return 1
	}
	return i.DesiredQuantity
}

// CatalogSnapshot is the catalog's view of one product at a point in time.
type CatalogSnapshot struct {
	ProductID int64           `json:"productId"`
	Name      string          `json:"name,omitempty"`
	Category  string          `json:"category,omitempty"`
	Price     decimal.Decimal `json:"price"`
	InStock   bool            `json:"inStock"`
}

// SortItems orders items newest first, product id breaking ties.
func SortItems(items []Item) {
	sort.SliceStable(items, func(a, b int) bool {
		if !items[a].AddedAt.Equal(items[b].AddedAt) {
			return items[a].AddedAt.After(items[b].AddedAt)
		}
		return items[a].ProductID < items[b].ProductID
	})
}

// NormalizeTags trims, deduplicates and sorts tags. Empty input yields nil.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

// NormalizeCollection trims the name and maps blank names to nil.
func NormalizeCollection(name *string) *string {
	if name == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*name)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func validationError(field, message string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, message).WithDetails(map[string]any{"field": field})
}
