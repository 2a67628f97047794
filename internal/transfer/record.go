// Package transfer converts wishlists to and from flat CSV/JSON records and
// imports parsed records through any wishlist adder.
package transfer

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/nlenjibi/storefront-wishlist/internal/wishlist"
	"github.com/nlenjibi/storefront-wishlist/pkg/enums"
	pkgerrors "github.com/nlenjibi/storefront-wishlist/pkg/errors"
	"github.com/shopspring/decimal"
)

// Record is the flat export row for one wishlist item.
type Record struct {
	ProductID         int64            `json:"productId" validate:"required,gt=0"`
	Name              string           `json:"name,omitempty" validate:"max=255"`
	Category          string           `json:"category,omitempty" validate:"max=120"`
	Price             decimal.Decimal  `json:"price"`
	Priority          string           `json:"priority,omitempty"`
	Quantity          int              `json:"quantity,omitempty" validate:"omitempty,gte=1,lte=999"`
	Notes             string           `json:"notes,omitempty" validate:"max=2000"`
	TargetPrice       *decimal.Decimal `json:"targetPrice,omitempty"`
	Collection        string           `json:"collection,omitempty" validate:"max=120"`
	Tags              []string         `json:"tags,omitempty" validate:"max=50,dive,max=64"`
	NotifyOnPriceDrop bool             `json:"notifyOnPriceDrop"`
	NotifyOnStock     bool             `json:"notifyOnStock"`
	AddedAt           *time.Time       `json:"addedAt,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

func FromItem(item wishlist.Item) Record {
	c := item.Clone()
	addedAt := c.AddedAt
	return Record{
		ProductID:         c.ProductID,
		Name:              c.Name,
		Category:          c.Category,
		Price:             c.CurrentPrice,
		Priority:          string(c.Priority),
		Quantity:          c.DesiredQuantity,
		Notes:             c.Notes,
		TargetPrice:       c.TargetPrice,
		Collection:        c.Collection(),
		Tags:              c.Tags,
		NotifyOnPriceDrop: c.NotifyOnPriceDrop,
		NotifyOnStock:     c.NotifyOnStock,
		AddedAt:           &addedAt,
	}
}

func FromItems(items []wishlist.Item) []Record {
	out := make([]Record, 0, len(items))
	for _, item := range items {
		out = append(out, FromItem(item))
	}
	return out
}

// Validate checks the record shape before it is turned into a request.
func (r Record) Validate() error {
	if err := validate.Struct(r); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok {
			details := map[string]string{}
			for _, fe := range errs {
				details[fe.Field()] = fe.Tag()
			}
			return pkgerrors.New(pkgerrors.CodeValidation, "invalid import record").WithDetails(details)
		}
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid import record")
	}
	return nil
}

// Request converts the record into an add request. Price is the price at
// export time and only seeds products the catalog does not know yet.
func (r Record) Request() (wishlist.AddRequest, error) {
	if err := r.Validate(); err != nil {
		return wishlist.AddRequest{}, err
	}
	req := wishlist.AddRequest{
		ProductID:         r.ProductID,
		Name:              r.Name,
		Category:          r.Category,
		Price:             r.Price,
		DesiredQuantity:   r.Quantity,
		Notes:             r.Notes,
		TargetPrice:       r.TargetPrice,
		Tags:              r.Tags,
		NotifyOnPriceDrop: boolPtr(r.NotifyOnPriceDrop),
		NotifyOnStock:     boolPtr(r.NotifyOnStock),
		AddedAt:           r.AddedAt,
	}
	if r.Priority != "" {
		priority, err := enums.ParsePriority(r.Priority)
		if err != nil {
			return wishlist.AddRequest{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid priority")
		}
		req.Priority = priority
	}
	if r.Collection != "" {
		name := r.Collection
		req.CollectionName = &name
	}
	if err := req.Validate(); err != nil {
		return wishlist.AddRequest{}, err
	}
	return req, nil
}

func boolPtr(v bool) *bool {
	return &v
}
