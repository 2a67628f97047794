package wishlist

import (
	"context"
	"errors"

	"github.com/nlenjibi/storefront-wishlist/internal/repo"
	"github.com/nlenjibi/storefront-wishlist/pkg/db/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// upsertColumns are rewritten when a row for (owner_key, product_id) already
// exists. added_at and price_when_added are write-once and never listed.
var upsertColumns = []string{
	"name",
	"category",
	"current_price",
	"target_price",
	"priority",
	"desired_quantity",
	"notes",
	"tags",
	"collection_name",
	"notify_on_price_drop",
	"notify_on_stock",
	"should_notify_price_drop",
	"should_notify_stock",
	"in_stock",
	"updated_at",
}

// Repository encapsulates wishlist persistence.
type Repository struct {
	repo.Base
}

// NewRepository constructs a wishlist repository bound to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// List returns the owner's items, newest first.
func (r *Repository) List(ctx context.Context, ownerKey string) ([]Item, error) {
	var rows []models.WishlistItem
	err := r.DB(ctx).
		Where("owner_key = ?", ownerKey).
		Order("added_at DESC").
		Order("product_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, fromModel(row))
	}
	return items, nil
}

// Get loads a single item. gorm.ErrRecordNotFound is returned when absent.
func (r *Repository) Get(ctx context.Context, ownerKey string, productID int64) (Item, error) {
	var row models.WishlistItem
	err := r.DB(ctx).
		Where("owner_key = ? AND product_id = ?", ownerKey, productID).
		Take(&row).Error
	if err != nil {
		return Item{}, err
	}
	return fromModel(row), nil
}

// Upsert inserts the item or rewrites the mutable columns of the existing row.
func (r *Repository) Upsert(ctx context.Context, ownerKey string, item Item) (Item, error) {
	row := toModel(ownerKey, item)
	err := r.DB(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_key"}, {Name: "product_id"}},
			DoUpdates: clause.AssignmentColumns(upsertColumns),
		}).
		Create(&row).Error
	if err != nil {
		return Item{}, err
	}
	return r.Get(ctx, ownerKey, item.ProductID)
}

// Delete removes the item and reports whether a row existed.
func (r *Repository) Delete(ctx context.Context, ownerKey string, productID int64) (bool, error) {
	res := r.DB(ctx).
		Where("owner_key = ? AND product_id = ?", ownerKey, productID).
		Delete(&models.WishlistItem{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MoveCollection reassigns the collection of the listed products and returns
// the ids that were present.
func (r *Repository) MoveCollection(ctx context.Context, ownerKey string, productIDs []int64, collection *string) ([]int64, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	var moved []int64
	err := r.Tx(ctx, func(tx repo.Base) error {
		if err := tx.DB(ctx).
			Model(&models.WishlistItem{}).
			Where("owner_key = ? AND product_id IN ?", ownerKey, productIDs).
			Order("product_id ASC").
			Pluck("product_id", &moved).Error; err != nil {
			return err
		}
		if len(moved) == 0 {
			return nil
		}
		return tx.DB(ctx).
			Model(&models.WishlistItem{}).
			Where("owner_key = ? AND product_id IN ?", ownerKey, moved).
			Update("collection_name", collection).Error
	})
	if err != nil {
		return nil, err
	}
	return moved, nil
}

// ListOwners returns every owner key with at least one item.
func (r *Repository) ListOwners(ctx context.Context) ([]string, error) {
	var owners []string
	err := r.DB(ctx).
		Model(&models.WishlistItem{}).
		Distinct("owner_key").
		Order("owner_key ASC").
		Pluck("owner_key", &owners).Error
	return owners, err
}

// IsNotFound reports whether err is a missing-row error from this repository.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func toModel(ownerKey string, item Item) models.WishlistItem {
	row := models.WishlistItem{
		OwnerKey:              ownerKey,
		ProductID:             item.ProductID,
		Name:                  item.Name,
		Category:              item.Category,
		AddedAt:               item.AddedAt.UTC(),
		PriceWhenAdded:        item.PriceWhenAdded,
		CurrentPrice:          item.CurrentPrice,
		Priority:              item.Priority,
		DesiredQuantity:       item.DesiredQuantity,
		Notes:                 item.Notes,
		Tags:                  item.Tags,
		CollectionName:        item.CollectionName,
		NotifyOnPriceDrop:     item.NotifyOnPriceDrop,
		NotifyOnStock:         item.NotifyOnStock,
		ShouldNotifyPriceDrop: item.ShouldNotifyPriceDrop,
		ShouldNotifyStock:     item.ShouldNotifyStock,
		InStock:               item.InStock,
	}
	if row.Tags == nil {
		row.Tags = []string{}
	}
	if item.TargetPrice != nil {
		row.TargetPrice = decimal.NullDecimal{Decimal: *item.TargetPrice, Valid: true}
	}
	return row
}

func fromModel(row models.WishlistItem) Item {
	item := Item{
		ProductID:             row.ProductID,
		Name:                  row.Name,
		Category:              row.Category,
		AddedAt:               row.AddedAt.UTC(),
		PriceWhenAdded:        row.PriceWhenAdded,
		CurrentPrice:          row.CurrentPrice,
		Priority:              row.Priority,
		DesiredQuantity:       row.DesiredQuantity,
		Notes:                 row.Notes,
		Tags:                  NormalizeTags(row.Tags),
		CollectionName:        row.CollectionName,
		NotifyOnPriceDrop:     row.NotifyOnPriceDrop,
		NotifyOnStock:         row.NotifyOnStock,
		ShouldNotifyPriceDrop: row.ShouldNotifyPriceDrop,
		ShouldNotifyStock:     row.ShouldNotifyStock,
		InStock:               row.InStock,
	}
	if row.TargetPrice.Valid {
		v := row.TargetPrice.Decimal
		item.TargetPrice = &v
	}
	return item
}
