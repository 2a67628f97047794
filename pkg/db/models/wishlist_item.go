package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/nlenjibi/storefront-wishlist/pkg/enums"
)

// WishlistItem is one product on an owner's wishlist. The composite primary
// key enforces a single row per (owner_key, product_id).
type WishlistItem struct {
	OwnerKey              string              `gorm:"column:owner_key;primaryKey;type:text"`
	ProductID             int64               `gorm:"column:product_id;primaryKey;autoIncrement:false"`
	Name                  string              `gorm:"column:name;type:text;not null;default:''"`
	Category              string              `gorm:"column:category;type:text;not null;default:''"`
	AddedAt               time.Time           `gorm:"column:added_at;not null"`
	PriceWhenAdded        decimal.Decimal     `gorm:"column:price_when_added;type:numeric(12,2);not null"`
	CurrentPrice          decimal.Decimal     `gorm:"column:current_price;type:numeric(12,2);not null"`
	TargetPrice           decimal.NullDecimal `gorm:"column:target_price;type:numeric(12,2)"`
	Priority              enums.Priority      `gorm:"column:priority;type:text;not null;default:'MEDIUM'"`
	DesiredQuantity       int                 `gorm:"column:desired_quantity;not null;default:1"`
	Notes                 string              `gorm:"column:notes;type:text;not null;default:''"`
	Tags                  []string            `gorm:"column:tags;type:jsonb;serializer:json"`
	CollectionName        *string             `gorm:"column:collection_name;type:text;index:wishlist_items_collection_idx"`
	NotifyOnPriceDrop     bool                `gorm:"column:notify_on_price_drop;not null;default:false"`
	NotifyOnStock         bool                `gorm:"column:notify_on_stock;not null;default:false"`
	ShouldNotifyPriceDrop bool                `gorm:"column:should_notify_price_drop;not null;default:false"`
	ShouldNotifyStock     bool                `gorm:"column:should_notify_stock;not null;default:false"`
	InStock               bool                `gorm:"column:in_stock;not null;default:false"`
	UpdatedAt             time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
