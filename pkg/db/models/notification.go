package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/nlenjibi/storefront-wishlist/pkg/enums"
)

// Notification stores in-app wishlist alerts scoped to an owner.
type Notification struct {
	ID        string                 `gorm:"column:id;primaryKey;type:text"`
	OwnerKey  string                 `gorm:"column:owner_key;type:text;not null;index:notifications_owner_idx"`
	ProductID int64                  `gorm:"column:product_id;not null"`
	Kind      enums.NotificationKind `gorm:"column:kind;type:text;not null"`
	Title     string                 `gorm:"column:title;type:text;not null"`
	Message   string                 `gorm:"column:message;type:text;not null"`
	Price     decimal.NullDecimal    `gorm:"column:price;type:numeric(12,2)"`
	ReadAt    *time.Time             `gorm:"column:read_at"`
	CreatedAt time.Time              `gorm:"column:created_at;not null"`
}
