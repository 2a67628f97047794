package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the catalog's current price and stock for a product id.
type Product struct {
	ID        int64           `gorm:"column:id;primaryKey;autoIncrement:false"`
	Name      string          `gorm:"column:name;type:text;not null"`
	Category  string          `gorm:"column:category;type:text;not null;default:''"`
	Price     decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	InStock   bool            `gorm:"column:in_stock;not null;default:true"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// PricePoint is an append-only record of a product's price.
type PricePoint struct {
	ID         int64           `gorm:"column:id;primaryKey;autoIncrement"`
	ProductID  int64           `gorm:"column:product_id;not null;index:price_points_product_recorded_idx,priority:1"`
	Price      decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	RecordedAt time.Time       `gorm:"column:recorded_at;not null;index:price_points_product_recorded_idx,priority:2"`
}
