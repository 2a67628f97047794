package models

import (
	"encoding/json"
	"time"
)

// ShareSnapshot is a point-in-time, read-only copy of a wishlist.
type ShareSnapshot struct {
	ID        string          `gorm:"column:id;primaryKey;type:text"`
	OwnerKey  string          `gorm:"column:owner_key;type:text;not null"`
	Title     string          `gorm:"column:title;type:text;not null;default:''"`
	ItemCount int             `gorm:"column:item_count;not null"`
	Payload   json.RawMessage `gorm:"column:payload;type:jsonb;not null"`
	CreatedAt time.Time       `gorm:"column:created_at;not null"`
	ExpiresAt time.Time       `gorm:"column:expires_at;not null;index:share_snapshots_expires_idx"`
}
