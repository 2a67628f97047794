package models

import (
	"time"

	"github.com/nlenjibi/storefront-wishlist/pkg/enums"
)

// Reminder schedules a follow-up nudge about a wishlist item.
type Reminder struct {
	ID          string             `gorm:"column:id;primaryKey;type:text"`
	OwnerKey    string             `gorm:"column:owner_key;type:text;not null;index:reminders_owner_idx"`
	ProductID   int64              `gorm:"column:product_id;not null"`
	Type        enums.ReminderType `gorm:"column:type;type:text;not null"`
	DueAt       time.Time          `gorm:"column:due_at;not null;index:reminders_due_idx"`
	LastSentAt  *time.Time         `gorm:"column:last_sent_at"`
	CompletedAt *time.Time         `gorm:"column:completed_at"`
	CancelledAt *time.Time         `gorm:"column:cancelled_at"`
	CreatedAt   time.Time          `gorm:"column:created_at;autoCreateTime"`
}
