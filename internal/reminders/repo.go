package reminders

import (
	"context"
	"time"

	"github.com/nlenjibi/storefront-wishlist/internal/repo"
	"github.com/nlenjibi/storefront-wishlist/pkg/db/models"
	"github.com/nlenjibi/storefront-wishlist/pkg/enums"
	"gorm.io/gorm"
)

// Repository persists wishlist reminders.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func (r *Repository) Create(ctx context.Context, reminder *models.Reminder) error {
	return r.DB(ctx).Create(reminder).Error
}

// FindByID loads a reminder owned by ownerKey; gorm.ErrRecordNotFound when absent.
func (r *Repository) FindByID(ctx context.Context, ownerKey, reminderID string) (models.Reminder, error) {
	var row models.Reminder
	err := r.DB(ctx).Where("id = ? AND owner_key = ?", reminderID, ownerKey).Take(&row).Error
	return row, err
}

// FindActive returns the pending reminder of the given type for a product, if any.
func (r *Repository) FindActive(ctx context.Context, ownerKey string, productID int64, kind enums.ReminderType) (models.Reminder, error) {
	var row models.Reminder
	err := r.active(ctx).
		Where("owner_key = ? AND product_id = ? AND type = ?", ownerKey, productID, kind).
		Take(&row).Error
	return row, err
}

// ListActive returns the owner's pending reminders, soonest first.
func (r *Repository) ListActive(ctx context.Context, ownerKey string) ([]models.Reminder, error) {
	var rows []models.Reminder
	err := r.active(ctx).
		Where("owner_key = ?", ownerKey).
		Order("due_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

// ListDue returns pending reminders whose due time has passed.
func (r *Repository) ListDue(ctx context.Context, now time.Time, limit int) ([]models.Reminder, error) {
	var rows []models.Reminder
	query := r.active(ctx).
		Where("due_at <= ?", now).
		Order("due_at ASC").
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&rows).Error
	return rows, err
}

// Cancel marks the reminder cancelled and reports whether a pending row changed.
func (r *Repository) Cancel(ctx context.Context, ownerKey, reminderID string, now time.Time) (bool, error) {
	res := r.active(ctx).
		Model(&models.Reminder{}).
		Where("id = ? AND owner_key = ?", reminderID, ownerKey).
		UpdateColumn("cancelled_at", now)
	return res.RowsAffected > 0, res.Error
}

// UpdateSchedule writes the delivery bookkeeping of a reminder.
func (r *Repository) UpdateSchedule(ctx context.Context, reminder models.Reminder) error {
	return r.DB(ctx).
		Model(&models.Reminder{}).
		Where("id = ?", reminder.ID).
		Updates(map[string]any{
			"due_at":       reminder.DueAt,
			"last_sent_at": reminder.LastSentAt,
			"completed_at": reminder.CompletedAt,
		}).Error
}

// CancelForProduct cancels every pending reminder of a product.
func (r *Repository) CancelForProduct(ctx context.Context, ownerKey string, productID int64, now time.Time) (int64, error) {
	res := r.active(ctx).
		Model(&models.Reminder{}).
		Where("owner_key = ? AND product_id = ?", ownerKey, productID).
		UpdateColumn("cancelled_at", now)
	return res.RowsAffected, res.Error
}

func (r *Repository) active(ctx context.Context) *gorm.DB {
	return r.DB(ctx).Where("cancelled_at IS NULL AND completed_at IS NULL")
}
