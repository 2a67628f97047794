package share

import (
	"context"
	"time"

	"github.com/nlenjibi/storefront-wishlist/internal/repo"
	"github.com/nlenjibi/storefront-wishlist/pkg/db/models"
	"gorm.io/gorm"
)

// Repository persists share snapshots.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func (r *Repository) Create(ctx context.Context, snapshot *models.ShareSnapshot) error {
	return r.DB(ctx).Create(snapshot).Error
}

// FindByID loads a snapshot; gorm.ErrRecordNotFound when absent.
func (r *Repository) FindByID(ctx context.Context, shareID string) (models.ShareSnapshot, error) {
	var row models.ShareSnapshot
	err := r.DB(ctx).Where("id = ?", shareID).Take(&row).Error
	return row, err
}

// DeleteExpired removes snapshots that expired before now and returns their ids.
func (r *Repository) DeleteExpired(ctx context.Context, now time.Time) ([]string, error) {
	var ids []string
	err := r.Tx(ctx, func(tx repo.Base) error {
		if err := tx.DB(ctx).
			Model(&models.ShareSnapshot{}).
			Where("expires_at < ?", now).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		return tx.DB(ctx).Where("id IN ?", ids).Delete(&models.ShareSnapshot{}).Error
	})
	return ids, err
}
