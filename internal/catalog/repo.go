package catalog

import (
	"context"
	"time"

	"github.com/nlenjibi/storefront-wishlist/internal/repo"
	"github.com/nlenjibi/storefront-wishlist/pkg/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists catalog products and their price history.
type Repository struct {
	repo.Base
}

// NewRepository binds a catalog repository to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// FindByIDs loads the products that exist among ids.
func (r *Repository) FindByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.Product
	err := r.DB(ctx).Where("id IN ?", ids).Order("id ASC").Find(&rows).Error
	return rows, err
}

// FindByID loads one product; gorm.ErrRecordNotFound when absent.
func (r *Repository) FindByID(ctx context.Context, id int64) (models.Product, error) {
	var row models.Product
	err := r.DB(ctx).Where("id = ?", id).Take(&row).Error
	return row, err
}

// InsertIfAbsent creates the product unless a row with the same id exists.
// It reports whether a row was created.
func (r *Repository) InsertIfAbsent(ctx context.Context, product models.Product) (bool, error) {
	res := r.DB(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&product)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Save writes every column of the product.
func (r *Repository) Save(ctx context.Context, product models.Product) error {
	return r.DB(ctx).Save(&product).Error
}

// AppendPricePoint records an observed price.
func (r *Repository) AppendPricePoint(ctx context.Context, point models.PricePoint) error {
	return r.DB(ctx).Create(&point).Error
}

// History returns price points recorded at or after since, oldest first.
func (r *Repository) History(ctx context.Context, productID int64, since time.Time) ([]models.PricePoint, error) {
	var rows []models.PricePoint
	err := r.DB(ctx).
		Where("product_id = ? AND recorded_at >= ?", productID, since.UTC()).
		Order("recorded_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}
