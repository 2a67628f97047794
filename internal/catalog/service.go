package catalog

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/nlenjibi/storefront-wishlist/internal/repo"
	"github.com/nlenjibi/storefront-wishlist/internal/wishlist"
	"github.com/nlenjibi/storefront-wishlist/pkg/db/models"
	pkgerrors "github.com/nlenjibi/storefront-wishlist/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	// DefaultHistoryDays is the window used when the caller gives none.
	DefaultHistoryDays = 30
	// MaxHistoryDays bounds history queries.
	MaxHistoryDays = 365
	// MaxSnapshotIDs bounds a single snapshot request.
	MaxSnapshotIDs = 500
)

// PricePoint is one observed price of a product.
type PricePoint struct {
	Price      decimal.Decimal `json:"price"`
	RecordedAt time.Time       `json:"recordedAt"`
}

// SnapshotRequest is the body of POST /catalog/snapshot.
type SnapshotRequest struct {
	ProductIDs []int64 `json:"productIds" validate:"required,min=1,max=500,dive,gt=0"`
}

// ProductUpdate is the body of PUT /catalog/{productId}.
type ProductUpdate struct {
	Name     string          `json:"name" validate:"required,max=200"`
	Category string          `json:"category" validate:"max=100"`
	Price    decimal.Decimal `json:"price"`
	InStock  bool            `json:"inStock"`
}

// ServiceParams groups catalog dependencies.
type ServiceParams struct {
	Repo *Repository
	Now  func() time.Time
}

// Service exposes the product catalog.
type Service interface {
	Snapshot(ctx context.Context, ids []int64) (map[int64]wishlist.CatalogSnapshot, error)
	EnsureProduct(ctx context.Context, snap wishlist.CatalogSnapshot) (wishlist.CatalogSnapshot, error)
	UpsertProduct(ctx context.Context, snap wishlist.CatalogSnapshot) (wishlist.CatalogSnapshot, error)
	History(ctx context.Context, productID int64, days int) ([]PricePoint, error)
}

type service struct {
	repo *Repository
	now  func() time.Time
}

// NewService builds the catalog service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "catalog repo is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{repo: params.Repo, now: now}, nil
}

// Snapshot returns the current view of every known product among ids.
// Unknown ids are absent from the map.
func (s *service) Snapshot(ctx context.Context, ids []int64) (map[int64]wishlist.CatalogSnapshot, error) {
	if len(ids) > MaxSnapshotIDs {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "too many product ids")
	}
	rows, err := s.repo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load catalog products")
	}
	out := make(map[int64]wishlist.CatalogSnapshot, len(rows))
	for _, row := range rows {
		out[row.ID] = toSnapshot(row)
	}
	return out, nil
}

// EnsureProduct registers an unknown product from the caller's snapshot and
// returns the catalog's view.
func (s *service) EnsureProduct(ctx context.Context, snap wishlist.CatalogSnapshot) (wishlist.CatalogSnapshot, error) {
	if err := validateSnapshot(snap); err != nil {
		return wishlist.CatalogSnapshot{}, err
	}
	var out wishlist.CatalogSnapshot
	err := s.repo.Tx(ctx, func(tx repo.Base) error {
		txRepo := &Repository{Base: tx}
		now := s.now().UTC()
		created, err := txRepo.InsertIfAbsent(ctx, models.Product{
			ID:       snap.ProductID,
			Name:     strings.TrimSpace(snap.Name),
			Category: strings.TrimSpace(snap.Category),
			Price:    snap.Price,
			InStock:  snap.InStock,
		})
		if err != nil {
			return err
		}
		if created {
			if err := txRepo.AppendPricePoint(ctx, models.PricePoint{ProductID: snap.ProductID, Price: snap.Price, RecordedAt: now}); err != nil {
				return err
			}
		}
		row, err := txRepo.FindByID(ctx, snap.ProductID)
		if err != nil {
			return err
		}
		out = toSnapshot(row)
		return nil
	})
	if err != nil {
		return wishlist.CatalogSnapshot{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure catalog product")
	}
	return out, nil
}

// UpsertProduct writes the product and records a price point whenever the
// price differs from the last known one.
func (s *service) UpsertProduct(ctx context.Context, snap wishlist.CatalogSnapshot) (wishlist.CatalogSnapshot, error) {
	if err := validateSnapshot(snap); err != nil {
		return wishlist.CatalogSnapshot{}, err
	}
	err := s.repo.Tx(ctx, func(tx repo.Base) error {
		txRepo := &Repository{Base: tx}
		now := s.now().UTC()
		existing, err := txRepo.FindByID(ctx, snap.ProductID)
		found := err == nil
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		priceChanged := !found || !existing.Price.Equal(snap.Price)
		existing.ID = snap.ProductID
		existing.Name = strings.TrimSpace(snap.Name)
		existing.Category = strings.TrimSpace(snap.Category)
		existing.Price = snap.Price
		existing.InStock = snap.InStock
		if found {
			err = txRepo.Save(ctx, existing)
		} else {
			_, err = txRepo.InsertIfAbsent(ctx, existing)
		}
		if err != nil {
			return err
		}
		if !priceChanged {
			return nil
		}
		return txRepo.AppendPricePoint(ctx, models.PricePoint{ProductID: snap.ProductID, Price: snap.Price, RecordedAt: now})
	})
	if err != nil {
		return wishlist.CatalogSnapshot{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save catalog product")
	}
	return snap, nil
}

// History returns the price points of the last days days, oldest first.
func (s *service) History(ctx context.Context, productID int64, days int) ([]PricePoint, error) {
	if productID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id must be positive")
	}
	if days <= 0 {
		days = DefaultHistoryDays
	}
	if days > MaxHistoryDays {
		days = MaxHistoryDays
	}
	since := s.now().UTC().AddDate(0, 0, -days)
	rows, err := s.repo.History(ctx, productID, since)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load price history")
	}
	points := make([]PricePoint, 0, len(rows))
	for _, row := range rows {
		points = append(points, PricePoint{Price: row.Price, RecordedAt: row.RecordedAt.UTC()})
	}
	return points, nil
}

// SortedSnapshots flattens a snapshot map ordered by product id.
func SortedSnapshots(snaps map[int64]wishlist.CatalogSnapshot) []wishlist.CatalogSnapshot {
	out := make([]wishlist.CatalogSnapshot, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

func validateSnapshot(snap wishlist.CatalogSnapshot) error {
	if snap.ProductID <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id must be positive")
	}
	if snap.Price.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "price cannot be negative")
	}
	return nil
}

func toSnapshot(row models.Product) wishlist.CatalogSnapshot {
	return wishlist.CatalogSnapshot{
		ProductID: row.ID,
		Name:      row.Name,
		Category:  row.Category,
		Price:     row.Price,
		InStock:   row.InStock,
	}
}
