package wishlist

import (
	"context"
	"time"

	pkgerrors "github.com/nlenjibi/storefront-wishlist/pkg/errors"
)

// Catalog is the slice of the product catalog the wishlist service needs.
type Catalog interface {
	// EnsureProduct returns the catalog's view of the product, registering it
	// from the supplied snapshot when the catalog has never seen it.
	EnsureProduct(ctx context.Context, snap CatalogSnapshot) (CatalogSnapshot, error)
}

// RecomputeFunc refreshes the derived notification flags of an item.
type RecomputeFunc func(Item) Item

// ServiceParams groups dependencies for the wishlist service.
type ServiceParams struct {
	Repo      *Repository
	Catalog   Catalog
	Recompute RecomputeFunc
	Now       func() time.Time
}

// Service exposes business rules for server-side wishlist management.
type Service interface {
	List(ctx context.Context, ownerKey string) ([]Item, error)
	Get(ctx context.Context, ownerKey string, productID int64) (Item, error)
	Add(ctx context.Context, ownerKey string, req AddRequest) (Item, error)
	Update(ctx context.Context, ownerKey string, productID int64, patch Patch) (Item, error)
	Remove(ctx context.Context, ownerKey string, productID int64) (bool, error)
	BulkAdd(ctx context.Context, ownerKey string, reqs []AddRequest) (BulkAddResponse, error)
	BulkMove(ctx context.Context, ownerKey string, productIDs []int64, collection *string) (BatchResult, error)
	Save(ctx context.Context, ownerKey string, item Item) (Item, error)
	ListOwners(ctx context.Context) ([]string, error)
}

type service struct {
	repo      *Repository
	catalog   Catalog
	recompute RecomputeFunc
	now       func() time.Time
}

// NewService builds a wishlist service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wishlist repo is required")
	}
	if params.Catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "catalog is required")
	}
	recompute := params.Recompute
	if recompute == nil {
		recompute = func(item Item) Item { return item }
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:      params.Repo,
		catalog:   params.Catalog,
		recompute: recompute,
		now:       now,
	}, nil
}

func (s *service) List(ctx context.Context, ownerKey string) ([]Item, error) {
	if err := requireOwner(ownerKey); err != nil {
		return nil, err
	}
	items, err := s.repo.List(ctx, ownerKey)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list wishlist")
	}
	return items, nil
}

func (s *service) Get(ctx context.Context, ownerKey string, productID int64) (Item, error) {
	if err := requireOwner(ownerKey); err != nil {
		return Item{}, err
	}
	return s.load(ctx, ownerKey, productID)
}

// Add creates the item or folds the request into the existing one. Price and
// stock always come from the catalog at the time of the call.
func (s *service) Add(ctx context.Context, ownerKey string, req AddRequest) (Item, error) {
	if err := requireOwner(ownerKey); err != nil {
		return Item{}, err
	}
	if err := req.Validate(); err != nil {
		return Item{}, err
	}

	snap, err := s.catalog.EnsureProduct(ctx, CatalogSnapshot{
		ProductID: req.ProductID,
		Name:      req.Name,
		Category:  req.Category,
		Price:     req.Price,
		InStock:   req.InStock,
	})
	if err != nil {
		return Item{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load catalog product")
	}

	existing, err := s.repo.Get(ctx, ownerKey, req.ProductID)
	var item Item
	switch {
	case err == nil:
		item = ApplyAdd(existing, req)
	case IsNotFound(err):
		req.Price = snap.Price
		item = NewItem(req, s.now())
	default:
		return Item{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wishlist item")
	}
	item = withCatalog(item, snap)
	return s.persist(ctx, ownerKey, item)
}

func (s *service) Update(ctx context.Context, ownerKey string, productID int64, patch Patch) (Item, error) {
	if err := requireOwner(ownerKey); err != nil {
		return Item{}, err
	}
	if err := patch.Validate(); err != nil {
		return Item{}, err
	}
	existing, err := s.load(ctx, ownerKey, productID)
	if err != nil {
		return Item{}, err
	}
	if patch.IsEmpty() {
		return existing, nil
	}
	return s.persist(ctx, ownerKey, patch.ApplyTo(existing))
}

// Remove deletes the item. Removing an absent item is not an error.
func (s *service) Remove(ctx context.Context, ownerKey string, productID int64) (bool, error) {
	if err := requireOwner(ownerKey); err != nil {
		return false, err
	}
	if productID <= 0 {
		return false, validationError("productId", "product id must be positive")
	}
	removed, err := s.repo.Delete(ctx, ownerKey, productID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete wishlist item")
	}
	return removed, nil
}

// BulkAdd applies every request independently; a failing row never aborts the batch.
func (s *service) BulkAdd(ctx context.Context, ownerKey string, reqs []AddRequest) (BulkAddResponse, error) {
	if err := requireOwner(ownerKey); err != nil {
		return BulkAddResponse{}, err
	}
	resp := BulkAddResponse{Result: NewBatchResult(), Items: make([]Item, 0, len(reqs))}
	for i, req := range reqs {
		item, err := s.Add(ctx, ownerKey, req)
		if err != nil {
			if ctx.Err() != nil {
				return BulkAddResponse{}, pkgerrors.Wrap(pkgerrors.CodeDependency, ctx.Err(), "bulk add interrupted")
			}
			resp.Result.FailRow(i, req.ProductID, err)
			continue
		}
		resp.Result.Succeed(item.ProductID)
		resp.Items = append(resp.Items, item)
	}
	return resp, nil
}

// BulkMove reassigns the collection of the listed items. Unknown ids are skipped.
func (s *service) BulkMove(ctx context.Context, ownerKey string, productIDs []int64, collection *string) (BatchResult, error) {
	if err := requireOwner(ownerKey); err != nil {
		return BatchResult{}, err
	}
	result := NewBatchResult()
	seen := make(map[int64]struct{}, len(productIDs))
	valid := make([]int64, 0, len(productIDs))
	for _, id := range productIDs {
		if id <= 0 {
			result.Fail(id, validationError("productId", "product id must be positive"))
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		valid = append(valid, id)
	}

	moved, err := s.repo.MoveCollection(ctx, ownerKey, valid, NormalizeCollection(collection))
	if err != nil {
		return BatchResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "move wishlist items")
	}
	present := make(map[int64]struct{}, len(moved))
	for _, id := range moved {
		present[id] = struct{}{}
	}
	for _, id := range valid {
		if _, ok := present[id]; ok {
			result.Succeed(id)
		} else {
			result.Skip(id)
		}
	}
	return result, nil
}

// Save writes a whole item as produced by a catalog refresh.
func (s *service) Save(ctx context.Context, ownerKey string, item Item) (Item, error) {
	if err := requireOwner(ownerKey); err != nil {
		return Item{}, err
	}
	return s.persist(ctx, ownerKey, item)
}

func (s *service) ListOwners(ctx context.Context) ([]string, error) {
	owners, err := s.repo.ListOwners(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list wishlist owners")
	}
	return owners, nil
}

func (s *service) load(ctx context.Context, ownerKey string, productID int64) (Item, error) {
	item, err := s.repo.Get(ctx, ownerKey, productID)
	if err != nil {
		if IsNotFound(err) {
			return Item{}, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "wishlist item not found")
		}
		return Item{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wishlist item")
	}
	return item, nil
}

func (s *service) persist(ctx context.Context, ownerKey string, item Item) (Item, error) {
	item = s.recompute(item)
	if err := item.Validate(); err != nil {
		return Item{}, err
	}
	saved, err := s.repo.Upsert(ctx, ownerKey, item)
	if err != nil {
		return Item{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save wishlist item")
	}
	return saved, nil
}

func withCatalog(item Item, snap CatalogSnapshot) Item {
	item.CurrentPrice = snap.Price
	item.InStock = snap.InStock
	if snap.Name != "" {
		item.Name = snap.Name
	}
	if snap.Category != "" {
		item.Category = snap.Category
	}
	return item
}

func requireOwner(ownerKey string) error {
	if ownerKey == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "owner is required")
	}
	return nil
}
