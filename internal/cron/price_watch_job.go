package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nlenjibi/storefront-wishlist/internal/notify"
	"github.com/nlenjibi/storefront-wishlist/internal/wishlist"
	"github.com/nlenjibi/storefront-wishlist/pkg/logger"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/multierr"
)

const defaultPriceWatchWorkers = 4

type PriceWatchJobParams struct {
	Logger     *logger.Logger
	Wishlist   priceWatchWishlist
	Catalog    priceWatchCatalog
	Dispatcher notify.Dispatcher
	Workers    int
}

type priceWatchWishlist interface {
	ListOwners(ctx context.Context) ([]string, error)
	List(ctx context.Context, ownerKey string) ([]wishlist.Item, error)
	Save(ctx context.Context, ownerKey string, item wishlist.Item) (wishlist.Item, error)
}

type priceWatchCatalog interface {
	Snapshot(ctx context.Context, ids []int64) (map[int64]wishlist.CatalogSnapshot, error)
}

func NewPriceWatchJob(params PriceWatchJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Wishlist == nil {
		return nil, fmt.Errorf("wishlist service required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog required")
	}
	if params.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher required")
	}
	workers := params.Workers
	if workers <= 0 {
		workers = defaultPriceWatchWorkers
	}
	return &priceWatchJob{
		logg:       params.Logger,
		wishlist:   params.Wishlist,
		catalog:    params.Catalog,
		dispatcher: params.Dispatcher,
		workers:    workers,
	}, nil
}

type priceWatchJob struct {
	logg       *logger.Logger
	wishlist   priceWatchWishlist
	catalog    priceWatchCatalog
	dispatcher notify.Dispatcher
	workers    int
}

type ownerRefresh struct {
	updated     int
	dispatched  int
	transitions int
}

func (j *priceWatchJob) Name() string { return JobPriceWatch }

// Run refreshes every wishlist from the catalog. Owners are processed
// concurrently; a failing owner never stops the others.
func (j *priceWatchJob) Run(ctx context.Context) error {
	owners, err := j.wishlist.ListOwners(ctx)
	if err != nil {
		return fmt.Errorf("list wishlist owners: %w", err)
	}

	var (
		mu     sync.Mutex
		errs   error
		totals ownerRefresh
	)
	start := time.Now()
	p := pool.New().WithMaxGoroutines(j.workers)
	for _, owner := range owners {
		owner := owner
		p.Go(func() {
			res, err := j.refreshOwner(ctx, owner)
			mu.Lock()
			defer mu.Unlock()
			totals.updated += res.updated
			totals.dispatched += res.dispatched
			totals.transitions += res.transitions
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("owner %s: %w", owner, err))
			}
		})
	}
	p.Wait()

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"owners":        len(owners),
		"items_updated": totals.updated,
		"transitions":   totals.transitions,
		"dispatched":    totals.dispatched,
		"failed_owners": len(multierr.Errors(errs)),
		"duration_ms":   time.Since(start).Milliseconds(),
	})
	j.logg.Info(logCtx, "price watch complete")
	return errs
}

func (j *priceWatchJob) refreshOwner(ctx context.Context, owner string) (ownerRefresh, error) {
	var res ownerRefresh
	items, err := j.wishlist.List(ctx, owner)
	if err != nil {
		return res, fmt.Errorf("list items: %w", err)
	}
	if len(items) == 0 {
		return res, nil
	}
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	snaps, err := j.catalog.Snapshot(ctx, ids)
	if err != nil {
		return res, fmt.Errorf("catalog snapshot: %w", err)
	}

	var errs error
	for _, item := range items {
		snap, ok := snaps[item.ProductID]
		if !ok {
			continue
		}
		updated, transitions := notify.Apply(item, snap)
		if refreshChanged(item, updated) {
			if _, err := j.wishlist.Save(ctx, owner, updated); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("save product %d: %w", item.ProductID, err))
				continue
			}
			res.updated++
		}
		res.transitions += len(transitions)
		for _, transition := range transitions {
			if err := j.dispatcher.Dispatch(ctx, owner, transition); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("dispatch %s for product %d: %w", transition.Kind, item.ProductID, err))
				continue
			}
			res.dispatched++
		}
	}
	return res, errs
}

func refreshChanged(before, after wishlist.Item) bool {
	return !before.CurrentPrice.Equal(after.CurrentPrice) ||
		before.InStock != after.InStock ||
		before.ShouldNotifyPriceDrop != after.ShouldNotifyPriceDrop ||
		before.ShouldNotifyStock != after.ShouldNotifyStock ||
		before.Name != after.Name ||
		before.Category != after.Category
}
