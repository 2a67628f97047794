package controllers

import (
	"net/http"

	"github.com/nlenjibi/storefront-wishlist/api/responses"
	"github.com/nlenjibi/storefront-wishlist/api/validators"
	"github.com/nlenjibi/storefront-wishlist/internal/catalog"
	"github.com/nlenjibi/storefront-wishlist/internal/wishlist"
	pkgerrors "github.com/nlenjibi/storefront-wishlist/pkg/errors"
	"github.com/nlenjibi/storefront-wishlist/pkg/logger"
)

// CatalogSnapshot returns current price and stock for the known products in
// the request, ordered by product id. Unknown ids are omitted.
func CatalogSnapshot(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}

		var req catalog.SnapshotRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		snaps, err := svc.Snapshot(ctx, req.ProductIDs)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, catalog.SortedSnapshots(snaps))
	}
}

func CatalogHistory(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}
		productID, err := productIDParam(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		days, err := validators.ParseQueryInt(r, "days", catalog.DefaultHistoryDays, 1, catalog.MaxHistoryDays)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		points, err := svc.History(ctx, productID, days)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, points)
	}
}

// CatalogUpsert records the latest price and stock of a product. Price
// changes are appended to the product's history.
func CatalogUpsert(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}
		productID, err := productIDParam(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req catalog.ProductUpdate
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		snap, err := svc.UpsertProduct(ctx, wishlist.CatalogSnapshot{
			ProductID: productID,
			Name:      req.Name,
			Category:  req.Category,
			Price:     req.Price,
			InStock:   req.InStock,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, snap)
	}
}
