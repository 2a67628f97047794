package controllers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nlenjibi/storefront-wishlist/api/middleware"
	pkgerrors "github.com/nlenjibi/storefront-wishlist/pkg/errors"
)

func requireOwner(ctx context.Context) (string, error) {
	owner := middleware.OwnerKeyFromContext(ctx)
	if owner == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return owner, nil
}

func productIDParam(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "productId"))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "invalid product id").WithDetails(map[string]any{"productId": raw})
	}
	return id, nil
}
