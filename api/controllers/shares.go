package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nlenjibi/storefront-wishlist/api/responses"
	"github.com/nlenjibi/storefront-wishlist/api/validators"
	"github.com/nlenjibi/storefront-wishlist/internal/share"
	pkgerrors "github.com/nlenjibi/storefront-wishlist/pkg/errors"
	"github.com/nlenjibi/storefront-wishlist/pkg/logger"
)

// ShareCreate snapshots the caller's wishlist behind a signed public link.
func ShareCreate(svc share.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "share service unavailable"))
			return
		}
		owner, err := requireOwner(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req share.CreateRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
		}

		link, err := svc.Create(ctx, owner, req)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, link)
	}
}

// ShareView resolves a public share token. No authentication is required.
func ShareView(svc share.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "share service unavailable"))
			return
		}
		token := strings.TrimSpace(chi.URLParam(r, "token"))
		if token == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "share token required"))
			return
		}

		snapshot, err := svc.Get(ctx, token)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=60")
		responses.WriteSuccess(w, snapshot)
	}
}
