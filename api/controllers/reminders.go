package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nlenjibi/storefront-wishlist/api/responses"
	"github.com/nlenjibi/storefront-wishlist/api/validators"
	"github.com/nlenjibi/storefront-wishlist/internal/reminders"
	pkgerrors "github.com/nlenjibi/storefront-wishlist/pkg/errors"
	"github.com/nlenjibi/storefront-wishlist/pkg/logger"
)

func ReminderCreate(svc reminders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reminders service unavailable"))
			return
		}
		owner, err := requireOwner(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req reminders.CreateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		reminder, err := svc.Create(ctx, owner, req)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, reminder)
	}
}

func ReminderList(svc reminders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reminders service unavailable"))
			return
		}
		owner, err := requireOwner(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		list, err := svc.List(ctx, owner)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func ReminderCancel(svc reminders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reminders service unavailable"))
			return
		}
		owner, err := requireOwner(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		reminderID := strings.TrimSpace(chi.URLParam(r, "reminderId"))
		if reminderID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "reminder id required"))
			return
		}

		if err := svc.Cancel(ctx, owner, reminderID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"cancelled": true})
	}
}
