package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nlenjibi/storefront-wishlist/api/controllers"
	"github.com/nlenjibi/storefront-wishlist/api/middleware"
	"github.com/nlenjibi/storefront-wishlist/internal/catalog"
	"github.com/nlenjibi/storefront-wishlist/internal/notifications"
	"github.com/nlenjibi/storefront-wishlist/internal/reminders"
	"github.com/nlenjibi/storefront-wishlist/internal/share"
	"github.com/nlenjibi/storefront-wishlist/internal/wishlist"
	"github.com/nlenjibi/storefront-wishlist/pkg/config"
	"github.com/nlenjibi/storefront-wishlist/pkg/logger"
	pkgredis "github.com/nlenjibi/storefront-wishlist/pkg/redis"
)

// Store is the Redis surface the HTTP layer needs.
type Store interface {
	pkgredis.Pinger
	pkgredis.IdempotencyStore
	pkgredis.WindowLimiter
}

// Services groups the domain services exposed over HTTP.
type Services struct {
	Wishlist      wishlist.Service
	Catalog       catalog.Service
	Reminders     reminders.Service
	Shares        share.Service
	Notifications notifications.Service
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	store Store,
	services Services,
	now func() time.Time,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	var (
		redisP      controllers.Pinger
		limiter     pkgredis.WindowLimiter
		idempotency pkgredis.IdempotencyStore
	)
	if store != nil {
		redisP, limiter, idempotency = store, store, store
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    dbP,
			"redis": redisP,
		}))
	})

	sharePolicy := middleware.NewRateLimitPolicy("share_view", cfg.Share.ViewRateWindow, cfg.Share.ViewRateLimit)
	r.Route("/api/public", func(r chi.Router) {
		r.With(middleware.RateLimit(sharePolicy, limiter, logg)).Get("/shares/{token}", controllers.ShareView(services.Shares, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idempotency, logg))

		r.Route("/wishlist", func(r chi.Router) {
			r.Get("/", controllers.WishlistList(services.Wishlist, logg))
			r.Post("/", controllers.WishlistAdd(services.Wishlist, logg))
			r.Post("/bulk", controllers.WishlistBulkAdd(services.Wishlist, logg))
			r.Post("/bulk/move", controllers.WishlistBulkMove(services.Wishlist, logg))
			r.Get("/analytics", controllers.WishlistAnalytics(services.Wishlist, now, logg))
			r.Post("/shares", controllers.ShareCreate(services.Shares, logg))
			r.Route("/reminders", func(r chi.Router) {
				r.Get("/", controllers.ReminderList(services.Reminders, logg))
				r.Post("/", controllers.ReminderCreate(services.Reminders, logg))
				r.Delete("/{reminderId}", controllers.ReminderCancel(services.Reminders, logg))
			})
			r.Patch("/{productId}", controllers.WishlistUpdate(services.Wishlist, logg))
			r.Delete("/{productId}", controllers.WishlistRemove(services.Wishlist, services.Reminders, logg))
		})

		r.Route("/catalog", func(r chi.Router) {
			r.Post("/snapshot", controllers.CatalogSnapshot(services.Catalog, logg))
			r.Get("/{productId}/history", controllers.CatalogHistory(services.Catalog, logg))
			r.Put("/{productId}", controllers.CatalogUpsert(services.Catalog, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(services.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(services.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(services.Notifications, logg))
		})
	})

	return r
}
