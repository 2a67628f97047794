package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/nlenjibi/storefront-wishlist/api/routes"
	"github.com/nlenjibi/storefront-wishlist/internal/catalog"
	"github.com/nlenjibi/storefront-wishlist/internal/notifications"
	"github.com/nlenjibi/storefront-wishlist/internal/notify"
	"github.com/nlenjibi/storefront-wishlist/internal/reminders"
	"github.com/nlenjibi/storefront-wishlist/internal/share"
	"github.com/nlenjibi/storefront-wishlist/internal/wishlist"
	"github.com/nlenjibi/storefront-wishlist/pkg/config"
	"github.com/nlenjibi/storefront-wishlist/pkg/db"
	"github.com/nlenjibi/storefront-wishlist/pkg/env"
	"github.com/nlenjibi/storefront-wishlist/pkg/instance"
	"github.com/nlenjibi/storefront-wishlist/pkg/logger"
	"github.com/nlenjibi/storefront-wishlist/pkg/migrate"
	"github.com/nlenjibi/storefront-wishlist/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		FilePath:    cfg.App.LogFile,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	services, err := buildServices(cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to build services", err)
		os.Exit(1)
	}

	addr := ":" + env.Get("PORT", cfg.App.Port)
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, dbClient, redisClient, services, time.Now),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "api server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}
}

func buildServices(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (routes.Services, error) {
	gdb := dbClient.DB()

	catalogSvc, err := catalog.NewService(catalog.ServiceParams{Repo: catalog.NewRepository(gdb)})
	if err != nil {
		return routes.Services{}, err
	}
	wishlistSvc, err := wishlist.NewService(wishlist.ServiceParams{
		Repo:      wishlist.NewRepository(gdb),
		Catalog:   catalogSvc,
		Recompute: notify.Recompute,
	})
	if err != nil {
		return routes.Services{}, err
	}
	reminderSvc, err := reminders.NewService(reminders.ServiceParams{Repo: reminders.NewRepository(gdb), Items: wishlistSvc})
	if err != nil {
		return routes.Services{}, err
	}
	shareSvc, err := share.NewService(share.ServiceParams{
		Repo:   share.NewRepository(gdb),
		Items:  wishlistSvc,
		Cache:  redisClient,
		JWT:    cfg.JWT,
		Config: cfg.Share,
		Logger: logg,
	})
	if err != nil {
		return routes.Services{}, err
	}
	notificationSvc, err := notifications.NewService(notifications.NewRepository(gdb))
	if err != nil {
		return routes.Services{}, err
	}

	return routes.Services{
		Wishlist:      wishlistSvc,
		Catalog:       catalogSvc,
		Reminders:     reminderSvc,
		Shares:        shareSvc,
		Notifications: notificationSvc,
	}, nil
}
