package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nlenjibi/storefront-wishlist/internal/catalog"
	"github.com/nlenjibi/storefront-wishlist/internal/cron"
	"github.com/nlenjibi/storefront-wishlist/internal/notifications"
	"github.com/nlenjibi/storefront-wishlist/internal/notify"
	"github.com/nlenjibi/storefront-wishlist/internal/reminders"
	"github.com/nlenjibi/storefront-wishlist/internal/share"
	"github.com/nlenjibi/storefront-wishlist/internal/wishlist"
	"github.com/nlenjibi/storefront-wishlist/pkg/bigquery"
	"github.com/nlenjibi/storefront-wishlist/pkg/config"
	"github.com/nlenjibi/storefront-wishlist/pkg/db"
	"github.com/nlenjibi/storefront-wishlist/pkg/logger"
	"github.com/nlenjibi/storefront-wishlist/pkg/metrics"
	"github.com/nlenjibi/storefront-wishlist/pkg/migrate"
	"github.com/nlenjibi/storefront-wishlist/pkg/pubsub"
	"github.com/nlenjibi/storefront-wishlist/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	var pubsubClient *pubsub.Client
	if cfg.FeatureFlags.PubSubAlert {
		pubsubClient, err = pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()
	}

	var bqClient *bigquery.Client
	if cfg.FeatureFlags.BigQueryAlerts {
		bqClient, err = bigquery.NewClient(context.Background(), cfg.GCP, cfg.BigQuery, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap bigquery", err)
			os.Exit(1)
		}
		defer func() {
			if err := bqClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing bigquery", err)
			}
		}()
	}

	registry, err := buildRegistry(cfg, logg, dbClient, redisClient, sinks{pubsub: pubsubClient, bigquery: bqClient})
	if err != nil {
		logg.Error(context.Background(), "failed to build cron jobs", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	locker, err := cron.NewRedisLocker(redisClient, cfg.App.Env, cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create job locker", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Locker:   locker,
		Metrics:  metricsCollector,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

// sinks are the optional external alert destinations.
type sinks struct {
	pubsub   *pubsub.Client
	bigquery *bigquery.Client
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, out sinks) (*cron.Registry, error) {
	gdb := dbClient.DB()

	catalogSvc, err := catalog.NewService(catalog.ServiceParams{Repo: catalog.NewRepository(gdb)})
	if err != nil {
		return nil, fmt.Errorf("catalog service: %w", err)
	}
	wishlistSvc, err := wishlist.NewService(wishlist.ServiceParams{
		Repo:      wishlist.NewRepository(gdb),
		Catalog:   catalogSvc,
		Recompute: notify.Recompute,
	})
	if err != nil {
		return nil, fmt.Errorf("wishlist service: %w", err)
	}
	notificationRepo := notifications.NewRepository(gdb)
	notificationSvc, err := notifications.NewService(notificationRepo)
	if err != nil {
		return nil, fmt.Errorf("notification service: %w", err)
	}
	reminderSvc, err := reminders.NewService(reminders.ServiceParams{Repo: reminders.NewRepository(gdb), Items: wishlistSvc})
	if err != nil {
		return nil, fmt.Errorf("reminder service: %w", err)
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
		return nil, fmt.Errorf("share service: %w", err)
	}

	dispatcher := notify.MultiDispatcher{
		notifications.NewRecorder(notificationSvc),
		notify.NewLogDispatcher(logg),
	}
	if out.pubsub != nil {
		pubsubDispatcher, err := notify.NewPubSubDispatcher(out.pubsub, out.pubsub.NotificationTopic())
		if err != nil {
			return nil, fmt.Errorf("pubsub dispatcher: %w", err)
		}
		dispatcher = append(dispatcher, pubsubDispatcher)
	}
	if out.bigquery != nil {
		bqDispatcher, err := notify.NewBigQueryDispatcher(out.bigquery, out.bigquery.AlertsTable())
		if err != nil {
			return nil, fmt.Errorf("bigquery dispatcher: %w", err)
		}
		dispatcher = append(dispatcher, bqDispatcher)
	}

	priceWatch, err := cron.NewPriceWatchJob(cron.PriceWatchJobParams{
		Logger:     logg,
		Wishlist:   wishlistSvc,
		Catalog:    catalogSvc,
		Dispatcher: dispatcher,
		Workers:    cfg.Cron.PriceWatchWorker,
	})
	if err != nil {
		return nil, err
	}
	reminderJob, err := cron.NewReminderJob(cron.ReminderJobParams{
		Logger:     logg,
		Reminders:  reminderSvc,
		Wishlist:   wishlistSvc,
		Dispatcher: dispatcher,
	})
	if err != nil {
		return nil, err
	}
	shareRetention, err := cron.NewShareRetentionJob(cron.ShareRetentionJobParams{Logger: logg, Shares: shareSvc})
	if err != nil {
		return nil, err
	}
	notificationCleanup, err := cron.NewNotificationCleanupJob(cron.NotificationCleanupJobParams{
		Logger:     logg,
		Repository: notificationRepo,
		Retention:  cfg.Cron.NotificationTTL,
	})
	if err != nil {
		return nil, err
	}

	return cron.NewRegistry(priceWatch, reminderJob, shareRetention, notificationCleanup)
}
