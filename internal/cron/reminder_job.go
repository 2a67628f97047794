package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/nlenjibi/storefront-wishlist/internal/notify"
	"github.com/nlenjibi/storefront-wishlist/internal/reminders"
	"github.com/nlenjibi/storefront-wishlist/internal/wishlist"
	pkgerrors "github.com/nlenjibi/storefront-wishlist/pkg/errors"
	"github.com/nlenjibi/storefront-wishlist/pkg/logger"
	"go.uber.org/multierr"
)

const defaultReminderBatch = 200

type ReminderJobParams struct {
	Logger     *logger.Logger
	Reminders  reminderSource
	Wishlist   reminderItems
	Dispatcher notify.Dispatcher
	BatchSize  int
}

type reminderSource interface {
	DueReminders(ctx context.Context, now time.Time, limit int) ([]reminders.Reminder, error)
	MarkSent(ctx context.Context, reminder reminders.Reminder, sentAt time.Time) error
	CancelForProduct(ctx context.Context, ownerKey string, productID int64) error
}

type reminderItems interface {
	Get(ctx context.Context, ownerKey string, productID int64) (wishlist.Item, error)
}

func NewReminderJob(params ReminderJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reminders == nil {
		return nil, fmt.Errorf("reminders service required")
	}
	if params.Wishlist == nil {
		return nil, fmt.Errorf("wishlist service required")
	}
	if params.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultReminderBatch
	}
	return &reminderJob{
		logg:       params.Logger,
		reminders:  params.Reminders,
		wishlist:   params.Wishlist,
		dispatcher: params.Dispatcher,
		batch:      batch,
		now:        time.Now,
	}, nil
}

type reminderJob struct {
	logg       *logger.Logger
	reminders  reminderSource
	wishlist   reminderItems
	dispatcher notify.Dispatcher
	batch      int
	now        func() time.Time
}

func (j *reminderJob) Name() string { return JobReminders }

// Run sends every due reminder once. A reminder whose product left the
// wishlist is cancelled; a failed dispatch stays due for the next cycle.
func (j *reminderJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	due, err := j.reminders.DueReminders(ctx, now, j.batch)
	if err != nil {
		return fmt.Errorf("load due reminders: %w", err)
	}

	var errs error
	sent, cancelled := 0, 0
	for _, reminder := range due {
		item, err := j.wishlist.Get(ctx, reminder.OwnerKey, reminder.ProductID)
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			if err := j.reminders.CancelForProduct(ctx, reminder.OwnerKey, reminder.ProductID); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("cancel reminder %s: %w", reminder.ID, err))
				continue
			}
			cancelled++
			continue
		}
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("load item for reminder %s: %w", reminder.ID, err))
			continue
		}
		if err := j.dispatcher.Dispatch(ctx, reminder.OwnerKey, notify.ReminderFor(item)); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("dispatch reminder %s: %w", reminder.ID, err))
			continue
		}
		if err := j.reminders.MarkSent(ctx, reminder, now); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("mark reminder %s sent: %w", reminder.ID, err))
			continue
		}
		sent++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"due":       len(due),
		"sent":      sent,
		"cancelled": cancelled,
	})
	j.logg.Info(logCtx, "wishlist reminders processed")
	return errs
}
