package cron

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nlenjibi/storefront-wishlist/internal/notify"
	"github.com/nlenjibi/storefront-wishlist/internal/reminders"
	"github.com/nlenjibi/storefront-wishlist/internal/wishlist"
	"github.com/nlenjibi/storefront-wishlist/pkg/enums"
	pkgerrors "github.com/nlenjibi/storefront-wishlist/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

type fakeWishlist struct {
	mu      sync.Mutex
	items   map[string][]wishlist.Item
	listErr map[string]error
	saved   map[string][]wishlist.Item
}

func (f *fakeWishlist) ListOwners(context.Context) ([]string, error) {
	owners := make([]string, 0, len(f.items))
	for owner := range f.items {
		owners = append(owners, owner)
	}
	return owners, nil
}

func (f *fakeWishlist) List(_ context.Context, owner string) ([]wishlist.Item, error) {
	if err := f.listErr[owner]; err != nil {
		return nil, err
	}
	return f.items[owner], nil
}

func (f *fakeWishlist) Get(_ context.Context, owner string, productID int64) (wishlist.Item, error) {
	for _, item := range f.items[owner] {
		if item.ProductID == productID {
			return item, nil
		}
	}
	return wishlist.Item{}, pkgerrors.New(pkgerrors.CodeNotFound, "wishlist item not found")
}

func (f *fakeWishlist) Save(_ context.Context, owner string, item wishlist.Item) (wishlist.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = map[string][]wishlist.Item{}
	}
	f.saved[owner] = append(f.saved[owner], item)
	return item, nil
}

type fakeCatalog map[int64]wishlist.CatalogSnapshot

func (c fakeCatalog) Snapshot(_ context.Context, ids []int64) (map[int64]wishlist.CatalogSnapshot, error) {
	out := map[int64]wishlist.CatalogSnapshot{}
	for _, id := range ids {
		if snap, ok := c[id]; ok {
			out[id] = snap
		}
	}
	return out, nil
}

type sent struct {
	owner      string
	transition notify.Transition
}

type captureDispatcher struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (d *captureDispatcher) Dispatch(_ context.Context, owner string, transition notify.Transition) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, sent{owner: owner, transition: transition})
	return nil
}

func watchedItem(id int64, added int64) wishlist.Item {
	return wishlist.Item{
		ProductID:         id,
		PriceWhenAdded:    decimal.NewFromInt(added),
		CurrentPrice:      decimal.NewFromInt(added),
		Priority:          enums.PriorityMedium,
		DesiredQuantity:   1,
		NotifyOnPriceDrop: true,
		NotifyOnStock:     true,
		InStock:           true,
	}
}

func TestPriceWatchSavesChangesAndDispatchesTransitions(t *testing.T) {
	wl := &fakeWishlist{items: map[string][]wishlist.Item{
		"user:a": {watchedItem(1, 100), watchedItem(2, 50)},
		"user:b": {watchedItem(1, 80)},
	}}
	catalog := fakeCatalog{
		1: {ProductID: 1, Price: decimal.NewFromInt(90), InStock: true},
		2: {ProductID: 2, Price: decimal.NewFromInt(50), InStock: true},
	}
	dispatcher := &captureDispatcher{}
	job, err := NewPriceWatchJob(PriceWatchJobParams{
		Logger:     testLogger(),
		Wishlist:   wl,
		Catalog:    catalog,
		Dispatcher: dispatcher,
		Workers:    2,
	})
	if err != nil {
		t.Fatalf("NewPriceWatchJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(wl.saved["user:a"]) != 1 || wl.saved["user:a"][0].ProductID != 1 {
		t.Fatalf("expected only product 1 saved for user:a, got %+v", wl.saved["user:a"])
	}
	if len(wl.saved["user:b"]) != 1 {
		t.Fatalf("expected price rise saved for user:b, got %+v", wl.saved["user:b"])
	}
	if len(dispatcher.sent) != 1 {
		t.Fatalf("expected one price drop, got %+v", dispatcher.sent)
	}
	got := dispatcher.sent[0]
	if got.owner != "user:a" || got.transition.Kind != enums.NotificationKindPriceDrop {
		t.Fatalf("unexpected dispatch %+v", got)
	}
}

func TestPriceWatchKeepsGoingWhenAnOwnerFails(t *testing.T) {
	wl := &fakeWishlist{
		items: map[string][]wishlist.Item{
			"user:a": {watchedItem(1, 100)},
			"user:b": {watchedItem(1, 100)},
		},
		listErr: map[string]error{"user:a": errors.New("db down")},
	}
	catalog := fakeCatalog{1: {ProductID: 1, Price: decimal.NewFromInt(70), InStock: true}}
	dispatcher := &captureDispatcher{}
	job, _ := NewPriceWatchJob(PriceWatchJobParams{Logger: testLogger(), Wishlist: wl, Catalog: catalog, Dispatcher: dispatcher})

	err := job.Run(context.Background())
	if err == nil || len(multierr.Errors(err)) != 1 {
		t.Fatalf("expected a single owner failure, got %v", err)
	}
	if len(wl.saved["user:b"]) != 1 || len(dispatcher.sent) != 1 {
		t.Fatalf("expected user:b refreshed, saved=%v sent=%v", wl.saved, dispatcher.sent)
	}
}

func TestPriceWatchRequiresCollaborators(t *testing.T) {
	if _, err := NewPriceWatchJob(PriceWatchJobParams{Logger: testLogger()}); err == nil {
		t.Fatal("expected error without wishlist")
	}
}

type fakeReminders struct {
	due       []reminders.Reminder
	sent      []string
	cancelled []int64
	markErr   error
}

func (f *fakeReminders) DueReminders(context.Context, time.Time, int) ([]reminders.Reminder, error) {
	return f.due, nil
}

func (f *fakeReminders) MarkSent(_ context.Context, r reminders.Reminder, _ time.Time) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.sent = append(f.sent, r.ID)
	return nil
}

func (f *fakeReminders) CancelForProduct(_ context.Context, _ string, productID int64) error {
	f.cancelled = append(f.cancelled, productID)
	return nil
}

func TestReminderJobDispatchesAndMarksSent(t *testing.T) {
	wl := &fakeWishlist{items: map[string][]wishlist.Item{"user:a": {watchedItem(1, 10)}}}
	rem := &fakeReminders{due: []reminders.Reminder{
		{ID: "rem_1", OwnerKey: "user:a", ProductID: 1, Type: enums.ReminderType24h},
		{ID: "rem_2", OwnerKey: "user:a", ProductID: 9, Type: enums.ReminderTypeWeekly},
	}}
	dispatcher := &captureDispatcher{}
	job, err := NewReminderJob(ReminderJobParams{Logger: testLogger(), Reminders: rem, Wishlist: wl, Dispatcher: dispatcher})
	if err != nil {
		t.Fatalf("NewReminderJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rem.sent) != 1 || rem.sent[0] != "rem_1" {
		t.Fatalf("expected rem_1 marked sent, got %v", rem.sent)
	}
	if len(rem.cancelled) != 1 || rem.cancelled[0] != 9 {
		t.Fatalf("expected reminder for removed product cancelled, got %v", rem.cancelled)
	}
	if len(dispatcher.sent) != 1 || dispatcher.sent[0].transition.Kind != enums.NotificationKindReminder {
		t.Fatalf("expected one reminder dispatched, got %+v", dispatcher.sent)
	}
}

func TestReminderJobLeavesReminderDueWhenDispatchFails(t *testing.T) {
	wl := &fakeWishlist{items: map[string][]wishlist.Item{"user:a": {watchedItem(1, 10)}}}
	rem := &fakeReminders{due: []reminders.Reminder{{ID: "rem_1", OwnerKey: "user:a", ProductID: 1}}}
	job, _ := NewReminderJob(ReminderJobParams{
		Logger:     testLogger(),
		Reminders:  rem,
		Wishlist:   wl,
		Dispatcher: &captureDispatcher{err: errors.New("topic unavailable")},
	})
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected dispatch error")
	}
	if len(rem.sent) != 0 {
		t.Fatalf("expected reminder left due, got %v", rem.sent)
	}
}

type fakeShares struct {
	deleted int
	err     error
}

func (f *fakeShares) DeleteExpired(context.Context) (int, error) { return f.deleted, f.err }

func TestShareRetentionJob(t *testing.T) {
	job, err := NewShareRetentionJob(ShareRetentionJobParams{Logger: testLogger(), Shares: &fakeShares{deleted: 3}})
	if err != nil {
		t.Fatalf("NewShareRetentionJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	job, _ = NewShareRetentionJob(ShareRetentionJobParams{Logger: testLogger(), Shares: &fakeShares{err: errors.New("boom")}})
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
