package notifications

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nlenjibi/storefront-wishlist/internal/notify"
	"github.com/nlenjibi/storefront-wishlist/pkg/db/models"
	"github.com/nlenjibi/storefront-wishlist/pkg/enums"
	pkgerrors "github.com/nlenjibi/storefront-wishlist/pkg/errors"
	paginationpkg "github.com/nlenjibi/storefront-wishlist/pkg/pagination"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type fakeRepository struct {
	created       []*models.Notification
	createErr     error
	listFn        func(ctx context.Context, params listNotificationsParams) ([]models.Notification, *paginationpkg.Cursor, error)
	markReadFn    func(ctx context.Context, ownerKey, notificationID string, now time.Time) (notificationMarkResult, error)
	markAllReadFn func(ctx context.Context, ownerKey string, now time.Time) (int64, error)
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository {
	return f
}

func (f *fakeRepository) Create(ctx context.Context, notification *models.Notification) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, notification)
	return nil
}

func (f *fakeRepository) List(ctx context.Context, params listNotificationsParams) ([]models.Notification, *paginationpkg.Cursor, error) {
	if f.listFn != nil {
		return f.listFn(ctx, params)
	}
	return nil, nil, nil
}

func (f *fakeRepository) MarkRead(ctx context.Context, ownerKey, notificationID string, now time.Time) (notificationMarkResult, error) {
	if f.markReadFn != nil {
		return f.markReadFn(ctx, ownerKey, notificationID, now)
	}
	return notificationMarkResult{}, nil
}

func (f *fakeRepository) MarkAllRead(ctx context.Context, ownerKey string, now time.Time) (int64, error) {
	if f.markAllReadFn != nil {
		return f.markAllReadFn(ctx, ownerKey, now)
	}
	return 0, nil
}

func (f *fakeRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func TestListRequiresOwner(t *testing.T) {
	svc, err := NewService(&fakeRepository{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if _, err := svc.List(context.Background(), ListParams{}); pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestListEncodesNextCursor(t *testing.T) {
	created := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	repo := &fakeRepository{
		listFn: func(ctx context.Context, params listNotificationsParams) ([]models.Notification, *paginationpkg.Cursor, error) {
			if params.OwnerKey != "user-1" || !params.UnreadOnly {
				t.Fatalf("unexpected params %+v", params)
			}
			return []models.Notification{{ID: "ntf-1"}}, &paginationpkg.Cursor{CreatedAt: created, ID: "ntf-1"}, nil
		},
	}
	svc, _ := NewService(repo)

	result, err := svc.List(context.Background(), ListParams{OwnerKey: "user-1", UnreadOnly: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(result.Items) != 1 || result.Cursor == "" {
		t.Fatalf("unexpected result %+v", result)
	}
	decoded, err := paginationpkg.ParseCursor(result.Cursor)
	if err != nil || decoded.ID != "ntf-1" {
		t.Fatalf("cursor did not round trip: %+v %v", decoded, err)
	}
}

func TestListRejectsBadCursor(t *testing.T) {
	svc, _ := NewService(&fakeRepository{})
	_, err := svc.List(context.Background(), ListParams{OwnerKey: "user-1", Cursor: "!!"})
	if pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestMarkReadNotFound(t *testing.T) {
	repo := &fakeRepository{
		markReadFn: func(ctx context.Context, ownerKey, notificationID string, now time.Time) (notificationMarkResult, error) {
			return notificationMarkResult{}, nil
		},
	}
	svc, _ := NewService(repo)
	if err := svc.MarkRead(context.Background(), "user-1", "ntf-x"); pkgerrors.CodeOf(err) != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMarkAllReadWrapsRepositoryErrors(t *testing.T) {
	repo := &fakeRepository{
		markAllReadFn: func(ctx context.Context, ownerKey string, now time.Time) (int64, error) {
			return 0, errors.New("db down")
		},
	}
	svc, _ := NewService(repo)
	if _, err := svc.MarkAllRead(context.Background(), "user-1"); pkgerrors.CodeOf(err) != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestRecorderPersistsTransition(t *testing.T) {
	repo := &fakeRepository{}
	svc, _ := NewService(repo)
	recorder := NewRecorder(svc)

	target := decimal.RequireFromString("15")
	err := recorder.Dispatch(context.Background(), "user-1", notify.Transition{
		Kind:           enums.NotificationKindTargetPrice,
		ProductID:      101,
		ProductName:    "Kettle",
		PriceWhenAdded: decimal.RequireFromString("20"),
		CurrentPrice:   decimal.RequireFromString("14.5"),
		TargetPrice:    &target,
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected one notification, got %d", len(repo.created))
	}
	row := repo.created[0]
	if !strings.HasPrefix(row.ID, "ntf-") {
		t.Fatalf("unexpected id %q", row.ID)
	}
	if row.Title != "Target price reached" || !strings.Contains(row.Message, "14.50") || !strings.Contains(row.Message, "15.00") {
		t.Fatalf("unexpected copy %q / %q", row.Title, row.Message)
	}
	if !row.Price.Valid || !row.Price.Decimal.Equal(decimal.RequireFromString("14.5")) {
		t.Fatalf("unexpected price %+v", row.Price)
	}
}

func TestRecordRejectsUnknownKind(t *testing.T) {
	svc, _ := NewService(&fakeRepository{})
	_, err := svc.Record(context.Background(), RecordInput{OwnerKey: "user-1", Kind: "bogus"})
	if pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}
