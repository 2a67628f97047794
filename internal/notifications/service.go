package notifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nlenjibi/storefront-wishlist/internal/notify"
	"github.com/nlenjibi/storefront-wishlist/pkg/db/models"
	"github.com/nlenjibi/storefront-wishlist/pkg/enums"
	pkgerrors "github.com/nlenjibi/storefront-wishlist/pkg/errors"
	"github.com/nlenjibi/storefront-wishlist/pkg/id"
	"github.com/nlenjibi/storefront-wishlist/pkg/pagination"
	"github.com/shopspring/decimal"
)

// Service defines notification list/read operations.
type Service interface {
	List(ctx context.Context, params ListParams) (*ListResult, error)
	MarkRead(ctx context.Context, ownerKey, notificationID string) error
	MarkAllRead(ctx context.Context, ownerKey string) (int64, error)
	Record(ctx context.Context, input RecordInput) (*models.Notification, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

// ListParams configures pagination for notifications.
type ListParams struct {
	OwnerKey   string
	Limit      int
	Cursor     string
	UnreadOnly bool
}

// ListResult wraps returned notifications and the cursor for the next page.
type ListResult struct {
	Items  []models.Notification `json:"items"`
	Cursor string                `json:"cursor"`
}

// RecordInput describes a notification to persist.
type RecordInput struct {
	OwnerKey  string
	ProductID int64
	Kind      enums.NotificationKind
	Title     string
	Message   string
	Price     *decimal.Decimal
}

// NewService wires notifications dependencies.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.OwnerKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner required")
	}

	query := listNotificationsParams{
		OwnerKey:   params.OwnerKey,
		Limit:      params.Limit,
		UnreadOnly: params.UnreadOnly,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	if rows == nil {
		rows = []models.Notification{}
	}

	return &ListResult{
		Items:  rows,
		Cursor: cursor,
	}, nil
}

func (s *service) MarkRead(ctx context.Context, ownerKey, notificationID string) error {
	if ownerKey == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "owner required")
	}
	if strings.TrimSpace(notificationID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	result, err := s.repo.MarkRead(ctx, ownerKey, notificationID, s.now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if !result.Found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, ownerKey string) (int64, error) {
	if ownerKey == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "owner required")
	}

	count, err := s.repo.MarkAllRead(ctx, ownerKey, s.now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return count, nil
}

func (s *service) Record(ctx context.Context, input RecordInput) (*models.Notification, error) {
	if input.OwnerKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner required")
	}
	if !input.Kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown notification kind")
	}
	notificationID, err := id.Generate(id.PrefixNotice)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate notification id")
	}
	row := &models.Notification{
		ID:        notificationID,
		OwnerKey:  input.OwnerKey,
		ProductID: input.ProductID,
		Kind:      input.Kind,
		Title:     input.Title,
		Message:   input.Message,
		CreatedAt: s.now().UTC(),
	}
	if input.Price != nil {
		row.Price = decimal.NullDecimal{Decimal: *input.Price, Valid: true}
	}
	if err := s.repo.Create(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create notification")
	}
	return row, nil
}

// Recorder persists every dispatched transition as an in-app notification.
type Recorder struct {
	svc Service
}

func NewRecorder(svc Service) *Recorder {
	return &Recorder{svc: svc}
}

func (r *Recorder) Dispatch(ctx context.Context, ownerKey string, transition notify.Transition) error {
	title, message := describe(transition)
	price := transition.CurrentPrice
	_, err := r.svc.Record(ctx, RecordInput{
		OwnerKey:  ownerKey,
		ProductID: transition.ProductID,
		Kind:      transition.Kind,
		Title:     title,
		Message:   message,
		Price:     &price,
	})
	return err
}

func describe(t notify.Transition) (string, string) {
	name := t.ProductName
	if name == "" {
		name = fmt.Sprintf("Product %d", t.ProductID)
	}
	switch t.Kind {
	case enums.NotificationKindPriceDrop:
		return "Price drop", fmt.Sprintf("%s dropped from %s to %s", name, t.PriceWhenAdded.StringFixed(2), t.CurrentPrice.StringFixed(2))
	case enums.NotificationKindTargetPrice:
		target := t.CurrentPrice
		if t.TargetPrice != nil {
			target = *t.TargetPrice
		}
		return "Target price reached", fmt.Sprintf("%s is now %s (target %s)", name, t.CurrentPrice.StringFixed(2), target.StringFixed(2))
	case enums.NotificationKindBackInStock:
		return "Back in stock", fmt.Sprintf("%s is back in stock", name)
	case enums.NotificationKindReminder:
		return "Wishlist reminder", fmt.Sprintf("Still thinking about %s? It is %s right now", name, t.CurrentPrice.StringFixed(2))
	default:
		return "Wishlist update", name
	}
}
