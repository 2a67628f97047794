package reminders

import (
	"context"
	"errors"
	"time"

	"github.com/nlenjibi/storefront-wishlist/internal/wishlist"
	"github.com/nlenjibi/storefront-wishlist/pkg/db"
	"github.com/nlenjibi/storefront-wishlist/pkg/db/models"
	"github.com/nlenjibi/storefront-wishlist/pkg/enums"
	pkgerrors "github.com/nlenjibi/storefront-wishlist/pkg/errors"
	"github.com/nlenjibi/storefront-wishlist/pkg/id"
	"gorm.io/gorm"
)

// Reminder is the API view of a scheduled reminder.
type Reminder struct {
	ID         string             `json:"id"`
	OwnerKey   string             `json:"-"`
	ProductID  int64              `json:"productId"`
	Type       enums.ReminderType `json:"type"`
	DueAt      time.Time          `json:"dueAt"`
	LastSentAt *time.Time         `json:"lastSentAt,omitempty"`
	CreatedAt  time.Time          `json:"createdAt"`
}

// CreateRequest is the body of POST /wishlist/reminders.
type CreateRequest struct {
	ProductID int64              `json:"productId" validate:"required,gt=0"`
	Type      enums.ReminderType `json:"type" validate:"required"`
}

// Items is the wishlist lookup reminders need.
type Items interface {
	Get(ctx context.Context, ownerKey string, productID int64) (wishlist.Item, error)
}

// ServiceParams groups reminder dependencies.
type ServiceParams struct {
	Repo  *Repository
	Items Items
	Now   func() time.Time
}

// Service manages wishlist reminders.
type Service interface {
	Create(ctx context.Context, ownerKey string, req CreateRequest) (Reminder, error)
	Cancel(ctx context.Context, ownerKey, reminderID string) error
	List(ctx context.Context, ownerKey string) ([]Reminder, error)
	DueReminders(ctx context.Context, now time.Time, limit int) ([]Reminder, error)
	MarkSent(ctx context.Context, reminder Reminder, sentAt time.Time) error
	CancelForProduct(ctx context.Context, ownerKey string, productID int64) error
}

type service struct {
	repo  *Repository
	items Items
	now   func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reminders repo is required")
	}
	if params.Items == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wishlist lookup is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{repo: params.Repo, items: params.Items, now: now}, nil
}

// Create schedules a reminder for an item on the owner's wishlist. A second
// pending reminder of the same type for the same product is a conflict.
func (s *service) Create(ctx context.Context, ownerKey string, req CreateRequest) (Reminder, error) {
	if ownerKey == "" {
		return Reminder{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "owner is required")
	}
	if req.ProductID <= 0 {
		return Reminder{}, pkgerrors.New(pkgerrors.CodeValidation, "product id must be positive")
	}
	if !req.Type.IsValid() {
		return Reminder{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown reminder type")
	}
	if _, err := s.items.Get(ctx, ownerKey, req.ProductID); err != nil {
		return Reminder{}, err
	}

	_, err := s.repo.FindActive(ctx, ownerKey, req.ProductID, req.Type)
	switch {
	case err == nil:
		return Reminder{}, pkgerrors.New(pkgerrors.CodeConflict, "reminder already scheduled")
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return Reminder{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reminders")
	}

	reminderID, err := id.Generate(id.PrefixReminder)
	if err != nil {
		return Reminder{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate reminder id")
	}
	now := s.now().UTC()
	row := models.Reminder{
		ID:        reminderID,
		OwnerKey:  ownerKey,
		ProductID: req.ProductID,
		Type:      req.Type,
		DueAt:     now.Add(req.Type.Delay()),
		CreatedAt: now,
	}
	if err := s.repo.Create(ctx, &row); err != nil {
		// A concurrent create won the race past FindActive.
		if db.IsUniqueViolation(err, db.ConstraintActiveReminder) {
			return Reminder{}, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "reminder already scheduled")
		}
		return Reminder{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create reminder")
	}
	return toReminder(row), nil
}

func (s *service) Cancel(ctx context.Context, ownerKey, reminderID string) error {
	if ownerKey == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "owner is required")
	}
	if _, err := s.repo.FindByID(ctx, ownerKey, reminderID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "reminder not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reminder")
	}
	if _, err := s.repo.Cancel(ctx, ownerKey, reminderID, s.now().UTC()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel reminder")
	}
	return nil
}

// CancelForProduct drops the pending reminders of an item leaving the wishlist.
func (s *service) CancelForProduct(ctx context.Context, ownerKey string, productID int64) error {
	if _, err := s.repo.CancelForProduct(ctx, ownerKey, productID, s.now().UTC()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel product reminders")
	}
	return nil
}

func (s *service) List(ctx context.Context, ownerKey string) ([]Reminder, error) {
	if ownerKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "owner is required")
	}
	rows, err := s.repo.ListActive(ctx, ownerKey)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list reminders")
	}
	return toReminders(rows), nil
}

func (s *service) DueReminders(ctx context.Context, now time.Time, limit int) ([]Reminder, error) {
	rows, err := s.repo.ListDue(ctx, now.UTC(), limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list due reminders")
	}
	return toReminders(rows), nil
}

// MarkSent records a delivery. Weekly reminders move to the next week after
// sentAt; every other type completes.
func (s *service) MarkSent(ctx context.Context, reminder Reminder, sentAt time.Time) error {
	sentAt = sentAt.UTC()
	row := models.Reminder{ID: reminder.ID, DueAt: reminder.DueAt, LastSentAt: &sentAt}
	if reminder.Type == enums.ReminderTypeWeekly {
		row.DueAt = NextWeeklyDue(reminder.DueAt, sentAt)
	} else {
		row.CompletedAt = &sentAt
	}
	if err := s.repo.UpdateSchedule(ctx, row); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update reminder")
	}
	return nil
}

// NextWeeklyDue advances due in whole weeks until it is after now.
func NextWeeklyDue(due, now time.Time) time.Time {
	week := enums.ReminderTypeWeekly.Delay()
	next := due
	for !next.After(now) {
		next = next.Add(week)
	}
	return next
}

func toReminders(rows []models.Reminder) []Reminder {
	out := make([]Reminder, 0, len(rows))
	for _, row := range rows {
		out = append(out, toReminder(row))
	}
	return out
}

func toReminder(row models.Reminder) Reminder {
	r := Reminder{
		ID:        row.ID,
		OwnerKey:  row.OwnerKey,
		ProductID: row.ProductID,
		Type:      row.Type,
		DueAt:     row.DueAt.UTC(),
		CreatedAt: row.CreatedAt.UTC(),
	}
	if row.LastSentAt != nil {
		v := row.LastSentAt.UTC()
		r.LastSentAt = &v
	}
	return r
}
