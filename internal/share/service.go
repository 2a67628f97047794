package share

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nlenjibi/storefront-wishlist/internal/wishlist"
	"github.com/nlenjibi/storefront-wishlist/pkg/auth"
	"github.com/nlenjibi/storefront-wishlist/pkg/config"
	"github.com/nlenjibi/storefront-wishlist/pkg/db/models"
	"github.com/nlenjibi/storefront-wishlist/pkg/enums"
	pkgerrors "github.com/nlenjibi/storefront-wishlist/pkg/errors"
	"github.com/nlenjibi/storefront-wishlist/pkg/id"
	"github.com/nlenjibi/storefront-wishlist/pkg/logger"
	pkgredis "github.com/nlenjibi/storefront-wishlist/pkg/redis"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const defaultTitle = "My wishlist"

// CreateRequest is the body of POST /wishlist/shares.
type CreateRequest struct {
	Title string `json:"title" validate:"max=120"`
}

// Link is returned to the owner after a share is created.
type Link struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SharedItem is the read-only projection of an item inside a share.
type SharedItem struct {
	ProductID       int64           `json:"productId"`
	Name            string          `json:"name,omitempty"`
	Category        string          `json:"category,omitempty"`
	CurrentPrice    decimal.Decimal `json:"currentPrice"`
	Priority        enums.Priority  `json:"priority"`
	DesiredQuantity int             `json:"desiredQuantity"`
	Notes           string          `json:"notes,omitempty"`
	Tags            []string        `json:"tags,omitempty"`
	CollectionName  *string         `json:"collectionName,omitempty"`
	InStock         bool            `json:"inStock"`
}

// Snapshot is the public view of a share.
type Snapshot struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	CreatedAt time.Time    `json:"createdAt"`
	ExpiresAt time.Time    `json:"expiresAt"`
	Items     []SharedItem `json:"items"`
}

// Items is the wishlist read the share service needs.
type Items interface {
	List(ctx context.Context, ownerKey string) ([]wishlist.Item, error)
}

type viewCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	ShareViewKey(shareID string) string
}

// ServiceParams groups share dependencies.
type ServiceParams struct {
	Repo   *Repository
	Items  Items
	Cache  viewCache
	JWT    config.JWTConfig
	Config config.ShareConfig
	Logger *logger.Logger
	Now    func() time.Time
}

// Service creates and resolves wishlist shares.
type Service interface {
	Create(ctx context.Context, ownerKey string, req CreateRequest) (Link, error)
	Get(ctx context.Context, token string) (Snapshot, error)
	DeleteExpired(ctx context.Context) (int, error)
}

type service struct {
	repo  *Repository
	items Items
	cache viewCache
	jwt   config.JWTConfig
	cfg   config.ShareConfig
	logg  *logger.Logger
	now   func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "share repo is required")
	}
	if params.Items == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wishlist reader is required")
	}
	if params.JWT.Secret == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "jwt secret is required")
	}
	if params.Config.TTL <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "share ttl must be positive")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:  params.Repo,
		items: params.Items,
		cache: params.Cache,
		jwt:   params.JWT,
		cfg:   params.Config,
		logg:  params.Logger,
		now:   now,
	}, nil
}

// Create stores a point-in-time copy of the owner's wishlist and returns a
// signed link to it. Later wishlist edits never change an existing share.
func (s *service) Create(ctx context.Context, ownerKey string, req CreateRequest) (Link, error) {
	if ownerKey == "" {
		return Link{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "sharing requires an account")
	}
	items, err := s.items.List(ctx, ownerKey)
	if err != nil {
		return Link{}, err
	}

	shareID, err := id.Generate(id.PrefixShare)
	if err != nil {
		return Link{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate share id")
	}
	now := s.now().UTC()
	expiresAt := now.Add(s.cfg.TTL)
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = defaultTitle
	}

	shared := make([]SharedItem, 0, len(items))
	for _, item := range items {
		shared = append(shared, toShared(item))
	}
	payload, err := json.Marshal(shared)
	if err != nil {
		return Link{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode share payload")
	}

	row := models.ShareSnapshot{
		ID:        shareID,
		OwnerKey:  ownerKey,
		Title:     title,
		ItemCount: len(shared),
		Payload:   payload,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}
	if err := s.repo.Create(ctx, &row); err != nil {
		return Link{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store share snapshot")
	}

	token, err := auth.MintShareToken(s.jwt, now, shareID, expiresAt)
	if err != nil {
		return Link{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sign share token")
	}
	return Link{
		ID:        shareID,
		Token:     token,
		URL:       shareURL(s.cfg.PublicURL, token),
		ExpiresAt: expiresAt,
	}, nil
}

// Get resolves a share token into its snapshot, reading through the view cache.
func (s *service) Get(ctx context.Context, token string) (Snapshot, error) {
	claims, err := auth.ParseShareToken(s.jwt, strings.TrimSpace(token))
	if err != nil {
		return Snapshot{}, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "share link is invalid or expired")
	}
	shareID := claims.ShareID

	if cached, ok := s.readCache(ctx, shareID); ok {
		return cached, nil
	}

	row, err := s.repo.FindByID(ctx, shareID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Snapshot{}, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "share not found")
		}
		return Snapshot{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load share snapshot")
	}
	now := s.now().UTC()
	if !row.ExpiresAt.After(now) {
		return Snapshot{}, pkgerrors.New(pkgerrors.CodeNotFound, "share link is invalid or expired")
	}

	snapshot := Snapshot{
		ID:        row.ID,
		Title:     row.Title,
		CreatedAt: row.CreatedAt.UTC(),
		ExpiresAt: row.ExpiresAt.UTC(),
		Items:     []SharedItem{},
	}
	if len(row.Payload) > 0 {
		if err := json.Unmarshal(row.Payload, &snapshot.Items); err != nil {
			return Snapshot{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode share payload")
		}
	}
	s.writeCache(ctx, snapshot, row.ExpiresAt.Sub(now))
	return snapshot, nil
}

// DeleteExpired drops expired snapshots and their cached views.
func (s *service) DeleteExpired(ctx context.Context) (int, error) {
	ids, err := s.repo.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete expired shares")
	}
	if s.cache != nil && len(ids) > 0 {
		keys := make([]string, 0, len(ids))
		for _, shareID := range ids {
			keys = append(keys, s.cache.ShareViewKey(shareID))
		}
		if err := s.cache.Del(ctx, keys...); err != nil {
			s.warn(ctx, "share view cache eviction failed", err)
		}
	}
	return len(ids), nil
}

func (s *service) readCache(ctx context.Context, shareID string) (Snapshot, bool) {
	if s.cache == nil {
		return Snapshot{}, false
	}
	raw, err := s.cache.Get(ctx, s.cache.ShareViewKey(shareID))
	if err != nil {
		if !pkgredis.IsMiss(err) {
			s.warn(ctx, "share view cache read failed", err)
		}
		return Snapshot{}, false
	}
	var snapshot Snapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		s.warn(ctx, "share view cache entry is corrupt", err)
		return Snapshot{}, false
	}
	if !snapshot.ExpiresAt.After(s.now()) {
		return Snapshot{}, false
	}
	return snapshot, true
}

func (s *service) writeCache(ctx context.Context, snapshot Snapshot, remaining time.Duration) {
	if s.cache == nil || s.cfg.ViewCacheTTL <= 0 {
		return
	}
	ttl := s.cfg.ViewCacheTTL
	if remaining < ttl {
		ttl = remaining
	}
	if ttl <= 0 {
		return
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, s.cache.ShareViewKey(snapshot.ID), string(data), ttl); err != nil {
		s.warn(ctx, "share view cache write failed", err)
	}
}

func (s *service) warn(ctx context.Context, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), msg)
}

func shareURL(base, token string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return fmt.Sprintf("/api/public/shares/%s", token)
	}
	return fmt.Sprintf("%s/%s", base, token)
}

func toShared(item wishlist.Item) SharedItem {
	c := item.Clone()
	return SharedItem{
		ProductID:       c.ProductID,
		Name:            c.Name,
		Category:        c.Category,
		CurrentPrice:    c.CurrentPrice,
		Priority:        c.Priority,
		DesiredQuantity: c.DesiredQuantity,
		Notes:           c.Notes,
		Tags:            c.Tags,
		CollectionName:  c.CollectionName,
		InStock:         c.InStock,
	}
}
