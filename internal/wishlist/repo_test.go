package wishlist

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/nlenjibi/storefront-wishlist/pkg/db/models"
	"github.com/nlenjibi/storefront-wishlist/pkg/enums"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupWishlistTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.WishlistItem{}))
	return db
}

func repoItem(productID int64, price string, addedAt time.Time) Item {
	p := decimal.RequireFromString(price)
	return Item{
		ProductID:       productID,
		Name:            fmt.Sprintf("product-%d", productID),
		AddedAt:         addedAt,
		PriceWhenAdded:  p,
		CurrentPrice:    p,
		Priority:        enums.PriorityMedium,
		DesiredQuantity: 1,
	}
}

func TestRepositoryUpsertKeepsOneRowPerProduct(t *testing.T) {
	repo := NewRepository(setupWishlistTestDB(t))
	ctx := context.Background()
	added := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	first := repoItem(101, "20.00", added)
	first.Tags = []string{"gift"}
	_, err := repo.Upsert(ctx, "user-1", first)
	require.NoError(t, err)

	second := repoItem(101, "15.00", added.Add(48*time.Hour))
	second.Priority = enums.PriorityHigh
	second.TargetPrice = ptr(decimal.RequireFromString("12.00"))
	saved, err := repo.Upsert(ctx, "user-1", second)
	require.NoError(t, err)

	items, err := repo.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Equal(t, enums.PriorityHigh, saved.Priority)
	assert.True(t, saved.CurrentPrice.Equal(decimal.RequireFromString("15.00")))
	assert.True(t, saved.PriceWhenAdded.Equal(decimal.RequireFromString("20.00")), "price when added is write-once")
	assert.True(t, saved.AddedAt.Equal(added), "added at is write-once")
	require.NotNil(t, saved.TargetPrice)
	assert.True(t, saved.TargetPrice.Equal(decimal.RequireFromString("12")))
	assert.Empty(t, saved.Tags)
}

func TestRepositoryListIsScopedAndOrdered(t *testing.T) {
	repo := NewRepository(setupWishlistTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []int64{3, 1, 2} {
		_, err := repo.Upsert(ctx, "user-1", repoItem(id, "10", base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}
	_, err := repo.Upsert(ctx, "user-2", repoItem(9, "10", base))
	require.NoError(t, err)

	items, err := repo.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []int64{2, 1, 3}, []int64{items[0].ProductID, items[1].ProductID, items[2].ProductID})

	owners, err := repo.ListOwners(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"user-1", "user-2"}, owners)
}

func TestRepositoryGetAndDelete(t *testing.T) {
	repo := NewRepository(setupWishlistTestDB(t))
	ctx := context.Background()

	_, err := repo.Get(ctx, "user-1", 5)
	assert.True(t, IsNotFound(err))

	_, err = repo.Upsert(ctx, "user-1", repoItem(5, "9.99", time.Now().UTC()))
	require.NoError(t, err)

	removed, err := repo.Delete(ctx, "user-1", 5)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = repo.Delete(ctx, "user-1", 5)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRepositoryMoveCollectionReportsPresentIDs(t *testing.T) {
	repo := NewRepository(setupWishlistTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	for _, id := range []int64{1, 2} {
		_, err := repo.Upsert(ctx, "user-1", repoItem(id, "5", now))
		require.NoError(t, err)
	}

	moved, err := repo.MoveCollection(ctx, "user-1", []int64{1, 2, 3}, ptr("Birthday"))
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, moved)

	item, err := repo.Get(ctx, "user-1", 2)
	require.NoError(t, err)
	assert.Equal(t, "Birthday", item.Collection())

	moved, err = repo.MoveCollection(ctx, "user-1", []int64{2}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, moved)

	item, err = repo.Get(ctx, "user-1", 2)
	require.NoError(t, err)
	assert.Nil(t, item.CollectionName)
}
