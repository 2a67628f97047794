package remote

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/nlenjibi/storefront-wishlist/internal/analytics"
	"github.com/nlenjibi/storefront-wishlist/internal/catalog"
	"github.com/nlenjibi/storefront-wishlist/internal/reminders"
	"github.com/nlenjibi/storefront-wishlist/internal/share"
	"github.com/nlenjibi/storefront-wishlist/internal/wishlist"
)

// List returns the authenticated user's wishlist.
func (c *HTTPClient) List(ctx context.Context) ([]wishlist.Item, error) {
	var items []wishlist.Item
	err := c.do(ctx, call{group: groupRead, method: http.MethodGet, path: "/api/v1/wishlist", idempotent: true}, &items)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []wishlist.Item{}
	}
	return items, nil
}

// Add creates or updates an item and returns the server's canonical copy.
func (c *HTTPClient) Add(ctx context.Context, req wishlist.AddRequest) (wishlist.Item, error) {
	var item wishlist.Item
	err := c.do(ctx, call{group: groupWrite, method: http.MethodPost, path: "/api/v1/wishlist", body: req}, &item)
	return item, err
}

// Update patches the user-editable fields of an item.
func (c *HTTPClient) Update(ctx context.Context, productID int64, patch wishlist.Patch) (wishlist.Item, error) {
	var item wishlist.Item
	err := c.do(ctx, call{group: groupWrite, method: http.MethodPatch, path: productPath(productID), body: patch}, &item)
	return item, err
}

// Remove deletes an item. Removing an absent item succeeds.
func (c *HTTPClient) Remove(ctx context.Context, productID int64) error {
	var resp wishlist.RemoveResponse
	return c.do(ctx, call{group: groupWrite, method: http.MethodDelete, path: productPath(productID)}, &resp)
}

// BulkAdd creates many items at once; per-row failures come back in the result.
func (c *HTTPClient) BulkAdd(ctx context.Context, reqs []wishlist.AddRequest) (wishlist.BulkAddResponse, error) {
	var resp wishlist.BulkAddResponse
	err := c.do(ctx, call{
		group:  groupWrite,
		method: http.MethodPost,
		path:   "/api/v1/wishlist/bulk",
		body:   wishlist.BulkAddRequest{Items: reqs},
	}, &resp)
	return resp, err
}

// BulkMove reassigns the collection of many items.
func (c *HTTPClient) BulkMove(ctx context.Context, productIDs []int64, collection *string) (wishlist.BatchResult, error) {
	var result wishlist.BatchResult
	err := c.do(ctx, call{
		group:  groupWrite,
		method: http.MethodPost,
		path:   "/api/v1/wishlist/bulk/move",
		body:   wishlist.BulkMoveRequest{ProductIDs: productIDs, CollectionName: collection},
	}, &result)
	return result, err
}

// Analytics fetches the server-computed summary of the wishlist.
func (c *HTTPClient) Analytics(ctx context.Context) (analytics.Summary, error) {
	var summary analytics.Summary
	err := c.do(ctx, call{group: groupRead, method: http.MethodGet, path: "/api/v1/wishlist/analytics", idempotent: true}, &summary)
	return summary, err
}

// PriceHistory returns the recorded prices of a product over the last days days.
func (c *HTTPClient) PriceHistory(ctx context.Context, productID int64, days int) ([]catalog.PricePoint, error) {
	query := url.Values{}
	if days > 0 {
		query.Set("days", strconv.Itoa(days))
	}
	var points []catalog.PricePoint
	err := c.do(ctx, call{
		group:      groupCatalog,
		method:     http.MethodGet,
		path:       "/api/v1/catalog/" + strconv.FormatInt(productID, 10) + "/history",
		query:      query,
		idempotent: true,
	}, &points)
	return points, err
}

// CatalogSnapshot returns the current price and stock of the known products among ids.
func (c *HTTPClient) CatalogSnapshot(ctx context.Context, productIDs []int64) ([]wishlist.CatalogSnapshot, error) {
	if len(productIDs) == 0 {
		return []wishlist.CatalogSnapshot{}, nil
	}
	var snaps []wishlist.CatalogSnapshot
	err := c.do(ctx, call{
		group:      groupCatalog,
		method:     http.MethodPost,
		path:       "/api/v1/catalog/snapshot",
		body:       catalog.SnapshotRequest{ProductIDs: productIDs},
		idempotent: true,
	}, &snaps)
	return snaps, err
}

func (c *HTTPClient) CreateReminder(ctx context.Context, req reminders.CreateRequest) (reminders.Reminder, error) {
	var reminder reminders.Reminder
	err := c.do(ctx, call{group: groupWrite, method: http.MethodPost, path: "/api/v1/wishlist/reminders", body: req}, &reminder)
	return reminder, err
}

func (c *HTTPClient) ListReminders(ctx context.Context) ([]reminders.Reminder, error) {
	var out []reminders.Reminder
	err := c.do(ctx, call{group: groupRead, method: http.MethodGet, path: "/api/v1/wishlist/reminders", idempotent: true}, &out)
	return out, err
}

func (c *HTTPClient) CancelReminder(ctx context.Context, reminderID string) error {
	return c.do(ctx, call{
		group:  groupWrite,
		method: http.MethodDelete,
		path:   "/api/v1/wishlist/reminders/" + url.PathEscape(reminderID),
	}, nil)
}

// CreateShare snapshots the wishlist and returns a public link to it.
func (c *HTTPClient) CreateShare(ctx context.Context, req share.CreateRequest) (share.Link, error) {
	var link share.Link
	err := c.do(ctx, call{group: groupWrite, method: http.MethodPost, path: "/api/v1/wishlist/shares", body: req}, &link)
	return link, err
}

// GetShare resolves a share token. It never sends the access token.
func (c *HTTPClient) GetShare(ctx context.Context, token string) (share.Snapshot, error) {
	var snapshot share.Snapshot
	err := c.do(ctx, call{
		group:      groupPublic,
		method:     http.MethodGet,
		path:       "/api/public/shares/" + url.PathEscape(token),
		idempotent: true,
		anonymous:  true,
	}, &snapshot)
	return snapshot, err
}
