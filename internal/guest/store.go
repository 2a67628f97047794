// Package guest persists the anonymous wishlist of the current browser
// profile or client install. It never talks to the network.
package guest

import (
	"time"

	"github.com/nlenjibi/storefront-wishlist/internal/wishlist"
	pkgerrors "github.com/nlenjibi/storefront-wishlist/pkg/errors"
)

// DefaultSessionTTL is the rolling lifetime of a guest session.
const DefaultSessionTTL = 30 * 24 * time.Hour

// Session identifies the active anonymous owner.
type Session struct {
	SessionID string    `json:"sessionId"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Store is synchronous CRUD over the active guest session's items.
type Store interface {
	InitSession() (string, error)
	Session() (Session, bool)
	Get(productID int64) (wishlist.Item, bool, error)
	Add(req wishlist.AddRequest) (wishlist.Item, error)
	Update(productID int64, patch wishlist.Patch) (wishlist.Item, error)
	Put(item wishlist.Item) error
	Remove(productID int64) error
	List() ([]wishlist.Item, error)
	Clear() error
	EndSession() error
}

// ErrNoSession is returned when an item operation runs without a valid session.
var ErrNoSession = pkgerrors.New(pkgerrors.CodeStateConflict, "no active guest session")
