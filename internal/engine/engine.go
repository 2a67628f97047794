// Package engine is the client-side wishlist synchronization engine. It owns
// the in-memory item list, routes every mutation to the guest store or the
// remote wishlist, and performs the one-time guest merge at login.
package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/nlenjibi/storefront-wishlist/internal/guest"
	"github.com/nlenjibi/storefront-wishlist/internal/notify"
	"github.com/nlenjibi/storefront-wishlist/internal/wishlist"
	"github.com/nlenjibi/storefront-wishlist/pkg/auth"
	"github.com/nlenjibi/storefront-wishlist/pkg/enums"
	pkgerrors "github.com/nlenjibi/storefront-wishlist/pkg/errors"
	"github.com/nlenjibi/storefront-wishlist/pkg/logger"
	"github.com/nlenjibi/storefront-wishlist/pkg/metrics"
)

// DefaultCallTimeout bounds every remote call made by the engine.
const DefaultCallTimeout = 10 * time.Second

const subscriberBuffer = 32

// Remote is the slice of the remote wishlist client the engine drives.
type Remote interface {
	List(ctx context.Context) ([]wishlist.Item, error)
	Add(ctx context.Context, req wishlist.AddRequest) (wishlist.Item, error)
	Update(ctx context.Context, productID int64, patch wishlist.Patch) (wishlist.Item, error)
	Remove(ctx context.Context, productID int64) error
	BulkAdd(ctx context.Context, reqs []wishlist.AddRequest) (wishlist.BulkAddResponse, error)
	SetAccessToken(token string)
}

// Catalog supplies live product data for notification evaluation.
type Catalog interface {
	CatalogSnapshot(ctx context.Context, productIDs []int64) ([]wishlist.CatalogSnapshot, error)
}

type Params struct {
	Guest       guest.Store
	Remote      Remote
	Catalog     Catalog
	Dispatcher  notify.Dispatcher
	Clock       func() time.Time
	Logger      *logger.Logger
	Metrics     *metrics.SyncMetrics
	CallTimeout time.Duration
	// MergeBatchSize caps the number of creates sent per bulk call during merge.
	MergeBatchSize int
}

type ChangeKind string

const (
	ChangeApplied    ChangeKind = "applied"
	ChangeConfirmed  ChangeKind = "confirmed"
	ChangeRolledBack ChangeKind = "rolled_back"
	ChangeReloaded   ChangeKind = "reloaded"
	ChangeState      ChangeKind = "state"
)

// Change is one entry of the reactive feed returned by Subscribe.
type Change struct {
	Kind          ChangeKind
	ProductID     int64
	CorrelationID string
	State         enums.SyncState
}

// PendingCommand is an optimistic change still awaiting its store's answer.
type PendingCommand struct {
	CorrelationID string
	Kind          string
	ProductID     int64
	StartedAt     time.Time
}

// Engine is safe for concurrent use. Construct one per application session.
type Engine struct {
	guest       guest.Store
	remote      Remote
	catalog     Catalog
	dispatcher  notify.Dispatcher
	now         func() time.Time
	logg        *logger.Logger
	metrics     *metrics.SyncMetrics
	callTimeout time.Duration
	batchSize   int

	mu         sync.Mutex
	state      enums.SyncState
	session    *auth.Session
	epoch      uint64
	items      map[int64]wishlist.Item
	pending    map[string]PendingCommand
	unmerged   map[int64]bool // product id -> the server already holds it
	merging    bool
	mergeDone  chan struct{}
	lastReport MergeReport
	queue      []*queuedCommand
	lanes      map[int64]chan struct{}
	inflight   sync.WaitGroup

	subMu   sync.Mutex
	subs    map[int]chan Change
	nextSub int
}

func New(p Params) (*Engine, error) {
	if p.Guest == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "guest store is required")
	}
	if p.Remote == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "remote wishlist client is required")
	}
	if p.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "logger is required")
	}
	if p.Catalog == nil {
		if c, ok := p.Remote.(Catalog); ok {
			p.Catalog = c
		}
	}
	if p.Clock == nil {
		p.Clock = time.Now
	}
	if p.CallTimeout <= 0 {
		p.CallTimeout = DefaultCallTimeout
	}
	if p.MergeBatchSize <= 0 {
		p.MergeBatchSize = 100
	}
	return &Engine{
		guest:       p.Guest,
		remote:      p.Remote,
		catalog:     p.Catalog,
		dispatcher:  p.Dispatcher,
		now:         p.Clock,
		logg:        p.Logger,
		metrics:     p.Metrics,
		callTimeout: p.CallTimeout,
		batchSize:   p.MergeBatchSize,
		state:       enums.SyncStateGuest,
		items:       map[int64]wishlist.Item{},
		pending:     map[string]PendingCommand{},
		unmerged:    map[int64]bool{},
		lanes:       map[int64]chan struct{}{},
		subs:        map[int]chan Change{},
	}, nil
}

// Start loads the initial list. With a valid session the engine goes straight
// to AUTHENTICATED and fetches the server list; otherwise it opens (or resumes)
// the guest session.
func (e *Engine) Start(ctx context.Context, session *auth.Session) error {
	if session != nil && session.Valid(e.now()) {
		e.remote.SetAccessToken(session.AccessToken)
		items, err := e.fetchRemote(ctx)
		if err != nil {
			return err
		}
		s := *session
		e.mu.Lock()
		e.state = enums.SyncStateAuthenticated
		e.session = &s
		e.resetLocked(items)
		e.mu.Unlock()
		e.logg.Info(e.logg.WithUserID(ctx, s.UserID), "wishlist engine started authenticated")
		e.emit(Change{Kind: ChangeReloaded, State: enums.SyncStateAuthenticated})
		return nil
	}

	e.mu.Lock()
	err := e.loadGuestLocked()
	e.mu.Unlock()
	if err != nil {
		return err
	}
	e.logg.Info(e.logg.WithOwnerKey(ctx, e.GuestSessionID()), "wishlist engine started as guest")
	e.emit(Change{Kind: ChangeReloaded, State: enums.SyncStateGuest})
	return nil
}

// loadGuestLocked switches to GUEST with the guest store's current items.
func (e *Engine) loadGuestLocked() error {
	if _, err := e.guest.InitSession(); err != nil {
		return err
	}
	items, err := e.guest.List()
	if err != nil {
		return err
	}
	e.state = enums.SyncStateGuest
	e.session = nil
	e.unmerged = map[int64]bool{}
	e.resetLocked(items)
	return nil
}

// resetLocked replaces the item index and invalidates in-flight commands.
func (e *Engine) resetLocked(items []wishlist.Item) {
	e.epoch++
	e.items = make(map[int64]wishlist.Item, len(items))
	for _, item := range items {
		e.items[item.ProductID] = item.Clone()
	}
}

// Items returns a sorted copy of the current list.
func (e *Engine) Items() []wishlist.Item {
	e.mu.Lock()
	out := make([]wishlist.Item, 0, len(e.items))
	for _, item := range e.items {
		out = append(out, item.Clone())
	}
	e.mu.Unlock()
	wishlist.SortItems(out)
	return out
}

func (e *Engine) Item(productID int64) (wishlist.Item, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	item, ok := e.items[productID]
	if !ok {
		return wishlist.Item{}, false
	}
	return item.Clone(), true
}

func (e *Engine) State() enums.SyncState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// GuestSessionID is the active guest session id, "" once authenticated.
func (e *Engine) GuestSessionID() string {
	e.mu.Lock()
	state := e.state
	e.mu.Unlock()
	if state == enums.SyncStateAuthenticated {
		return ""
	}
	session, ok := e.guest.Session()
	if !ok {
		return ""
	}
	return session.SessionID
}

// OwnerKey identifies the current owner: the user id when authenticated,
// otherwise the guest session id.
func (e *Engine) OwnerKey() string {
	e.mu.Lock()
	session := e.session
	state := e.state
	e.mu.Unlock()
	if state != enums.SyncStateGuest && session != nil {
		return session.UserID
	}
	return e.GuestSessionID()
}

// Pending lists in-flight optimistic commands, oldest first.
func (e *Engine) Pending() []PendingCommand {
	e.mu.Lock()
	out := make([]PendingCommand, 0, len(e.pending))
	for _, cmd := range e.pending {
		out = append(out, cmd)
	}
	e.mu.Unlock()
	sort.Slice(out, func(a, b int) bool {
		if !out[a].StartedAt.Equal(out[b].StartedAt) {
			return out[a].StartedAt.Before(out[b].StartedAt)
		}
		return out[a].CorrelationID < out[b].CorrelationID
	})
	return out
}

// Unmerged lists product ids that failed to merge and still live in the guest store.
func (e *Engine) Unmerged() []int64 {
	e.mu.Lock()
	out := make([]int64, 0, len(e.unmerged))
	for productID := range e.unmerged {
		out = append(out, productID)
	}
	e.mu.Unlock()
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}

// Subscribe returns a feed of list changes and a function that ends the
// subscription. Events are dropped for subscribers whose buffer is full.
func (e *Engine) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, subscriberBuffer)
	e.subMu.Lock()
	key := e.nextSub
	e.nextSub++
	e.subs[key] = ch
	e.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.subMu.Lock()
			delete(e.subs, key)
			e.subMu.Unlock()
			close(ch)
		})
	}
}

func (e *Engine) emit(change Change) {
	if change.State == "" {
		change.State = e.State()
	}
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- change:
		default:
		}
	}
}

func (e *Engine) fetchRemote(ctx context.Context) ([]wishlist.Item, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()
	items, err := e.remote.List(callCtx)
	if err != nil {
		return nil, callError(callCtx, err, "fetch server wishlist")
	}
	return items, nil
}

// callError normalises a failed remote call; deadlines become CodeDependency.
func callError(callCtx context.Context, err error, action string) error {
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, callCtx.Err(), action+" timed out")
	}
	if callCtx.Err() != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, callCtx.Err(), action+" cancelled")
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}
