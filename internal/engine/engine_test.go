package engine

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/nlenjibi/storefront-wishlist/internal/guest"
	"github.com/nlenjibi/storefront-wishlist/internal/notify"
	"github.com/nlenjibi/storefront-wishlist/internal/wishlist"
	"github.com/nlenjibi/storefront-wishlist/pkg/auth"
	"github.com/nlenjibi/storefront-wishlist/pkg/enums"
	"github.com/nlenjibi/storefront-wishlist/pkg/logger"
	"github.com/nlenjibi/storefront-wishlist/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
	"github.com/spf13/afero"
)

// fakeServer is an in-memory remote wishlist with failure and blocking hooks.
type fakeServer struct {
	mu        sync.Mutex
	items     map[int64]wishlist.Item
	catalog   map[int64]wishlist.CatalogSnapshot
	token     string
	listErr   error
	addErr    error
	updateErr error
	bulkFail  map[int64]error
	listGate  chan struct{}
	addGate   chan struct{}
	updates   chan int64
	updGate   chan struct{}
	addCalls  int
	bulkCalls int
	listCalls int
}

func newFakeServer(items ...wishlist.Item) *fakeServer {
	s := &fakeServer{
		items:    map[int64]wishlist.Item{},
		catalog:  map[int64]wishlist.CatalogSnapshot{},
		bulkFail: map[int64]error{},
	}
	for _, item := range items {
		s.items[item.ProductID] = item
	}
	return s
}

func (s *fakeServer) SetAccessToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

func (s *fakeServer) accessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *fakeServer) List(ctx context.Context) ([]wishlist.Item, error) {
	s.mu.Lock()
	s.listCalls++
	s.mu.Unlock()
	if s.listGate != nil {
		select {
		case <-s.listGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]wishlist.Item, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, item.Clone())
	}
	wishlist.SortItems(out)
	return out, nil
}

func (s *fakeServer) Add(ctx context.Context, req wishlist.AddRequest) (wishlist.Item, error) {
	s.mu.Lock()
	s.addCalls++
	gate := s.addGate
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return wishlist.Item{}, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addErr != nil {
		return wishlist.Item{}, s.addErr
	}
	return s.addLocked(req), nil
}

func (s *fakeServer) addLocked(req wishlist.AddRequest) wishlist.Item {
	var item wishlist.Item
	if existing, ok := s.items[req.ProductID]; ok {
		item = wishlist.ApplyAdd(existing, req)
	} else {
		item = wishlist.NewItem(req, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	}
	s.items[item.ProductID] = item
	return item.Clone()
}

func (s *fakeServer) Update(ctx context.Context, productID int64, patch wishlist.Patch) (wishlist.Item, error) {
	if s.updates != nil {
		s.updates <- productID
	}
	if s.updGate != nil {
		select {
		case <-s.updGate:
		case <-ctx.Done():
			return wishlist.Item{}, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return wishlist.Item{}, s.updateErr
	}
	existing, ok := s.items[productID]
	if !ok {
		return wishlist.Item{}, errNotOnServer
	}
	item := patch.ApplyTo(existing)
	s.items[productID] = item
	return item.Clone(), nil
}

func (s *fakeServer) Remove(ctx context.Context, productID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, productID)
	return nil
}

func (s *fakeServer) BulkAdd(ctx context.Context, reqs []wishlist.AddRequest) (wishlist.BulkAddResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bulkCalls++
	resp := wishlist.BulkAddResponse{Result: wishlist.NewBatchResult()}
	for i, req := range reqs {
		if err := s.bulkFail[req.ProductID]; err != nil {
			resp.Result.FailRow(i, req.ProductID, err)
			continue
		}
		resp.Items = append(resp.Items, s.addLocked(req))
		resp.Result.Succeed(req.ProductID)
	}
	return resp, nil
}

func (s *fakeServer) CatalogSnapshot(ctx context.Context, productIDs []int64) ([]wishlist.CatalogSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wishlist.CatalogSnapshot, 0, len(productIDs))
	for _, productID := range productIDs {
		if snap, ok := s.catalog[productID]; ok {
			out = append(out, snap)
		}
	}
	return out, nil
}

func (s *fakeServer) item(productID int64) (wishlist.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[productID]
	return item, ok
}

func (s *fakeServer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

type recordingDispatcher struct {
	mu    sync.Mutex
	owner []string
	sent  []notify.Transition
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, ownerKey string, transition notify.Transition) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.owner = append(d.owner, ownerKey)
	d.sent = append(d.sent, transition)
	return nil
}

type harness struct {
	engine     *Engine
	server     *fakeServer
	guest      *guest.FileStore
	registry   *prometheus.Registry
	dispatcher *recordingDispatcher
}

func newHarness(t *testing.T, server *fakeServer, timeout time.Duration) *harness {
	t.Helper()
	store, err := guest.NewFileStore(guest.Options{Fs: afero.NewMemMapFs(), Path: "/profile/guest.json"})
	if err != nil {
		t.Fatalf("guest store: %v", err)
	}
	reg := prometheus.NewRegistry()
	dispatcher := &recordingDispatcher{}
	eng, err := New(Params{
		Guest:       store,
		Remote:      server,
		Dispatcher:  dispatcher,
		Logger:      logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Metrics:     metrics.NewSyncMetrics(reg),
		CallTimeout: timeout,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := eng.Start(context.Background(), nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	return &harness{engine: eng, server: server, guest: store, registry: reg, dispatcher: dispatcher}
}

func (h *harness) counter(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := h.registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if labelsMatch(metric.GetLabel(), labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func labelsMatch(pairs []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, pair := range pairs {
		if v, ok := want[pair.GetName()]; ok && v == pair.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}

func login(userID string) auth.Session {
	return auth.Session{UserID: userID, AccessToken: "token-" + userID}
}

func price(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func ptr[T any](v T) *T {
	return &v
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Params{}); err == nil {
		t.Fatalf("expected error without guest store")
	}
	store, _ := guest.NewFileStore(guest.Options{Fs: afero.NewMemMapFs(), Path: "/g.json"})
	if _, err := New(Params{Guest: store}); err == nil {
		t.Fatalf("expected error without remote")
	}
}

func TestStartAsGuestOpensSession(t *testing.T) {
	h := newHarness(t, newFakeServer(), time.Second)

	if h.engine.State() != enums.SyncStateGuest {
		t.Fatalf("expected guest state, got %s", h.engine.State())
	}
	if h.engine.GuestSessionID() == "" {
		t.Fatalf("expected guest session id")
	}
	if h.engine.OwnerKey() != h.engine.GuestSessionID() {
		t.Fatalf("expected guest owner key")
	}
}

func TestStartWithSessionFetchesServerList(t *testing.T) {
	server := newFakeServer(wishlist.Item{ProductID: 7, Priority: enums.PriorityHigh, DesiredQuantity: 1})
	store, _ := guest.NewFileStore(guest.Options{Fs: afero.NewMemMapFs(), Path: "/g.json"})
	eng, err := New(Params{Guest: store, Remote: server, Logger: logger.New(logger.Options{Output: io.Discard})})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	session := login("u-1")
	if err := eng.Start(context.Background(), &session); err != nil {
		t.Fatalf("start: %v", err)
	}
	if eng.State() != enums.SyncStateAuthenticated {
		t.Fatalf("expected authenticated, got %s", eng.State())
	}
	if server.accessToken() != "token-u-1" {
		t.Fatalf("expected bearer token handed to remote")
	}
	if _, ok := eng.Item(7); !ok {
		t.Fatalf("expected server item loaded")
	}
	if eng.GuestSessionID() != "" {
		t.Fatalf("expected no guest session id when authenticated")
	}
	if eng.OwnerKey() != "u-1" {
		t.Fatalf("expected user owner key, got %q", eng.OwnerKey())
	}
}

func TestSubscribeReceivesChanges(t *testing.T) {
	h := newHarness(t, newFakeServer(), time.Second)
	feed, cancel := h.engine.Subscribe()
	defer cancel()

	if _, err := h.engine.Add(context.Background(), wishlist.AddRequest{ProductID: 5, Price: price(10)}); err != nil {
		t.Fatalf("add: %v", err)
	}

	var kinds []ChangeKind
	for len(kinds) < 2 {
		select {
		case change := <-feed:
			if change.ProductID != 5 {
				t.Fatalf("unexpected product %d", change.ProductID)
			}
			kinds = append(kinds, change.Kind)
		case <-time.After(time.Second):
			t.Fatalf("expected two changes, got %v", kinds)
		}
	}
	if kinds[0] != ChangeApplied || kinds[1] != ChangeConfirmed {
		t.Fatalf("expected applied then confirmed, got %v", kinds)
	}

	cancel()
	if _, ok := <-feed; ok {
		t.Fatalf("expected closed feed after cancel")
	}
}

func TestWatchHandlesLoginAndLogout(t *testing.T) {
	h := newHarness(t, newFakeServer(), time.Second)
	if _, err := h.engine.Add(context.Background(), wishlist.AddRequest{ProductID: 11, Price: price(3)}); err != nil {
		t.Fatalf("add: %v", err)
	}

	events := make(chan auth.Event, 2)
	events <- auth.Event{Kind: auth.EventLogin, Session: login("u-9")}
	events <- auth.Event{Kind: auth.EventLogout}
	close(events)

	if err := h.engine.Watch(context.Background(), events); err != nil {
		t.Fatalf("watch: %v", err)
	}
	if _, ok := h.server.item(11); !ok {
		t.Fatalf("expected guest item merged on login event")
	}
	if h.engine.State() != enums.SyncStateGuest {
		t.Fatalf("expected guest state after logout event, got %s", h.engine.State())
	}
	if h.server.accessToken() != "" {
		t.Fatalf("expected token cleared on logout")
	}
	if len(h.engine.Items()) != 0 {
		t.Fatalf("expected empty guest list after completed merge and logout")
	}
}
