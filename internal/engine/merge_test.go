package engine

import (
	"context"
	"testing"
	"time"

	"github.com/nlenjibi/storefront-wishlist/internal/wishlist"
	"github.com/nlenjibi/storefront-wishlist/pkg/enums"
	pkgerrors "github.com/nlenjibi/storefront-wishlist/pkg/errors"
	"github.com/nlenjibi/storefront-wishlist/pkg/metrics"
)

func serverItem(productID int64, p int64, priority enums.Priority) wishlist.Item {
	return wishlist.Item{
		ProductID:       productID,
		AddedAt:         time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
		PriceWhenAdded:  price(p),
		CurrentPrice:    price(p),
		Priority:        priority,
		DesiredQuantity: 1,
		InStock:         true,
	}
}

func TestMergeServerWinsAndGuestOnlyItemsAreCreated(t *testing.T) {
	server := newFakeServer(serverItem(101, 48, enums.PriorityHigh))
	h := newHarness(t, server, time.Second)
	ctx := context.Background()

	if _, err := h.engine.Add(ctx, wishlist.AddRequest{ProductID: 101, Price: price(50)}); err != nil {
		t.Fatalf("add 101: %v", err)
	}
	guest102, err := h.engine.Add(ctx, wishlist.AddRequest{ProductID: 102, Price: price(20), Notes: "for dad"})
	if err != nil {
		t.Fatalf("add 102: %v", err)
	}

	report, err := h.engine.HandleLogin(ctx, login("u-1"))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if report.Outcome != MergeOutcomeMerged {
		t.Fatalf("expected merged outcome, got %s", report.Outcome)
	}
	if len(report.Result.Skipped) != 1 || report.Result.Skipped[0] != 101 {
		t.Fatalf("expected 101 reported unchanged, got %+v", report.Result)
	}

	got101, _ := server.item(101)
	if !got101.CurrentPrice.Equal(price(48)) {
		t.Fatalf("expected server price 48 to win, got %s", got101.CurrentPrice)
	}
	if got101.Priority != enums.PriorityHigh {
		t.Fatalf("expected server priority HIGH to win, got %s", got101.Priority)
	}
	got102, ok := server.item(102)
	if !ok {
		t.Fatalf("expected 102 created on server")
	}
	if !got102.CurrentPrice.Equal(price(20)) || got102.Notes != "for dad" {
		t.Fatalf("expected guest data on created item, got %+v", got102)
	}
	if !got102.AddedAt.Equal(guest102.AddedAt) {
		t.Fatalf("expected addedAt preserved, got %s want %s", got102.AddedAt, guest102.AddedAt)
	}

	if h.engine.State() != enums.SyncStateAuthenticated {
		t.Fatalf("expected authenticated, got %s", h.engine.State())
	}
	if _, ok := h.guest.Session(); ok {
		t.Fatalf("expected guest session ended after merge")
	}
	if len(h.engine.Items()) != 2 {
		t.Fatalf("expected two items after merge, got %d", len(h.engine.Items()))
	}
	if got := h.counter(t, "wishlist_merges_total", map[string]string{"outcome": metrics.OutcomeSuccess}); got != 1 {
		t.Fatalf("expected one successful merge, got %f", got)
	}
}

func TestMergeFillsOnlyUnsetServerFields(t *testing.T) {
	existing := serverItem(201, 30, enums.PriorityMedium)
	existing.CollectionName = ptr("Kitchen")
	server := newFakeServer(existing)
	h := newHarness(t, server, time.Second)
	ctx := context.Background()

	_, err := h.engine.Add(ctx, wishlist.AddRequest{
		ProductID:      201,
		Price:          price(35),
		Priority:       enums.PriorityUrgent,
		Notes:          "birthday",
		Tags:           []string{"gift"},
		TargetPrice:    ptr(price(25)),
		CollectionName: ptr("Gifts"),
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	if _, err := h.engine.HandleLogin(ctx, login("u-2")); err != nil {
		t.Fatalf("login: %v", err)
	}
	got, _ := server.item(201)
	if got.Priority != enums.PriorityUrgent {
		t.Fatalf("expected default server priority replaced, got %s", got.Priority)
	}
	if got.Notes != "birthday" || len(got.Tags) != 1 || got.TargetPrice == nil || !got.TargetPrice.Equal(price(25)) {
		t.Fatalf("expected unset fields migrated, got %+v", got)
	}
	if got.Collection() != "Kitchen" {
		t.Fatalf("expected explicit server collection kept, got %q", got.Collection())
	}
	if !got.CurrentPrice.Equal(price(30)) {
		t.Fatalf("expected server price kept, got %s", got.CurrentPrice)
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	server := newFakeServer(serverItem(101, 48, enums.PriorityHigh))
	h := newHarness(t, server, time.Second)
	ctx := context.Background()

	h.engine.Add(ctx, wishlist.AddRequest{ProductID: 101, Price: price(50), Notes: "n"})
	h.engine.Add(ctx, wishlist.AddRequest{ProductID: 102, Price: price(20)})
	guestItems := h.engine.Items()

	if _, err := h.engine.HandleLogin(ctx, login("u-3")); err != nil {
		t.Fatalf("login: %v", err)
	}
	after, _ := server.List(ctx)

	report, err := h.engine.HandleLogin(ctx, login("u-3"))
	if err != nil {
		t.Fatalf("duplicate login: %v", err)
	}
	if report.Outcome != MergeOutcomeNoop {
		t.Fatalf("expected no-op on duplicate login, got %s", report.Outcome)
	}
	if server.count() != len(after) || server.bulkCalls != 1 {
		t.Fatalf("expected server untouched by duplicate login")
	}

	plan := PlanMerge(after, guestItems)
	if len(plan.Creates) != 0 || len(plan.Updates) != 0 {
		t.Fatalf("expected replaying the merge to be a no-op, got %+v", plan)
	}
}

func TestEmptyGuestWishlistSkipsMerge(t *testing.T) {
	server := newFakeServer(serverItem(301, 12, enums.PriorityLow))
	h := newHarness(t, server, time.Second)

	report, err := h.engine.HandleLogin(context.Background(), login("u-4"))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if report.Outcome != MergeOutcomeSkipped {
		t.Fatalf("expected skipped merge, got %s", report.Outcome)
	}
	if server.bulkCalls != 0 {
		t.Fatalf("expected no bulk calls")
	}
	if _, ok := h.engine.Item(301); !ok {
		t.Fatalf("expected server list fetched")
	}
}

func TestPartialMergeKeepsFailedItemsAndRetrySucceeds(t *testing.T) {
	server := newFakeServer()
	server.bulkFail[102] = pkgerrors.New(pkgerrors.CodeDependency, "catalog unavailable")
	h := newHarness(t, server, time.Second)
	ctx := context.Background()

	h.engine.Add(ctx, wishlist.AddRequest{ProductID: 101, Price: price(50)})
	h.engine.Add(ctx, wishlist.AddRequest{ProductID: 102, Price: price(20)})

	report, err := h.engine.HandleLogin(ctx, login("u-5"))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if report.Outcome != MergeOutcomePartial {
		t.Fatalf("expected partial outcome, got %s", report.Outcome)
	}
	if failed := report.Failed(); len(failed) != 1 || failed[0] != 102 {
		t.Fatalf("expected 102 reported failed, got %v", failed)
	}
	guestItems, err := h.guest.List()
	if err != nil || len(guestItems) != 1 || guestItems[0].ProductID != 102 {
		t.Fatalf("expected only the failed item left in the guest store, got %+v (%v)", guestItems, err)
	}
	if unmerged := h.engine.Unmerged(); len(unmerged) != 1 || unmerged[0] != 102 {
		t.Fatalf("expected 102 unmerged, got %v", unmerged)
	}
	if len(h.engine.Items()) != 2 {
		t.Fatalf("expected failed item kept visible, got %d items", len(h.engine.Items()))
	}

	// The unmerged product keeps guest behaviour; everything else is remote.
	if _, err := h.engine.Update(ctx, 102, wishlist.Patch{Notes: ptr("still local")}); err != nil {
		t.Fatalf("update unmerged: %v", err)
	}
	local, _, _ := h.guest.Get(102)
	if local.Notes != "still local" {
		t.Fatalf("expected update routed to guest store, got %q", local.Notes)
	}
	if _, ok := server.item(102); ok {
		t.Fatalf("expected 102 still absent on server")
	}
	if _, err := h.engine.Add(ctx, wishlist.AddRequest{ProductID: 103, Price: price(9)}); err != nil {
		t.Fatalf("add after partial merge: %v", err)
	}
	if _, ok := server.item(103); !ok {
		t.Fatalf("expected new product added on server")
	}

	delete(server.bulkFail, 102)
	report, err = h.engine.RetryMerge(ctx)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if report.Outcome != MergeOutcomeMerged {
		t.Fatalf("expected merged on retry, got %s (%+v)", report.Outcome, report.Result)
	}
	got, ok := server.item(102)
	if !ok || got.Notes != "still local" {
		t.Fatalf("expected 102 merged with local edits, got %+v", got)
	}
	if len(h.engine.Unmerged()) != 0 {
		t.Fatalf("expected nothing left unmerged")
	}
	if _, ok := h.guest.Session(); ok {
		t.Fatalf("expected guest session ended after full merge")
	}
	if server.count() != 3 {
		t.Fatalf("expected no duplicates on server, got %d items", server.count())
	}
}

func TestMergeFetchFailureRestoresGuestState(t *testing.T) {
	server := newFakeServer()
	server.listErr = pkgerrors.New(pkgerrors.CodeDependency, "server down")
	h := newHarness(t, server, time.Second)
	ctx := context.Background()
	h.engine.Add(ctx, wishlist.AddRequest{ProductID: 1, Price: price(1)})

	if _, err := h.engine.HandleLogin(ctx, login("u-6")); !pkgerrors.IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
	if h.engine.State() != enums.SyncStateGuest {
		t.Fatalf("expected guest state after failed merge, got %s", h.engine.State())
	}
	if _, ok := h.engine.Item(1); !ok {
		t.Fatalf("expected guest item kept")
	}

	server.mu.Lock()
	server.listErr = nil
	server.mu.Unlock()
	report, err := h.engine.RetryMerge(ctx)
	if err != nil || report.Outcome != MergeOutcomeMerged {
		t.Fatalf("expected retry to merge, got %s (%v)", report.Outcome, err)
	}
}

func TestRetryMergeDoesNotRecreateItemsRemovedAfterLogin(t *testing.T) {
	server := newFakeServer()
	server.bulkFail[102] = pkgerrors.New(pkgerrors.CodeDependency, "catalog unavailable")
	h := newHarness(t, server, time.Second)
	ctx := context.Background()

	h.engine.Add(ctx, wishlist.AddRequest{ProductID: 101, Price: price(50), Notes: "birthday"})
	h.engine.Add(ctx, wishlist.AddRequest{ProductID: 102, Price: price(20)})
	if report, err := h.engine.HandleLogin(ctx, login("u-11")); err != nil || report.Outcome != MergeOutcomePartial {
		t.Fatalf("expected partial merge, got %s (%v)", report.Outcome, err)
	}
	if _, ok, _ := h.guest.Get(101); ok {
		t.Fatalf("expected merged item dropped from the guest store")
	}

	if err := h.engine.Remove(ctx, 101); err != nil {
		t.Fatalf("remove merged item: %v", err)
	}
	if _, ok := server.item(101); ok {
		t.Fatalf("expected remove routed to the server")
	}

	delete(server.bulkFail, 102)
	report, err := h.engine.RetryMerge(ctx)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if report.Outcome != MergeOutcomeMerged {
		t.Fatalf("expected merged on retry, got %s (%+v)", report.Outcome, report.Result)
	}
	if _, ok := server.item(101); ok {
		t.Fatalf("expected removed item not re-created by the retry")
	}
	if _, ok := h.engine.Item(101); ok {
		t.Fatalf("expected removed item absent from the list")
	}
	if _, ok := server.item(102); !ok {
		t.Fatalf("expected failed item merged on retry")
	}
}

func TestFailedOverlapUpdateKeepsServerPriceAndStock(t *testing.T) {
	existing := serverItem(201, 30, enums.PriorityLow)
	existing.InStock = false
	server := newFakeServer(existing)
	server.updateErr = pkgerrors.New(pkgerrors.CodeDependency, "wishlist service unavailable")
	h := newHarness(t, server, time.Second)
	ctx := context.Background()

	h.engine.Add(ctx, wishlist.AddRequest{ProductID: 201, Price: price(35), InStock: true, Notes: "gift"})
	report, err := h.engine.HandleLogin(ctx, login("u-12"))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if report.Outcome != MergeOutcomePartial {
		t.Fatalf("expected partial outcome, got %s", report.Outcome)
	}
	if unmerged := h.engine.Unmerged(); len(unmerged) != 1 || unmerged[0] != 201 {
		t.Fatalf("expected 201 unmerged, got %v", unmerged)
	}

	got, ok := h.engine.Item(201)
	if !ok {
		t.Fatalf("expected overlapping item listed")
	}
	if !got.CurrentPrice.Equal(price(30)) || got.InStock {
		t.Fatalf("expected server price and stock kept, got %s in stock=%v", got.CurrentPrice, got.InStock)
	}
	if got.Notes != "gift" {
		t.Fatalf("expected guest notes shown, got %q", got.Notes)
	}

	got, err = h.engine.Update(ctx, 201, wishlist.Patch{Notes: ptr("anniversary")})
	if err != nil {
		t.Fatalf("update unmerged overlap: %v", err)
	}
	if !got.CurrentPrice.Equal(price(30)) || got.InStock || got.Notes != "anniversary" {
		t.Fatalf("expected user edit over server data, got %+v", got)
	}
	local, _, _ := h.guest.Get(201)
	if local.Notes != "anniversary" {
		t.Fatalf("expected edit stored in the guest store, got %q", local.Notes)
	}
}

func TestEmptyGuestLoginSkipsMergingState(t *testing.T) {
	server := newFakeServer(serverItem(301, 12, enums.PriorityLow))
	server.listGate = make(chan struct{})
	h := newHarness(t, server, 5*time.Second)
	ctx := context.Background()
	feed, cancel := h.engine.Subscribe()
	defer cancel()

	type loginResult struct {
		report MergeReport
		err    error
	}
	loginDone := make(chan loginResult, 1)
	go func() {
		report, err := h.engine.HandleLogin(ctx, login("u-13"))
		loginDone <- loginResult{report, err}
	}()
	waitFor(t, "server fetch", func() bool {
		server.mu.Lock()
		defer server.mu.Unlock()
		return server.listCalls == 1
	})
	if h.engine.State() != enums.SyncStateGuest {
		t.Fatalf("expected guest state while the server list loads, got %s", h.engine.State())
	}

	close(server.listGate)
	res := <-loginDone
	if res.err != nil {
		t.Fatalf("login: %v", res.err)
	}
	if res.report.Outcome != MergeOutcomeSkipped {
		t.Fatalf("expected skipped merge, got %s", res.report.Outcome)
	}
	if h.engine.State() != enums.SyncStateAuthenticated {
		t.Fatalf("expected authenticated, got %s", h.engine.State())
	}
	if _, ok := h.engine.Item(301); !ok {
		t.Fatalf("expected server list loaded")
	}

	cancel()
	for change := range feed {
		if change.Kind == ChangeState && change.State == enums.SyncStateMerging {
			t.Fatalf("expected no merging state change for an empty guest wishlist")
		}
	}
}

func TestGuestAddDuringEmptyLoginFallsBackToMerge(t *testing.T) {
	server := newFakeServer()
	server.listGate = make(chan struct{})
	h := newHarness(t, server, 5*time.Second)
	ctx := context.Background()

	loginDone := make(chan error, 1)
	go func() {
		_, err := h.engine.HandleLogin(ctx, login("u-14"))
		loginDone <- err
	}()
	waitFor(t, "server fetch", func() bool {
		server.mu.Lock()
		defer server.mu.Unlock()
		return server.listCalls == 1
	})
	if _, err := h.engine.Add(ctx, wishlist.AddRequest{ProductID: 7, Price: price(4)}); err != nil {
		t.Fatalf("add during login: %v", err)
	}

	close(server.listGate)
	if err := <-loginDone; err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, ok := server.item(7); !ok {
		t.Fatalf("expected item added during login merged to the server")
	}
	if h.engine.State() != enums.SyncStateAuthenticated {
		t.Fatalf("expected authenticated, got %s", h.engine.State())
	}
}

func TestMutationsDuringMergeAreQueuedAndReplayed(t *testing.T) {
	server := newFakeServer()
	server.listGate = make(chan struct{})
	h := newHarness(t, server, 5*time.Second)
	ctx := context.Background()
	h.engine.Add(ctx, wishlist.AddRequest{ProductID: 1, Price: price(10)})

	loginDone := make(chan error, 1)
	go func() {
		_, err := h.engine.HandleLogin(ctx, login("u-7"))
		loginDone <- err
	}()
	waitFor(t, "merging state", func() bool { return h.engine.State() == enums.SyncStateMerging })

	addDone := make(chan error, 1)
	go func() {
		_, err := h.engine.Add(ctx, wishlist.AddRequest{ProductID: 2, Price: price(5)})
		addDone <- err
	}()
	waitFor(t, "queued add", func() bool {
		h.engine.mu.Lock()
		defer h.engine.mu.Unlock()
		return len(h.engine.queue) == 1
	})
	if _, ok := h.engine.Item(2); ok {
		t.Fatalf("expected queued change not applied against half-merged state")
	}

	close(server.listGate)
	if err := <-loginDone; err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := <-addDone; err != nil {
		t.Fatalf("queued add: %v", err)
	}
	if _, ok := server.item(2); !ok {
		t.Fatalf("expected queued add replayed against the server")
	}
	if _, ok, _ := h.guest.Get(2); ok {
		t.Fatalf("expected queued add not written to the guest store")
	}
	if _, ok := h.engine.Item(2); !ok {
		t.Fatalf("expected replayed item in the list")
	}
	if got := h.counter(t, "wishlist_mutations_total", map[string]string{"kind": KindAdd, "outcome": metrics.OutcomeQueued}); got != 1 {
		t.Fatalf("expected one queued mutation, got %f", got)
	}
}

func TestLogoutWaitsForMergeToSettle(t *testing.T) {
	server := newFakeServer()
	server.listGate = make(chan struct{})
	h := newHarness(t, server, 5*time.Second)
	ctx := context.Background()
	h.engine.Add(ctx, wishlist.AddRequest{ProductID: 1, Price: price(10)})

	go h.engine.HandleLogin(ctx, login("u-8"))
	waitFor(t, "merging state", func() bool { return h.engine.State() == enums.SyncStateMerging })

	logoutDone := make(chan error, 1)
	go func() { logoutDone <- h.engine.HandleLogout(ctx) }()

	select {
	case <-logoutDone:
		t.Fatalf("expected logout to wait for the merge")
	case <-time.After(50 * time.Millisecond):
	}

	close(server.listGate)
	if err := <-logoutDone; err != nil {
		t.Fatalf("logout: %v", err)
	}
	if h.engine.State() != enums.SyncStateGuest {
		t.Fatalf("expected guest after logout, got %s", h.engine.State())
	}
	if _, ok := server.item(1); !ok {
		t.Fatalf("expected merge to finish before logout")
	}
	if len(h.engine.Items()) != 0 {
		t.Fatalf("expected no duplicated guest items after logout")
	}
}

func TestLogoutGivesUpWhenContextEnds(t *testing.T) {
	server := newFakeServer()
	server.listGate = make(chan struct{})
	h := newHarness(t, server, 5*time.Second)
	h.engine.Add(context.Background(), wishlist.AddRequest{ProductID: 1, Price: price(10)})

	go h.engine.HandleLogin(context.Background(), login("u-10"))
	waitFor(t, "merging state", func() bool { return h.engine.State() == enums.SyncStateMerging })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := h.engine.HandleLogout(ctx); !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
	close(server.listGate)
}

func TestLoginRejectsInvalidSessionAndUserSwitch(t *testing.T) {
	h := newHarness(t, newFakeServer(), time.Second)
	ctx := context.Background()

	if _, err := h.engine.HandleLogin(ctx, login("")); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := h.engine.HandleLogin(ctx, login("a")); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := h.engine.HandleLogin(ctx, login("b")); !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict on user switch, got %v", err)
	}
}

func TestPlanMerge(t *testing.T) {
	server := []wishlist.Item{
		serverItem(1, 10, enums.PriorityHigh),
		serverItem(2, 10, enums.PriorityMedium),
	}
	guestItems := []wishlist.Item{
		{ProductID: 3, Priority: enums.PriorityLow, DesiredQuantity: 2, CurrentPrice: price(4), PriceWhenAdded: price(5)},
		{ProductID: 1, Priority: enums.PriorityLow, DesiredQuantity: 1},
		{ProductID: 2, Priority: enums.PriorityMedium, DesiredQuantity: 1, Notes: "x"},
	}

	plan := PlanMerge(server, guestItems)

	if len(plan.Unchanged) != 1 || plan.Unchanged[0] != 1 {
		t.Fatalf("expected product 1 unchanged, got %v", plan.Unchanged)
	}
	if len(plan.Updates) != 1 || plan.Updates[0].ProductID != 2 {
		t.Fatalf("expected product 2 patched, got %+v", plan.Updates)
	}
	patch := plan.Updates[0].Patch
	if patch.Notes == nil || *patch.Notes != "x" || patch.Priority != nil {
		t.Fatalf("expected only notes migrated, got %+v", patch)
	}
	if len(plan.Creates) != 1 || plan.Creates[0].ProductID != 3 {
		t.Fatalf("expected product 3 created, got %+v", plan.Creates)
	}
	create := plan.Creates[0]
	if create.PriceWhenAdded == nil || !create.PriceWhenAdded.Equal(price(5)) || create.DesiredQuantity != 2 {
		t.Fatalf("expected guest fields carried into create, got %+v", create)
	}
}
