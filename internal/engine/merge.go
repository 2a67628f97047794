package engine

import (
	"context"
	"errors"
	"sort"

	"github.com/nlenjibi/storefront-wishlist/internal/guest"
	"github.com/nlenjibi/storefront-wishlist/internal/notify"
	"github.com/nlenjibi/storefront-wishlist/internal/wishlist"
	"github.com/nlenjibi/storefront-wishlist/pkg/auth"
	"github.com/nlenjibi/storefront-wishlist/pkg/enums"
	pkgerrors "github.com/nlenjibi/storefront-wishlist/pkg/errors"
	"github.com/nlenjibi/storefront-wishlist/pkg/metrics"
)

type MergeOutcome string

const (
	// MergeOutcomeMerged means every guest item reached the server.
	MergeOutcomeMerged MergeOutcome = "merged"
	// MergeOutcomePartial means some items failed. Only those stay in the guest store.
	MergeOutcomePartial MergeOutcome = "partial"
	// MergeOutcomeSkipped means the guest wishlist was empty.
	MergeOutcomeSkipped MergeOutcome = "skipped"
	// MergeOutcomeNoop means the merge for this login already completed.
	MergeOutcomeNoop MergeOutcome = "noop"
)

// MergeReport is the per-product breakdown of a login merge.
type MergeReport struct {
	Outcome MergeOutcome         `json:"outcome"`
	Result  wishlist.BatchResult `json:"result"`
}

func (r MergeReport) Failed() []int64 {
	return r.Result.FailedIDs()
}

// PlannedUpdate fills unset server fields of an overlapping product.
type PlannedUpdate struct {
	ProductID int64
	Patch     wishlist.Patch
}

// MergePlan is the server work needed to fold a guest wishlist into a server one.
type MergePlan struct {
	Updates   []PlannedUpdate
	Creates   []wishlist.AddRequest
	Unchanged []int64
}

// PlanMerge decides, per guest item, whether the server needs a create, a
// patch of its unset user fields, or nothing. Server values always win when
// set; price and stock are never taken from the guest on overlap.
func PlanMerge(server, guestItems []wishlist.Item) MergePlan {
	byID := make(map[int64]wishlist.Item, len(server))
	for _, item := range server {
		byID[item.ProductID] = item
	}

	sorted := append([]wishlist.Item(nil), guestItems...)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a].ProductID < sorted[b].ProductID })

	var plan MergePlan
	for _, g := range sorted {
		s, ok := byID[g.ProductID]
		if !ok {
			plan.Creates = append(plan.Creates, wishlist.RequestFromItem(g))
			continue
		}
		patch := fillUnset(s, g)
		if patch.IsEmpty() {
			plan.Unchanged = append(plan.Unchanged, g.ProductID)
			continue
		}
		plan.Updates = append(plan.Updates, PlannedUpdate{ProductID: g.ProductID, Patch: patch})
	}
	return plan
}

func fillUnset(server, g wishlist.Item) wishlist.Patch {
	var patch wishlist.Patch
	if (server.Priority == "" || server.Priority == enums.DefaultPriority) && g.Priority != "" && g.Priority != enums.DefaultPriority {
		p := g.Priority
		patch.Priority = &p
	}
	if server.Notes == "" && g.Notes != "" {
		n := g.Notes
		patch.Notes = &n
	}
	if server.TargetPrice == nil && g.TargetPrice != nil {
		v := *g.TargetPrice
		patch.TargetPrice = &v
	}
	if len(server.Tags) == 0 && len(g.Tags) > 0 {
		patch.Tags = append([]string{}, g.Tags...)
	}
	if server.CollectionName == nil && g.CollectionName != nil {
		c := *g.CollectionName
		patch.CollectionName = &c
	}
	return patch
}

// HandleLogin moves the engine to AUTHENTICATED for session, merging the guest
// wishlist first when it is not empty. A repeated login for the same user
// after a completed merge is a no-op.
func (e *Engine) HandleLogin(ctx context.Context, session auth.Session) (MergeReport, error) {
	if !session.Valid(e.now()) {
		return MergeReport{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "login session is not valid")
	}
	ctx = e.logg.WithUserID(ctx, session.UserID)

	e.mu.Lock()
	if e.merging {
		done := e.mergeDone
		sameUser := e.session != nil && e.session.UserID == session.UserID
		e.mu.Unlock()
		if !sameUser {
			return MergeReport{}, pkgerrors.New(pkgerrors.CodeStateConflict, "a merge for another user is in progress")
		}
		select {
		case <-done:
		case <-ctx.Done():
			return MergeReport{}, pkgerrors.Wrap(pkgerrors.CodeDependency, ctx.Err(), "waiting for merge")
		}
		return MergeReport{Outcome: MergeOutcomeNoop, Result: wishlist.NewBatchResult()}, nil
	}
	if e.state == enums.SyncStateAuthenticated && e.session != nil {
		if e.session.UserID != session.UserID {
			e.mu.Unlock()
			return MergeReport{}, pkgerrors.New(pkgerrors.CodeStateConflict, "log out before switching users")
		}
		if len(e.unmerged) == 0 {
			s := session
			e.session = &s
			e.mu.Unlock()
			e.remote.SetAccessToken(session.AccessToken)
			e.logg.Debug(ctx, "duplicate login ignored")
			return MergeReport{Outcome: MergeOutcomeNoop, Result: wishlist.NewBatchResult()}, nil
		}
	}
	prevState := e.state
	s := session
	e.session = &s
	e.merging = true
	e.mergeDone = make(chan struct{})
	direct := prevState == enums.SyncStateGuest && e.guestEmptyLocked()
	if !direct {
		e.state = enums.SyncStateMerging
	}
	e.mu.Unlock()

	e.remote.SetAccessToken(session.AccessToken)
	if direct {
		return e.loginWithoutMerge(ctx, prevState)
	}
	e.emit(Change{Kind: ChangeState, State: enums.SyncStateMerging})

	// Commands issued before the merge started finish first.
	e.inflight.Wait()
	return e.merge(ctx, prevState)
}

// RetryMerge re-runs the merge for the current user after a partial or
// failed merge. Products already on the server only have unset fields filled.
func (e *Engine) RetryMerge(ctx context.Context) (MergeReport, error) {
	e.mu.Lock()
	if e.session == nil {
		e.mu.Unlock()
		return MergeReport{}, pkgerrors.New(pkgerrors.CodeStateConflict, "no authenticated session to merge into")
	}
	session := *e.session
	e.mu.Unlock()
	return e.HandleLogin(ctx, session)
}

// guestEmptyLocked reports whether the guest wishlist is empty and no guest
// write is still in flight.
func (e *Engine) guestEmptyLocked() bool {
	if len(e.pending) > 0 {
		return false
	}
	items, err := e.guest.List()
	if errors.Is(err, guest.ErrNoSession) {
		return true
	}
	return err == nil && len(items) == 0
}

// loginWithoutMerge takes an empty guest wishlist straight from GUEST to
// AUTHENTICATED once the server list is loaded. A guest change made during
// the fetch sends the login through the regular merge instead.
func (e *Engine) loginWithoutMerge(ctx context.Context, prevState enums.SyncState) (MergeReport, error) {
	server, err := e.fetchRemote(ctx)
	if err != nil {
		e.abortMerge(ctx, prevState, err)
		return MergeReport{}, err
	}

	e.mu.Lock()
	if !e.guestEmptyLocked() {
		e.state = enums.SyncStateMerging
		e.mu.Unlock()
		e.emit(Change{Kind: ChangeState, State: enums.SyncStateMerging})
		e.inflight.Wait()
		return e.merge(ctx, prevState)
	}
	report := MergeReport{Outcome: MergeOutcomeSkipped, Result: wishlist.NewBatchResult()}
	queue, done := e.settleLocked(server, nil, report)
	e.mu.Unlock()

	e.endGuestSession(ctx)
	e.metrics.IncMerge(metrics.OutcomeSuccess)
	e.emit(Change{Kind: ChangeReloaded, State: enums.SyncStateAuthenticated})
	e.replay(ctx, queue, done)
	return report, nil
}

func (e *Engine) merge(ctx context.Context, prevState enums.SyncState) (MergeReport, error) {
	guestItems, err := e.guest.List()
	if errors.Is(err, guest.ErrNoSession) {
		guestItems, err = nil, nil
	}
	if err != nil {
		e.abortMerge(ctx, prevState, err)
		return MergeReport{}, err
	}

	server, err := e.fetchRemote(ctx)
	if err != nil {
		e.abortMerge(ctx, prevState, err)
		return MergeReport{}, err
	}

	if len(guestItems) == 0 {
		e.endGuestSession(ctx)
		report := MergeReport{Outcome: MergeOutcomeSkipped, Result: wishlist.NewBatchResult()}
		e.settleMerge(ctx, server, nil, report)
		e.metrics.IncMerge(metrics.OutcomeSuccess)
		return report, nil
	}

	plan := PlanMerge(server, guestItems)
	result := wishlist.NewBatchResult()
	merged := make(map[int64]wishlist.Item, len(server)+len(plan.Creates))
	for _, item := range server {
		merged[item.ProductID] = item
	}

	for _, productID := range plan.Unchanged {
		result.Skip(productID)
	}
	for _, update := range plan.Updates {
		item, err := e.remoteUpdate(ctx, update)
		if err != nil {
			result.Fail(update.ProductID, err)
			// Server price and stock stay; the guest's user fields show on top.
			merged[update.ProductID] = notify.Recompute(update.Patch.ApplyTo(merged[update.ProductID]))
			continue
		}
		merged[item.ProductID] = item
		result.Succeed(update.ProductID)
	}
	for start := 0; start < len(plan.Creates); start += e.batchSize {
		end := start + e.batchSize
		if end > len(plan.Creates) {
			end = len(plan.Creates)
		}
		batch := plan.Creates[start:end]
		resp, err := e.remoteBulkAdd(ctx, batch)
		if err != nil {
			for _, req := range batch {
				result.Fail(req.ProductID, err)
			}
			continue
		}
		for _, item := range resp.Items {
			merged[item.ProductID] = item
		}
		result.Succeeded = append(result.Succeeded, resp.Result.Succeeded...)
		result.Skipped = append(result.Skipped, resp.Result.Skipped...)
		for _, failure := range resp.Result.Failed {
			failure.Row = 0
			result.Failed = append(result.Failed, failure)
		}
	}

	report := MergeReport{Outcome: MergeOutcomeMerged, Result: result}
	var unmerged map[int64]bool
	if result.HasFailures() {
		report.Outcome = MergeOutcomePartial
		failed := make(map[int64]struct{}, len(result.Failed))
		for _, productID := range result.FailedIDs() {
			failed[productID] = struct{}{}
		}
		unmerged = make(map[int64]bool, len(failed))
		for _, item := range guestItems {
			if _, ok := failed[item.ProductID]; !ok {
				// Merged items belong to the server now; a retry must not revive them.
				if err := e.guest.Remove(item.ProductID); err != nil {
					e.logg.Error(e.logg.WithField(ctx, "product_id", item.ProductID), "drop merged item from guest store", err)
				}
				continue
			}
			_, onServer := merged[item.ProductID]
			unmerged[item.ProductID] = onServer
			if !onServer {
				merged[item.ProductID] = item
			}
		}
		e.metrics.IncMerge(metrics.OutcomePartial)
		e.logg.Warn(e.logg.WithField(ctx, "failed_products", result.FailedIDs()), "wishlist merge partially failed")
	} else {
		e.endGuestSession(ctx)
		e.metrics.IncMerge(metrics.OutcomeSuccess)
		e.logg.Info(e.logg.WithField(ctx, "merged", len(result.Succeeded)), "wishlist merge completed")
	}

	items := make([]wishlist.Item, 0, len(merged))
	for _, item := range merged {
		items = append(items, item)
	}
	e.settleMerge(ctx, items, unmerged, report)
	return report, nil
}

func (e *Engine) remoteUpdate(ctx context.Context, update PlannedUpdate) (wishlist.Item, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()
	item, err := e.remote.Update(callCtx, update.ProductID, update.Patch)
	if err != nil {
		return wishlist.Item{}, callError(callCtx, err, "merge update")
	}
	return item, nil
}

func (e *Engine) remoteBulkAdd(ctx context.Context, reqs []wishlist.AddRequest) (wishlist.BulkAddResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()
	resp, err := e.remote.BulkAdd(callCtx, reqs)
	if err != nil {
		return wishlist.BulkAddResponse{}, callError(callCtx, err, "merge create")
	}
	return resp, nil
}

// endGuestSession drops merged guest data. The server already holds every
// item, so a failure here is logged and a later retry stays idempotent.
func (e *Engine) endGuestSession(ctx context.Context) {
	if err := e.guest.Clear(); err != nil && !errors.Is(err, guest.ErrNoSession) {
		e.logg.Error(ctx, "clear guest wishlist after merge", err)
	}
	if err := e.guest.EndSession(); err != nil {
		e.logg.Error(ctx, "end guest session after merge", err)
	}
}

// settleMerge publishes the merged list, leaves MERGING and replays the
// commands queued while the merge ran.
func (e *Engine) settleMerge(ctx context.Context, items []wishlist.Item, unmerged map[int64]bool, report MergeReport) {
	e.mu.Lock()
	queue, done := e.settleLocked(items, unmerged, report)
	e.mu.Unlock()

	e.emit(Change{Kind: ChangeReloaded, State: enums.SyncStateAuthenticated})
	e.replay(ctx, queue, done)
}

// abortMerge restores the pre-merge state when the merge could not start;
// the session is kept so RetryMerge can run it again.
func (e *Engine) abortMerge(ctx context.Context, prevState enums.SyncState, cause error) {
	e.metrics.IncMerge(metrics.OutcomeFailure)
	e.logg.Error(ctx, "wishlist merge failed", cause)

	e.mu.Lock()
	e.state = prevState
	queue, done := e.finishMergeLocked()
	e.mu.Unlock()

	e.emit(Change{Kind: ChangeState, State: prevState})
	e.replay(ctx, queue, done)
}

func (e *Engine) settleLocked(items []wishlist.Item, unmerged map[int64]bool, report MergeReport) ([]*queuedCommand, chan struct{}) {
	e.state = enums.SyncStateAuthenticated
	e.resetLocked(items)
	e.unmerged = make(map[int64]bool, len(unmerged))
	for productID, onServer := range unmerged {
		e.unmerged[productID] = onServer
	}
	e.lastReport = report
	return e.finishMergeLocked()
}

func (e *Engine) finishMergeLocked() ([]*queuedCommand, chan struct{}) {
	queue := e.queue
	e.queue = nil
	e.merging = false
	// Replayed commands count as in flight so a following merge waits for them.
	e.inflight.Add(len(queue))
	return queue, e.mergeDone
}

func (e *Engine) replay(ctx context.Context, queue []*queuedCommand, done chan struct{}) {
	if len(queue) > 0 {
		e.logg.Debug(e.logg.WithField(ctx, "queued", len(queue)), "replaying wishlist changes queued during merge")
	}
	for _, q := range queue {
		q.done <- e.run(q.ctx, q.cmd, q.wait, q.turn)
		e.inflight.Done()
	}
	close(done)
}

// HandleLogout waits for an in-flight merge to settle, then returns the engine
// to GUEST with the guest store's items.
func (e *Engine) HandleLogout(ctx context.Context) error {
	e.mu.Lock()
	for e.merging {
		done := e.mergeDone
		e.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return pkgerrors.Wrap(pkgerrors.CodeStateConflict, ctx.Err(), "logout is waiting for the wishlist merge")
		}
		e.mu.Lock()
	}
	err := e.loadGuestLocked()
	e.mu.Unlock()
	e.remote.SetAccessToken("")
	if err != nil {
		return err
	}
	e.logg.Info(ctx, "wishlist engine logged out")
	e.emit(Change{Kind: ChangeReloaded, State: enums.SyncStateGuest})
	return nil
}

// Watch applies auth events in order until ctx ends or the stream closes.
func (e *Engine) Watch(ctx context.Context, events <-chan auth.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			switch event.Kind {
			case auth.EventLogin:
				if _, err := e.HandleLogin(ctx, event.Session); err != nil {
					e.logg.Error(ctx, "handle login event", err)
				}
			case auth.EventLogout:
				if err := e.HandleLogout(ctx); err != nil {
					e.logg.Error(ctx, "handle logout event", err)
				}
			default:
				e.logg.Warn(e.logg.WithField(ctx, "event", string(event.Kind)), "unknown auth event ignored")
			}
		}
	}
}

// LastMerge reports the outcome of the most recent merge.
func (e *Engine) LastMerge() MergeReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastReport
}
