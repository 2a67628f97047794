package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/nlenjibi/storefront-wishlist/internal/notify"
	"github.com/nlenjibi/storefront-wishlist/internal/wishlist"
	"github.com/nlenjibi/storefront-wishlist/pkg/enums"
	pkgerrors "github.com/nlenjibi/storefront-wishlist/pkg/errors"
	"github.com/nlenjibi/storefront-wishlist/pkg/id"
	"github.com/nlenjibi/storefront-wishlist/pkg/metrics"
	"go.uber.org/multierr"
)

const (
	KindAdd     = "add"
	KindUpdate  = "update"
	KindRemove  = "remove"
	KindPut     = "put"
	KindRefresh = "refresh"
)

type target int

const (
	targetGuest target = iota
	targetRemote
)

// command is one optimistic mutation of a single product.
type command struct {
	kind      string
	productID int64
	add       wishlist.AddRequest
	patch     wishlist.Patch
	item      wishlist.Item
	snapshot  wishlist.CatalogSnapshot
}

type commandResult struct {
	item        wishlist.Item
	transitions []notify.Transition
	err         error
}

type queuedCommand struct {
	ctx  context.Context
	cmd  command
	wait <-chan struct{}
	turn chan struct{}
	done chan commandResult
}

// Add puts a product on the wishlist, or folds the request into the existing item.
func (e *Engine) Add(ctx context.Context, req wishlist.AddRequest) (wishlist.Item, error) {
	if err := req.Validate(); err != nil {
		e.metrics.IncMutation(KindAdd, metrics.OutcomeFailure)
		return wishlist.Item{}, err
	}
	res := e.submit(ctx, command{kind: KindAdd, productID: req.ProductID, add: req})
	return res.item, res.err
}

// Update applies a user patch to an existing item.
func (e *Engine) Update(ctx context.Context, productID int64, patch wishlist.Patch) (wishlist.Item, error) {
	if productID <= 0 {
		e.metrics.IncMutation(KindUpdate, metrics.OutcomeFailure)
		return wishlist.Item{}, pkgerrors.New(pkgerrors.CodeValidation, "product id must be positive")
	}
	if err := patch.Validate(); err != nil {
		e.metrics.IncMutation(KindUpdate, metrics.OutcomeFailure)
		return wishlist.Item{}, err
	}
	res := e.submit(ctx, command{kind: KindUpdate, productID: productID, patch: patch})
	return res.item, res.err
}

// Remove deletes a product from the wishlist. Removing an absent product is not an error.
func (e *Engine) Remove(ctx context.Context, productID int64) error {
	if productID <= 0 {
		e.metrics.IncMutation(KindRemove, metrics.OutcomeFailure)
		return pkgerrors.New(pkgerrors.CodeValidation, "product id must be positive")
	}
	return e.submit(ctx, command{kind: KindRemove, productID: productID}).err
}

// Put replaces a whole item. Authenticated owners keep the change local: the
// server owns price and stock and refreshes them itself.
func (e *Engine) Put(ctx context.Context, item wishlist.Item) (wishlist.Item, error) {
	if err := item.Validate(); err != nil {
		e.metrics.IncMutation(KindPut, metrics.OutcomeFailure)
		return wishlist.Item{}, err
	}
	res := e.submit(ctx, command{kind: KindPut, productID: item.ProductID, item: item.Clone()})
	return res.item, res.err
}

// submit takes the product's lane ticket and either runs the command or,
// while a merge is in progress, queues it for replay.
func (e *Engine) submit(ctx context.Context, cmd command) commandResult {
	e.mu.Lock()
	wait, turn := e.ticketLocked(cmd.productID)
	if e.state == enums.SyncStateMerging {
		q := &queuedCommand{
			ctx:  context.WithoutCancel(ctx),
			cmd:  cmd,
			wait: wait,
			turn: turn,
			done: make(chan commandResult, 1),
		}
		e.queue = append(e.queue, q)
		e.mu.Unlock()
		e.metrics.IncMutation(cmd.kind, metrics.OutcomeQueued)
		e.logg.Debug(e.logg.WithField(ctx, "product_id", cmd.productID), "wishlist change queued behind merge")

		select {
		case res := <-q.done:
			return res
		case <-ctx.Done():
			return commandResult{err: pkgerrors.Wrap(pkgerrors.CodeDependency, ctx.Err(), "wishlist change still queued behind merge")}
		}
	}
	e.inflight.Add(1)
	e.mu.Unlock()
	defer e.inflight.Done()
	return e.run(ctx, cmd, wait, turn)
}

// ticketLocked appends a turn to the product's lane and returns the turn to
// wait for. Tickets are handed out in call order.
func (e *Engine) ticketLocked(productID int64) (<-chan struct{}, chan struct{}) {
	prev := e.lanes[productID]
	turn := make(chan struct{})
	e.lanes[productID] = turn
	return prev, turn
}

func (e *Engine) release(productID int64, turn chan struct{}) {
	close(turn)
	e.mu.Lock()
	if e.lanes[productID] == turn {
		delete(e.lanes, productID)
	}
	e.mu.Unlock()
}

func (e *Engine) run(ctx context.Context, cmd command, wait <-chan struct{}, turn chan struct{}) commandResult {
	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
			// Hand the turn on only after the earlier command finishes.
			go func() {
				<-wait
				e.release(cmd.productID, turn)
			}()
			e.metrics.IncMutation(cmd.kind, metrics.OutcomeFailure)
			return commandResult{err: pkgerrors.Wrap(pkgerrors.CodeDependency, ctx.Err(), "wishlist change cancelled")}
		}
	}
	defer e.release(cmd.productID, turn)
	return e.execute(ctx, cmd)
}

// execute is the two-phase apply: optimistic local change, then confirm or
// roll back on the store's answer.
func (e *Engine) execute(ctx context.Context, cmd command) commandResult {
	correlationID, err := id.Generate(id.PrefixCommand)
	if err != nil {
		return commandResult{err: pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate correlation id")}
	}
	ctx = e.logg.WithFields(ctx, map[string]any{
		"correlation_id": correlationID,
		"product_id":     cmd.productID,
		"command":        cmd.kind,
	})

	e.mu.Lock()
	epoch := e.epoch
	prev, existed := e.items[cmd.productID]
	dest := e.targetLocked(cmd.productID)
	serverHeld := dest == targetGuest && e.state != enums.SyncStateGuest && existed && e.unmerged[cmd.productID]
	optimistic, transitions, err := e.optimistic(cmd, prev, existed)
	if err != nil {
		e.mu.Unlock()
		e.metrics.IncMutation(cmd.kind, metrics.OutcomeFailure)
		return commandResult{err: err}
	}
	if cmd.kind == KindRemove {
		delete(e.items, cmd.productID)
	} else {
		e.items[cmd.productID] = optimistic
	}
	e.pending[correlationID] = PendingCommand{
		CorrelationID: correlationID,
		Kind:          cmd.kind,
		ProductID:     cmd.productID,
		StartedAt:     e.now(),
	}
	e.mu.Unlock()
	e.emit(Change{Kind: ChangeApplied, ProductID: cmd.productID, CorrelationID: correlationID})

	var canonical wishlist.Item
	if dest == targetGuest {
		canonical, err = e.applyGuest(cmd, optimistic)
		if err == nil && serverHeld && cmd.kind != KindRemove {
			canonical = keepServerFields(prev, canonical)
		}
	} else {
		canonical, err = e.applyRemote(ctx, cmd, optimistic)
	}

	e.mu.Lock()
	delete(e.pending, correlationID)
	stale := e.epoch != epoch
	switch {
	case stale:
	case err != nil && existed:
		e.items[cmd.productID] = prev
	case err != nil:
		delete(e.items, cmd.productID)
	case cmd.kind == KindRemove:
		delete(e.items, cmd.productID)
		if dest == targetGuest {
			delete(e.unmerged, cmd.productID)
		}
	default:
		e.items[cmd.productID] = canonical
	}
	e.mu.Unlock()

	if err != nil {
		outcome := metrics.OutcomeRollback
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = metrics.OutcomeTimeout
		}
		e.metrics.IncMutation(cmd.kind, outcome)
		e.metrics.IncRollback(cmd.kind)
		e.logg.Warn(e.logg.WithField(ctx, "error", err.Error()), "wishlist change rolled back")
		e.emit(Change{Kind: ChangeRolledBack, ProductID: cmd.productID, CorrelationID: correlationID})
		return commandResult{err: err}
	}
	e.metrics.IncMutation(cmd.kind, metrics.OutcomeSuccess)
	e.emit(Change{Kind: ChangeConfirmed, ProductID: cmd.productID, CorrelationID: correlationID})
	return commandResult{item: canonical.Clone(), transitions: transitions}
}

// keepServerFields shows the user fields of a guest-held copy over the
// catalog, price and stock data the server reported.
func keepServerFields(server, local wishlist.Item) wishlist.Item {
	out := local.Clone()
	out.Name = server.Name
	out.Category = server.Category
	out.AddedAt = server.AddedAt
	out.PriceWhenAdded = server.PriceWhenAdded
	out.CurrentPrice = server.CurrentPrice
	out.InStock = server.InStock
	return notify.Recompute(out)
}

// targetLocked routes a product: guest store while GUEST, and for products
// whose merge failed; the remote wishlist otherwise.
func (e *Engine) targetLocked(productID int64) target {
	if e.state == enums.SyncStateGuest {
		return targetGuest
	}
	if _, ok := e.unmerged[productID]; ok {
		return targetGuest
	}
	return targetRemote
}

func (e *Engine) optimistic(cmd command, prev wishlist.Item, existed bool) (wishlist.Item, []notify.Transition, error) {
	switch cmd.kind {
	case KindAdd:
		if existed {
			return notify.Recompute(wishlist.ApplyAdd(prev, cmd.add)), nil, nil
		}
		return notify.Recompute(wishlist.NewItem(cmd.add, e.now())), nil, nil
	case KindUpdate:
		if !existed {
			return wishlist.Item{}, nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("product %d is not in the wishlist", cmd.productID))
		}
		return notify.Recompute(cmd.patch.ApplyTo(prev)), nil, nil
	case KindRemove:
		return wishlist.Item{}, nil, nil
	case KindPut:
		return cmd.item.Clone(), nil, nil
	case KindRefresh:
		if !existed {
			return wishlist.Item{}, nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("product %d left the wishlist", cmd.productID))
		}
		item, transitions := notify.Apply(prev, cmd.snapshot)
		return item, transitions, nil
	default:
		return wishlist.Item{}, nil, pkgerrors.New(pkgerrors.CodeInternal, "unknown wishlist command "+cmd.kind)
	}
}

func (e *Engine) applyGuest(cmd command, optimistic wishlist.Item) (wishlist.Item, error) {
	var (
		item wishlist.Item
		err  error
	)
	switch cmd.kind {
	case KindAdd:
		item, err = e.guest.Add(cmd.add)
	case KindUpdate:
		item, err = e.guest.Update(cmd.productID, cmd.patch)
	case KindRemove:
		err = e.guest.Remove(cmd.productID)
	default:
		item, err = optimistic, e.guest.Put(optimistic)
	}
	if err != nil {
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "guest store "+cmd.kind)
		}
		return wishlist.Item{}, err
	}
	if cmd.kind == KindAdd || cmd.kind == KindUpdate {
		item = notify.Recompute(item)
	}
	return item, nil
}

// applyRemote runs the remote call under the call timeout. A call that
// outlives the timeout is reported as failed even if it completes later.
func (e *Engine) applyRemote(ctx context.Context, cmd command, optimistic wishlist.Item) (wishlist.Item, error) {
	if cmd.kind == KindPut || cmd.kind == KindRefresh {
		return optimistic, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	type outcome struct {
		item wishlist.Item
		err  error
	}
	ch := make(chan outcome, 1)
	go func() {
		var out outcome
		switch cmd.kind {
		case KindAdd:
			out.item, out.err = e.remote.Add(callCtx, cmd.add)
		case KindUpdate:
			out.item, out.err = e.remote.Update(callCtx, cmd.productID, cmd.patch)
		case KindRemove:
			out.err = e.remote.Remove(callCtx, cmd.productID)
		}
		ch <- out
	}()

	select {
	case out := <-ch:
		if out.err != nil {
			return wishlist.Item{}, callError(callCtx, out.err, "wishlist "+cmd.kind)
		}
		return out.item, nil
	case <-callCtx.Done():
		return wishlist.Item{}, callError(callCtx, callCtx.Err(), "wishlist "+cmd.kind)
	}
}

// RefreshCatalog pulls live product data for every item, writes the
// engine-owned fields through the command protocol and dispatches the
// notification conditions that just fired.
func (e *Engine) RefreshCatalog(ctx context.Context) ([]notify.Transition, error) {
	if e.catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "no catalog source configured")
	}
	items := e.Items()
	if len(items) == 0 {
		return nil, nil
	}
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	snapshots, err := e.catalog.CatalogSnapshot(callCtx, ids)
	if err != nil {
		err = callError(callCtx, err, "fetch catalog snapshot")
	}
	cancel()
	if err != nil {
		return nil, err
	}

	owner := e.OwnerKey()
	var (
		fired []notify.Transition
		errs  error
	)
	for _, snap := range snapshots {
		res := e.submit(ctx, command{kind: KindRefresh, productID: snap.ProductID, snapshot: snap})
		if res.err != nil {
			if pkgerrors.IsCode(res.err, pkgerrors.CodeNotFound) {
				continue
			}
			errs = multierr.Append(errs, res.err)
			continue
		}
		for _, transition := range res.transitions {
			fired = append(fired, transition)
			e.metrics.IncNotification(string(transition.Kind))
			if e.dispatcher == nil {
				continue
			}
			if err := e.dispatcher.Dispatch(ctx, owner, transition); err != nil {
				e.logg.Error(e.logg.WithField(ctx, "product_id", transition.ProductID), "dispatch wishlist notification", err)
				errs = multierr.Append(errs, err)
			}
		}
	}
	return fired, errs
}
