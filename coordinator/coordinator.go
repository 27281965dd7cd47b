// Package coordinator bridges intents to the settlement backend. Every
// intent becomes a pending action with an idempotency key; the action is
// submitted with bounded retries, polled until the backend resolves it, and
// the corresponding ledger commit or rollback is applied exactly once.
package coordinator

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	ctxc "ticket-ledger-engine/context"
	"ticket-ledger-engine/ledger"
	"ticket-ledger-engine/logger"
	"ticket-ledger-engine/model"
	"ticket-ledger-engine/monitoring"
	"ticket-ledger-engine/settlement"
)

type Config struct {
	PollInterval    time.Duration
	Deadline        time.Duration
	MaxAttempts     int
	BaseBackoff     time.Duration
	ReconcileWindow time.Duration
}

// Invalidator receives cache invalidation signals when a resolution touches
// an entity. The query facade implements it.
type Invalidator interface {
	InvalidateEvent(ctx context.Context, eventID uint64)
	InvalidateTicket(ctx context.Context, ticketID uint64)
	InvalidateAccount(ctx context.Context, account string)
}

type Coordinator struct {
	backend     settlement.Backend
	registry    *ledger.Registry
	ledger      *ledger.Ledger
	actions     ActionStore
	invalidator Invalidator
	cfg         Config

	mu       sync.Mutex
	live     map[string]*model.PendingAction
	waiters  map[string][]chan *model.PendingAction
	keyLocks map[string]*sync.Mutex
}

func New(backend settlement.Backend, registry *ledger.Registry, lg *ledger.Ledger, actions ActionStore, invalidator Invalidator, cfg Config) *Coordinator {
	return &Coordinator{
		backend:     backend,
		registry:    registry,
		ledger:      lg,
		actions:     actions,
		invalidator: invalidator,
		cfg:         cfg,
		live:        make(map[string]*model.PendingAction),
		waiters:     make(map[string][]chan *model.PendingAction),
		keyLocks:    make(map[string]*sync.Mutex),
	}
}

// CreateEvent materializes the event in Draft and submits the creation for
// settlement; the event goes on sale when the action confirms.
func (c *Coordinator) CreateEvent(ctx context.Context, actor string, spec *model.EventSpec, idemKey string) (*model.PendingAction, error) {
	if actor == "" {
		return nil, &model.ValidationError{Field: "actor", Reason: "must not be empty"}
	}
	if spec == nil {
		return nil, &model.ValidationError{Field: "event", Reason: "missing event spec"}
	}
	key := idemKey
	if key == "" {
		key = fmt.Sprintf("create:%s:%s:%d", actor, spec.Name, spec.ScheduledAt.Unix())
	}
	unlock := c.lockKey(key)
	if existing := c.lookupExisting(ctx, key); existing != nil {
		unlock()
		return existing, nil
	}

	ev, err := c.registry.CreateEvent(ctx, spec)
	if err != nil {
		unlock()
		return nil, err
	}

	a := c.newAction(model.ActionCreateEvent, key, actor)
	a.EventID = ev.ID
	if err := c.register(ctx, a); err != nil {
		unlock()
		return nil, err
	}
	unlock()
	return c.launch(ctx, a, settlement.Action{
		Kind:      a.Kind,
		Nonce:     key,
		EventID:   ev.ID,
		Actor:     actor,
		Encrypted: ev.Encrypted,
	})
}

// Purchase reserves the next slot of the event and submits the purchase.
// The reservation is held only while the action is pending and is released
// on failure or timeout. The backend is never called while the per-event
// exclusive section is held.
func (c *Coordinator) Purchase(ctx context.Context, eventID uint64, buyer string, amount uint64, idemKey string) (*model.PendingAction, error) {
	if buyer == "" {
		return nil, &model.ValidationError{Field: "buyer", Reason: "must not be empty"}
	}
	ev, err := c.registry.Event(eventID)
	if err != nil {
		return nil, err
	}
	if amount > ev.MaxPrice {
		return nil, &model.ValidationError{Field: "amount", Reason: fmt.Sprintf("exceeds event max price %d", ev.MaxPrice)}
	}

	key := idemKey
	if key == "" {
		key = fmt.Sprintf("purchase:%d:%s", eventID, buyer)
	}
	unlock := c.lockKey(key)
	if existing := c.lookupExisting(ctx, key); existing != nil {
		unlock()
		return existing, nil
	}

	ticketID, err := c.registry.ReserveNextTicket(ctx, eventID)
	if err != nil {
		unlock()
		monitoring.RecordReservation("rejected")
		return nil, err
	}
	monitoring.RecordReservation("granted")

	a := c.newAction(model.ActionPurchase, key, buyer)
	a.EventID = eventID
	a.TicketID = ticketID
	a.Amount = amount
	if err := c.register(ctx, a); err != nil {
		unlock()
		return nil, err
	}
	unlock()
	return c.launch(ctx, a, settlement.Action{
		Kind:      a.Kind,
		Nonce:     key,
		EventID:   eventID,
		TicketID:  ticketID,
		Actor:     buyer,
		Amount:    amount,
		Encrypted: ev.Encrypted,
	})
}

// Transfer submits an ownership move. Preconditions are checked up front so
// a doomed intent never reaches the backend, and re-checked at apply time.
func (c *Coordinator) Transfer(ctx context.Context, ticketID uint64, from, to, idemKey string) (*model.PendingAction, error) {
	if from == "" {
		return nil, &model.ValidationError{Field: "from", Reason: "must not be empty"}
	}
	if err := c.ledger.ValidateTransfer(ticketID, from, to); err != nil {
		return nil, err
	}

	key := idemKey
	if key == "" {
		key = fmt.Sprintf("transfer:%d:%s:%s", ticketID, from, to)
	}
	unlock := c.lockKey(key)
	if existing := c.lookupExisting(ctx, key); existing != nil {
		unlock()
		return existing, nil
	}

	t, err := c.ledger.Ticket(ticketID)
	if err != nil {
		unlock()
		return nil, err
	}
	ev, err := c.registry.Event(t.EventID)
	if err != nil {
		unlock()
		return nil, err
	}

	a := c.newAction(model.ActionTransfer, key, from)
	a.EventID = t.EventID
	a.TicketID = ticketID
	a.To = to
	if err := c.register(ctx, a); err != nil {
		unlock()
		return nil, err
	}
	unlock()
	return c.launch(ctx, a, settlement.Action{
		Kind:      a.Kind,
		Nonce:     key,
		EventID:   t.EventID,
		TicketID:  ticketID,
		Actor:     from,
		To:        to,
		Encrypted: ev.Encrypted,
	})
}

// Redeem submits a redemption. Redeeming an already used ticket by the same
// actor returns the original action instead of erroring twice.
func (c *Coordinator) Redeem(ctx context.Context, ticketID uint64, by, idemKey string) (*model.PendingAction, error) {
	if by == "" {
		return nil, &model.ValidationError{Field: "by", Reason: "must not be empty"}
	}

	key := idemKey
	if key == "" {
		key = fmt.Sprintf("redeem:%d:%s", ticketID, by)
	}

	unlock := c.lockKey(key)
	alreadyUsed, err := c.ledger.ValidateRedeem(ticketID, by)
	if err != nil {
		unlock()
		return nil, err
	}
	if alreadyUsed {
		unlock()
		if original, err := c.actions.GetByKey(ctx, key); err == nil {
			return original, nil
		}
		// redeemed under a caller-supplied key we cannot derive
		return nil, &model.InvalidStateError{Entity: "ticket", ID: ticketID, State: string(model.TicketUsed), Attempted: "redeem without original action"}
	}
	if existing := c.lookupExisting(ctx, key); existing != nil {
		unlock()
		return existing, nil
	}

	t, err := c.ledger.Ticket(ticketID)
	if err != nil {
		unlock()
		return nil, err
	}
	ev, err := c.registry.Event(t.EventID)
	if err != nil {
		unlock()
		return nil, err
	}

	a := c.newAction(model.ActionRedeem, key, by)
	a.EventID = t.EventID
	a.TicketID = ticketID
	if err := c.register(ctx, a); err != nil {
		unlock()
		return nil, err
	}
	unlock()
	return c.launch(ctx, a, settlement.Action{
		Kind:      a.Kind,
		Nonce:     key,
		EventID:   t.EventID,
		TicketID:  ticketID,
		Actor:     by,
		Encrypted: ev.Encrypted,
	})
}

// Action returns the stored record for the pending action id.
func (c *Coordinator) Action(ctx context.Context, id string) (*model.PendingAction, error) {
	return c.actions.Get(ctx, id)
}

// Subscribe returns a channel that delivers the action once it resolves and
// is then closed. An already resolved action is delivered immediately.
func (c *Coordinator) Subscribe(ctx context.Context, id string) (<-chan *model.PendingAction, error) {
	a, err := c.actions.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	ch := make(chan *model.PendingAction, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if a.Resolved() {
		ch <- a
		close(ch)
		return ch, nil
	}
	c.waiters[id] = append(c.waiters[id], ch)
	return ch, nil
}

// Cancel marks a pending action for rollback. The reserved state is not
// freed here: the action must first resolve on the backend, otherwise a
// confirmation racing the cancellation could reissue an already spent slot.
func (c *Coordinator) Cancel(ctx context.Context, id string) (*model.PendingAction, error) {
	c.mu.Lock()
	if a, ok := c.live[id]; ok {
		a.CancelRequested = true
		cp := *a
		c.mu.Unlock()
		if err := c.actions.Update(ctx, &cp); err != nil {
			return nil, fmt.Errorf("cancel: %w", err)
		}
		logger.Infof(ctx, "cancel: action %s marked for rollback, awaiting backend resolution", id)
		return &cp, nil
	}
	c.mu.Unlock()
	return c.actions.Get(ctx, id)
}

// Restore reloads unresolved actions after a restart and resumes polling.
// Actions persisted before their submission completed are rolled back: their
// idempotency key stays honorable, so an honest retry is safe.
func (c *Coordinator) Restore(ctx context.Context) error {
	pending, err := c.actions.Pending(ctx)
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}

	for _, a := range pending {
		if a.Handle == "" {
			logger.Warnf(ctx, "restore: action %s has no settlement handle, rolling back", a.ID)
			c.rollback(ctx, a)
			c.finish(ctx, a, model.ActionFailed, "submission did not complete before restart", "")
			continue
		}
		c.mu.Lock()
		c.live[a.ID] = a
		c.mu.Unlock()
		monitoring.ActionSubmitted()
		logger.Infof(ctx, "restore: resuming poll for action %s (handle %s)", a.ID, a.Handle)
		go c.poll(a)
	}
	return nil
}

// lockKey serializes intents carrying the same idempotency key, closing the
// window between looking a key up and claiming it: without it two concurrent
// submissions of one key could both miss the lookup and both reserve a slot.
// The lock is held across lookup, ledger pre-mutation and persistence only,
// never across a backend call.
func (c *Coordinator) lockKey(key string) func() {
	c.mu.Lock()
	l, ok := c.keyLocks[key]
	if !ok {
		l = &sync.Mutex{}
		c.keyLocks[key] = l
	}
	c.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// register persists the new action, claiming its idempotency key. The caller
// must hold the key lock. On persistence failure the pre-intent ledger state
// is restored.
func (c *Coordinator) register(ctx context.Context, a *model.PendingAction) error {
	if err := c.actions.Put(ctx, a); err != nil {
		c.rollback(ctx, a)
		return fmt.Errorf("register: error persisting action: %w", err)
	}
	monitoring.ActionSubmitted()
	return nil
}

func (c *Coordinator) lookupExisting(ctx context.Context, key string) *model.PendingAction {
	a, err := c.actions.GetByKey(ctx, key)
	if err != nil {
		return nil
	}
	// a failed or timed out attempt releases the key for a fresh action
	if a.Status == model.ActionFailed || a.Status == model.ActionTimedOut {
		return nil
	}
	return a
}

func (c *Coordinator) newAction(kind model.ActionKind, key, actor string) *model.PendingAction {
	return &model.PendingAction{
		ID:             newActionID(),
		Kind:           kind,
		IdempotencyKey: key,
		Status:         model.ActionSubmitted,
		Actor:          actor,
		SubmittedAt:    time.Now().UTC(),
	}
}

// launch submits the registered action with bounded backoff and starts the
// poll loop. A submission that exhausts its retry budget rolls the ledger
// back to the pre-intent state and surfaces a SettlementError.
func (c *Coordinator) launch(ctx context.Context, a *model.PendingAction, action settlement.Action) (*model.PendingAction, error) {
	if err := c.submitWithRetry(ctx, a, action); err != nil {
		c.rollback(ctx, a)
		serr := &model.SettlementError{ActionID: a.ID, Attempts: a.Attempts, Err: err}
		c.finish(ctx, a, model.ActionFailed, serr.Error(), "")
		return nil, serr
	}

	if err := c.actions.Update(ctx, a); err != nil {
		logger.Errorf(ctx, "launch: error persisting handle for action %s: %v", a.ID, err)
	}

	c.mu.Lock()
	c.live[a.ID] = a
	cp := *a
	c.mu.Unlock()
	go c.poll(a)

	return &cp, nil
}

func (c *Coordinator) submitWithRetry(ctx context.Context, a *model.PendingAction, action settlement.Action) error {
	backoff := c.cfg.BaseBackoff
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		a.Attempts = attempt
		h, err := c.backend.Submit(ctx, action)
		if err == nil {
			a.Handle = string(h)
			return nil
		}
		lastErr = err
		if !settlement.IsTransient(err) {
			return err
		}
		logger.Warnf(ctx, "submit: transient error on attempt %d for action %s: %v", attempt, a.ID, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return lastErr
}

// poll drives one action to resolution. It is the only goroutine that
// resolves the action, which is what makes commit and rollback exactly-once.
func (c *Coordinator) poll(a *model.PendingAction) {
	ctx := ctxc.NewContext(a.ID)
	deadline := a.SubmittedAt.Add(c.cfg.Deadline)
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for range ticker.C {
		st, err := c.backend.PollStatus(ctx, settlement.Handle(a.Handle))
		if err != nil {
			logger.Warnf(ctx, "poll: error polling action %s: %v", a.ID, err)
		} else {
			switch st.State {
			case settlement.StateConfirmed:
				c.resolveConfirmed(ctx, a, st)
				return
			case settlement.StateFailed:
				c.rollback(ctx, a)
				c.finish(ctx, a, model.ActionFailed, st.Reason, "")
				return
			}
		}
		if time.Now().After(deadline) {
			logger.Warnf(ctx, "poll: action %s exceeded settlement deadline, rolling back", a.ID)
			c.rollback(ctx, a)
			c.finish(ctx, a, model.ActionTimedOut, "no backend resolution within deadline", "")
			go c.reconcile(a)
			return
		}
	}
}

// reconcile keeps watching a timed out action for the reconciliation window.
// A late confirmation can no longer be applied: the local rollback already
// released the reserved state, so it is surfaced as an inconsistency for
// manual reconciliation instead.
func (c *Coordinator) reconcile(a *model.PendingAction) {
	ctx := ctxc.NewContext(a.ID)
	until := time.Now().Add(c.cfg.ReconcileWindow)
	ticker := time.NewTicker(c.cfg.PollInterval * 5)
	defer ticker.Stop()

	for range ticker.C {
		if time.Now().After(until) {
			return
		}
		st, err := c.backend.PollStatus(ctx, settlement.Handle(a.Handle))
		if err != nil {
			continue
		}
		if st.State == settlement.StateConfirmed {
			ierr := &model.InconsistencyError{ActionID: a.ID, Detail: "backend confirmed after local timeout rollback"}
			logger.Errorf(ctx, "reconcile: %v", ierr)
			monitoring.RecordInconsistency()

			c.mu.Lock()
			a.Inconsistent = true
			a.FailReason = ierr.Error()
			cp := *a
			c.mu.Unlock()
			if err := c.actions.Update(ctx, &cp); err != nil {
				logger.Errorf(ctx, "reconcile: error persisting inconsistency for action %s: %v", a.ID, err)
			}
			return
		}
		if st.State == settlement.StateFailed {
			return
		}
	}
}

func (c *Coordinator) resolveConfirmed(ctx context.Context, a *model.PendingAction, st settlement.Status) {
	c.mu.Lock()
	cancelled := a.CancelRequested
	c.mu.Unlock()
	if cancelled {
		// the backend settled before the cancellation could take effect;
		// the commit stands, a settled action cannot be unwound locally
		logger.Warnf(ctx, "resolve: action %s confirmed after cancel request, committing anyway", a.ID)
	}

	if err := c.apply(ctx, a, st); err != nil {
		logger.Errorf(ctx, "resolve: error applying confirmed action %s: %v", a.ID, err)
		c.finish(ctx, a, model.ActionFailed, fmt.Sprintf("confirmed but not appliable: %v", err), st.Reference)
		return
	}
	c.finish(ctx, a, model.ActionConfirmed, "", st.Reference)
}

func (c *Coordinator) apply(ctx context.Context, a *model.PendingAction, st settlement.Status) error {
	switch a.Kind {
	case model.ActionCreateEvent:
		if err := c.registry.Activate(ctx, a.EventID); err != nil {
			return err
		}
		c.invalidateEvent(ctx, a.EventID)
	case model.ActionPurchase:
		amount := a.Amount
		if st.Amount > 0 {
			amount = st.Amount
		}
		if err := c.registry.CommitIssuance(ctx, a.TicketID, a.Actor, amount); err != nil {
			return err
		}
		c.mu.Lock()
		a.Amount = amount
		c.mu.Unlock()
		c.invalidateEvent(ctx, a.EventID)
		c.invalidateTicket(ctx, a.TicketID)
		c.invalidateAccount(ctx, a.Actor)
	case model.ActionTransfer:
		if err := c.ledger.ApplyTransfer(ctx, a.TicketID, a.Actor, a.To); err != nil {
			return err
		}
		c.invalidateTicket(ctx, a.TicketID)
		c.invalidateAccount(ctx, a.Actor)
		c.invalidateAccount(ctx, a.To)
	case model.ActionRedeem:
		if err := c.ledger.ApplyRedeem(ctx, a.TicketID, a.Actor); err != nil {
			return err
		}
		c.invalidateTicket(ctx, a.TicketID)
		c.invalidateAccount(ctx, a.Actor)
	}
	return nil
}

func (c *Coordinator) rollback(ctx context.Context, a *model.PendingAction) {
	switch a.Kind {
	case model.ActionCreateEvent:
		if err := c.registry.AbortCreate(ctx, a.EventID); err != nil {
			logger.Errorf(ctx, "rollback: error aborting event %d for action %s: %v", a.EventID, a.ID, err)
		}
		c.invalidateEvent(ctx, a.EventID)
	case model.ActionPurchase:
		if err := c.registry.ReleaseReservation(ctx, a.TicketID); err != nil {
			logger.Errorf(ctx, "rollback: error releasing ticket %d for action %s: %v", a.TicketID, a.ID, err)
		}
		c.invalidateEvent(ctx, a.EventID)
		c.invalidateTicket(ctx, a.TicketID)
	}
	// transfer and redeem mutate nothing before confirmation
}

// finish records the terminal status, notifies subscribers and updates the
// live set. Resolution is recorded exactly once.
func (c *Coordinator) finish(ctx context.Context, a *model.PendingAction, status model.ActionStatus, reason, result string) {
	now := time.Now().UTC()

	c.mu.Lock()
	if a.Resolved() {
		c.mu.Unlock()
		return
	}
	a.Status = status
	a.ResolvedAt = &now
	a.FailReason = reason
	a.Result = result
	cp := *a
	delete(c.live, a.ID)
	waiters := c.waiters[a.ID]
	delete(c.waiters, a.ID)
	c.mu.Unlock()

	if err := c.actions.Update(ctx, &cp); err != nil {
		logger.Errorf(ctx, "finish: error persisting resolution of action %s: %v", a.ID, err)
	}
	monitoring.ActionResolved(string(a.Kind), string(status), a.SubmittedAt)

	for _, ch := range waiters {
		ch <- &cp
		close(ch)
	}
}

func (c *Coordinator) invalidateEvent(ctx context.Context, id uint64) {
	if c.invalidator != nil {
		c.invalidator.InvalidateEvent(ctx, id)
	}
}

func (c *Coordinator) invalidateTicket(ctx context.Context, id uint64) {
	if c.invalidator != nil {
		c.invalidator.InvalidateTicket(ctx, id)
	}
}

func (c *Coordinator) invalidateAccount(ctx context.Context, account string) {
	if c.invalidator != nil {
		c.invalidator.InvalidateAccount(ctx, account)
	}
}

func newActionID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("act_%x", b)
}
