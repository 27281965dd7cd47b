package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ticket-ledger-engine/ledger"
	"ticket-ledger-engine/model"
	"ticket-ledger-engine/settlement"
	"ticket-ledger-engine/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		PollInterval:    5 * time.Millisecond,
		Deadline:        2 * time.Second,
		MaxAttempts:     3,
		BaseBackoff:     time.Millisecond,
		ReconcileWindow: 500 * time.Millisecond,
	}
}

type fixture struct {
	coord    *Coordinator
	sim      *settlement.Sim
	registry *ledger.Registry
	ledger   *ledger.Ledger
	actions  ActionStore
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	registry, lg, err := ledger.New(context.Background(), store.NewMemory())
	require.NoError(t, err)

	sim := settlement.NewSim(false, 0)
	actions := NewMemoryActions()
	return &fixture{
		coord:    New(sim, registry, lg, actions, nil, cfg),
		sim:      sim,
		registry: registry,
		ledger:   lg,
		actions:  actions,
	}
}

func (f *fixture) onSaleEvent(t *testing.T, supply uint64) *model.Event {
	t.Helper()
	ctx := context.Background()
	ev, err := f.registry.CreateEvent(ctx, &model.EventSpec{
		Name:         "Midnight Sessions",
		Venue:        "Warehouse 9",
		ScheduledAt:  time.Now().Add(48 * time.Hour),
		TotalSupply:  supply,
		MaxPrice:     1000,
		Transferable: true,
	})
	require.NoError(t, err)
	require.NoError(t, f.registry.Activate(ctx, ev.ID))
	return ev
}

func waitResolved(t *testing.T, coord *Coordinator, id string) *model.PendingAction {
	t.Helper()
	ch, err := coord.Subscribe(context.Background(), id)
	require.NoError(t, err)
	select {
	case a := <-ch:
		require.NotNil(t, a)
		return a
	case <-time.After(3 * time.Second):
		t.Fatalf("action %s did not resolve in time", id)
		return nil
	}
}

func TestCreateEventConfirmsIntoOnSale(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()

	spec := &model.EventSpec{
		Name:        "Midnight Sessions",
		Venue:       "Warehouse 9",
		ScheduledAt: time.Now().Add(48 * time.Hour),
		TotalSupply: 2,
		MaxPrice:    1000,
	}
	a, err := f.coord.CreateEvent(ctx, "organizer", spec, "")
	require.NoError(t, err)
	assert.Equal(t, model.ActionSubmitted, a.Status)
	assert.NotEmpty(t, a.Handle)

	// the event exists but is not on sale until the action confirms
	ev, err := f.registry.Event(a.EventID)
	require.NoError(t, err)
	assert.Equal(t, model.EventDraft, ev.State)

	f.sim.Confirm(f.sim.LastHandle())
	resolved := waitResolved(t, f.coord, a.ID)
	assert.Equal(t, model.ActionConfirmed, resolved.Status)

	ev, err = f.registry.Event(a.EventID)
	require.NoError(t, err)
	assert.Equal(t, model.EventOnSale, ev.State)
}

func TestCreateEventFailureAbortsDraft(t *testing.T) {
	f := newFixture(t, testConfig())

	a, err := f.coord.CreateEvent(context.Background(), "organizer", &model.EventSpec{
		Name:        "Doomed Show",
		Venue:       "Nowhere",
		ScheduledAt: time.Now().Add(time.Hour),
		TotalSupply: 1,
	}, "")
	require.NoError(t, err)

	f.sim.Fail(f.sim.LastHandle(), "rejected by network")
	resolved := waitResolved(t, f.coord, a.ID)
	assert.Equal(t, model.ActionFailed, resolved.Status)
	assert.Equal(t, "rejected by network", resolved.FailReason)

	ev, err := f.registry.Event(a.EventID)
	require.NoError(t, err)
	assert.Equal(t, model.EventCancelled, ev.State)
}

func TestPurchaseConfirmsOwnership(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	ev := f.onSaleEvent(t, 2)

	a, err := f.coord.Purchase(ctx, ev.ID, "alice", 400, "")
	require.NoError(t, err)
	assert.Equal(t, model.ActionPurchase, a.Kind)

	f.sim.Confirm(f.sim.LastHandle())
	resolved := waitResolved(t, f.coord, a.ID)
	require.Equal(t, model.ActionConfirmed, resolved.Status)

	tk, err := f.ledger.Ticket(a.TicketID)
	require.NoError(t, err)
	assert.Equal(t, model.TicketOwned, tk.State)
	assert.Equal(t, "alice", tk.Owner)
	assert.Equal(t, uint64(400), tk.PriceSettled)

	ev2, err := f.registry.Event(ev.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), ev2.IssuedCount)
	assert.Equal(t, uint64(0), ev2.ReservedCount)
}

func TestPurchaseRejectsOverMaxPrice(t *testing.T) {
	f := newFixture(t, testConfig())
	ev := f.onSaleEvent(t, 1)

	_, err := f.coord.Purchase(context.Background(), ev.ID, "alice", 5000, "")
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "amount", verr.Field)
}

func TestPurchaseRetryIsIdempotent(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	ev := f.onSaleEvent(t, 2)

	a, err := f.coord.Purchase(ctx, ev.ID, "alice", 400, "")
	require.NoError(t, err)

	// a duplicate while the action is in flight returns the same action
	// and holds no second reservation
	dup, err := f.coord.Purchase(ctx, ev.ID, "alice", 400, "")
	require.NoError(t, err)
	assert.Equal(t, a.ID, dup.ID)

	ev2, err := f.registry.Event(ev.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), ev2.ReservedCount)

	f.sim.Confirm(f.sim.LastHandle())
	waitResolved(t, f.coord, a.ID)

	// a retry after confirmation returns the settled action, not a new sale
	replay, err := f.coord.Purchase(ctx, ev.ID, "alice", 400, "")
	require.NoError(t, err)
	assert.Equal(t, a.ID, replay.ID)
	assert.Equal(t, model.ActionConfirmed, replay.Status)

	ev2, err = f.registry.Event(ev.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), ev2.IssuedCount)
}

// laggyActions widens the window between key lookup and claim, the way the
// production redis store does with a network round trip in between.
type laggyActions struct {
	*MemoryActions
	delay time.Duration
}

func (s *laggyActions) GetByKey(ctx context.Context, key string) (*model.PendingAction, error) {
	time.Sleep(s.delay)
	return s.MemoryActions.GetByKey(ctx, key)
}

func TestConcurrentSameKeyPurchasesYieldOneAction(t *testing.T) {
	registry, lg, err := ledger.New(context.Background(), store.NewMemory())
	require.NoError(t, err)
	sim := settlement.NewSim(false, 0)
	coord := New(sim, registry, lg, &laggyActions{MemoryActions: NewMemoryActions(), delay: 2 * time.Millisecond}, nil, testConfig())

	ctx := context.Background()
	ev, err := registry.CreateEvent(ctx, &model.EventSpec{
		Name:        "Encore Night",
		Venue:       "Warehouse 9",
		ScheduledAt: time.Now().Add(48 * time.Hour),
		TotalSupply: 2,
		MaxPrice:    1000,
	})
	require.NoError(t, err)
	require.NoError(t, registry.Activate(ctx, ev.ID))

	type submission struct {
		action *model.PendingAction
		err    error
	}
	const submitters = 2
	results := make(chan submission, submitters)
	var wg sync.WaitGroup
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := coord.Purchase(ctx, ev.ID, "alice", 400, "pay-once")
			results <- submission{a, err}
		}()
	}
	wg.Wait()
	close(results)

	ids := make(map[string]bool)
	var won *model.PendingAction
	for r := range results {
		require.NoError(t, r.err)
		ids[r.action.ID] = true
		won = r.action
	}
	require.Len(t, ids, 1, "one idempotency key must map to one pending action")

	// exactly one slot is held for the single intent
	ev2, err := registry.Event(ev.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), ev2.ReservedCount)

	sim.Confirm(sim.LastHandle())
	resolved := waitResolved(t, coord, won.ID)
	require.Equal(t, model.ActionConfirmed, resolved.Status)

	// one intent, one issuance
	ev2, err = registry.Event(ev.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), ev2.IssuedCount)
	assert.Equal(t, uint64(0), ev2.ReservedCount)
}

func TestPurchaseFailureReleasesSlotAndKey(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	ev := f.onSaleEvent(t, 1)

	a, err := f.coord.Purchase(ctx, ev.ID, "alice", 400, "")
	require.NoError(t, err)

	f.sim.Fail(f.sim.LastHandle(), "insufficient funds")
	resolved := waitResolved(t, f.coord, a.ID)
	assert.Equal(t, model.ActionFailed, resolved.Status)

	tk, err := f.ledger.Ticket(a.TicketID)
	require.NoError(t, err)
	assert.Equal(t, model.TicketUnissued, tk.State)

	// the failed attempt released its idempotency key
	retry, err := f.coord.Purchase(ctx, ev.ID, "alice", 400, "")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, retry.ID)
	assert.Equal(t, model.ActionSubmitted, retry.Status)
}

func TestSubmitRetriesTransientErrors(t *testing.T) {
	f := newFixture(t, testConfig())
	ev := f.onSaleEvent(t, 1)

	f.sim.PushSubmitError(settlement.Transient(errors.New("connection reset")))
	f.sim.PushSubmitError(settlement.Transient(errors.New("connection reset")))

	a, err := f.coord.Purchase(context.Background(), ev.ID, "alice", 400, "")
	require.NoError(t, err)
	assert.Equal(t, 3, a.Attempts)
}

func TestSubmitExhaustionRollsBack(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	ev := f.onSaleEvent(t, 1)

	for i := 0; i < 3; i++ {
		f.sim.PushSubmitError(settlement.Transient(errors.New("connection reset")))
	}

	_, err := f.coord.Purchase(ctx, ev.ID, "alice", 400, "")
	var serr *model.SettlementError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, 3, serr.Attempts)

	stored, err := f.coord.Action(ctx, serr.ActionID)
	require.NoError(t, err)
	assert.Equal(t, model.ActionFailed, stored.Status)

	// the reservation was rolled back, the slot is sellable again
	ev2, err := f.registry.Event(ev.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), ev2.ReservedCount)
	_, err = f.coord.Purchase(ctx, ev.ID, "bob", 400, "")
	require.NoError(t, err)
}

func TestSubmitPermanentErrorFailsFast(t *testing.T) {
	f := newFixture(t, testConfig())
	ev := f.onSaleEvent(t, 1)

	f.sim.PushSubmitError(errors.New("malformed transaction"))

	_, err := f.coord.Purchase(context.Background(), ev.ID, "alice", 400, "")
	var serr *model.SettlementError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, 1, serr.Attempts)
}

func TestTimeoutRollsBackAndLateConfirmIsInconsistency(t *testing.T) {
	cfg := testConfig()
	cfg.Deadline = 30 * time.Millisecond
	f := newFixture(t, cfg)
	ctx := context.Background()
	ev := f.onSaleEvent(t, 1)

	a, err := f.coord.Purchase(ctx, ev.ID, "alice", 400, "")
	require.NoError(t, err)

	resolved := waitResolved(t, f.coord, a.ID)
	assert.Equal(t, model.ActionTimedOut, resolved.Status)

	tk, err := f.ledger.Ticket(a.TicketID)
	require.NoError(t, err)
	assert.Equal(t, model.TicketUnissued, tk.State)

	// the backend settles after the local rollback; the confirmation can no
	// longer be applied and must surface as an inconsistency
	f.sim.Confirm(settlement.Handle(a.Handle))

	require.Eventually(t, func() bool {
		stored, err := f.coord.Action(ctx, a.ID)
		return err == nil && stored.Inconsistent
	}, 2*time.Second, 10*time.Millisecond)

	stored, err := f.coord.Action(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ActionTimedOut, stored.Status)
	assert.Contains(t, stored.FailReason, "confirmed after local timeout")

	// the ledger was not mutated by the late confirmation
	tk, err = f.ledger.Ticket(a.TicketID)
	require.NoError(t, err)
	assert.Equal(t, model.TicketUnissued, tk.State)
}

func TestTwoBuyersOneTicket(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	ev := f.onSaleEvent(t, 1)

	type outcome struct {
		action *model.PendingAction
		err    error
	}
	results := make(chan outcome, 2)
	var wg sync.WaitGroup
	for _, buyer := range []string{"alice", "bob"} {
		wg.Add(1)
		go func(buyer string) {
			defer wg.Done()
			a, err := f.coord.Purchase(ctx, ev.ID, buyer, 400, "")
			results <- outcome{a, err}
		}(buyer)
	}
	wg.Wait()
	close(results)

	var winner *model.PendingAction
	losers := 0
	for r := range results {
		if r.err != nil {
			var soldOut *model.SoldOutError
			assert.ErrorAs(t, r.err, &soldOut)
			losers++
			continue
		}
		winner = r.action
	}
	require.NotNil(t, winner, "exactly one buyer must win the slot")
	assert.Equal(t, 1, losers)

	f.sim.Confirm(settlement.Handle(winner.Handle))
	resolved := waitResolved(t, f.coord, winner.ID)
	require.Equal(t, model.ActionConfirmed, resolved.Status)

	tk, err := f.ledger.Ticket(winner.TicketID)
	require.NoError(t, err)
	assert.Equal(t, model.TicketOwned, tk.State)
	assert.Equal(t, winner.Actor, tk.Owner)
}

func TestTransferAndRedeemLifecycle(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	ev := f.onSaleEvent(t, 1)

	buy, err := f.coord.Purchase(ctx, ev.ID, "alice", 400, "")
	require.NoError(t, err)
	f.sim.Confirm(f.sim.LastHandle())
	waitResolved(t, f.coord, buy.ID)

	xfer, err := f.coord.Transfer(ctx, buy.TicketID, "alice", "bob", "")
	require.NoError(t, err)
	f.sim.Confirm(f.sim.LastHandle())
	waitResolved(t, f.coord, xfer.ID)

	tk, err := f.ledger.Ticket(buy.TicketID)
	require.NoError(t, err)
	assert.Equal(t, "bob", tk.Owner)

	// alice no longer owns the ticket, her transfer intent must fail fast
	_, err = f.coord.Transfer(ctx, buy.TicketID, "alice", "carol", "")
	var nerr *model.NotOwnerError
	assert.ErrorAs(t, err, &nerr)

	redeem, err := f.coord.Redeem(ctx, buy.TicketID, "bob", "")
	require.NoError(t, err)
	f.sim.Confirm(f.sim.LastHandle())
	resolved := waitResolved(t, f.coord, redeem.ID)
	require.Equal(t, model.ActionConfirmed, resolved.Status)

	tk, err = f.ledger.Ticket(buy.TicketID)
	require.NoError(t, err)
	assert.Equal(t, model.TicketUsed, tk.State)

	// re-presenting the same ticket returns the original redemption
	replay, err := f.coord.Redeem(ctx, buy.TicketID, "bob", "")
	require.NoError(t, err)
	assert.Equal(t, redeem.ID, replay.ID)
	assert.Equal(t, model.ActionConfirmed, replay.Status)

	// a different presenter gets a hard error
	_, err = f.coord.Redeem(ctx, buy.TicketID, "mallory", "")
	var serr *model.InvalidStateError
	assert.ErrorAs(t, err, &serr)
}

func TestCancelBeforeConfirmStillCommits(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	ev := f.onSaleEvent(t, 1)

	a, err := f.coord.Purchase(ctx, ev.ID, "alice", 400, "")
	require.NoError(t, err)

	marked, err := f.coord.Cancel(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, marked.CancelRequested)

	// the slot stays held: a racing confirmation must not find it reissued
	ev2, err := f.registry.Event(ev.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), ev2.ReservedCount)

	f.sim.Confirm(f.sim.LastHandle())
	resolved := waitResolved(t, f.coord, a.ID)
	assert.Equal(t, model.ActionConfirmed, resolved.Status)

	tk, err := f.ledger.Ticket(a.TicketID)
	require.NoError(t, err)
	assert.Equal(t, model.TicketOwned, tk.State)
}

func TestRestoreRollsBackUnsubmittedActions(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()

	ev, err := f.registry.CreateEvent(ctx, &model.EventSpec{
		Name:        "Interrupted Launch",
		Venue:       "Warehouse 9",
		ScheduledAt: time.Now().Add(time.Hour),
		TotalSupply: 1,
	})
	require.NoError(t, err)

	// persisted before its submission completed, as after a crash mid-launch
	stale := &model.PendingAction{
		ID:             "act_stale",
		Kind:           model.ActionCreateEvent,
		IdempotencyKey: "create:organizer:Interrupted Launch:1",
		Status:         model.ActionSubmitted,
		Actor:          "organizer",
		EventID:        ev.ID,
		SubmittedAt:    time.Now().UTC(),
	}
	require.NoError(t, f.actions.Put(ctx, stale))

	require.NoError(t, f.coord.Restore(ctx))

	stored, err := f.coord.Action(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ActionFailed, stored.Status)

	ev2, err := f.registry.Event(ev.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EventCancelled, ev2.State)
}

func TestRestoreResumesPolling(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	ev := f.onSaleEvent(t, 1)

	ticketID, err := f.registry.ReserveNextTicket(ctx, ev.ID)
	require.NoError(t, err)
	handle, err := f.sim.Submit(ctx, settlement.Action{
		Kind:     model.ActionPurchase,
		Nonce:    "purchase:1:alice",
		EventID:  ev.ID,
		TicketID: ticketID,
		Actor:    "alice",
		Amount:   400,
	})
	require.NoError(t, err)

	inflight := &model.PendingAction{
		ID:             "act_inflight",
		Kind:           model.ActionPurchase,
		IdempotencyKey: "purchase:1:alice",
		Handle:         string(handle),
		Status:         model.ActionSubmitted,
		Actor:          "alice",
		EventID:        ev.ID,
		TicketID:       ticketID,
		Amount:         400,
		SubmittedAt:    time.Now().UTC(),
	}
	require.NoError(t, f.actions.Put(ctx, inflight))

	require.NoError(t, f.coord.Restore(ctx))
	f.sim.Confirm(handle)

	require.Eventually(t, func() bool {
		stored, err := f.coord.Action(ctx, inflight.ID)
		return err == nil && stored.Status == model.ActionConfirmed
	}, 2*time.Second, 10*time.Millisecond)

	tk, err := f.ledger.Ticket(ticketID)
	require.NoError(t, err)
	assert.Equal(t, model.TicketOwned, tk.State)
	assert.Equal(t, "alice", tk.Owner)
}

func TestActionNotFound(t *testing.T) {
	f := newFixture(t, testConfig())

	_, err := f.coord.Action(context.Background(), "act_missing")
	var nferr *model.NotFoundError
	assert.ErrorAs(t, err, &nferr)

	_, err = f.coord.Subscribe(context.Background(), "act_missing")
	assert.ErrorAs(t, err, &nferr)
}
