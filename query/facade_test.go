package query

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"ticket-ledger-engine/ledger"
	"ticket-ledger-engine/model"
	"ticket-ledger-engine/store"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFacade(t *testing.T) (*Facade, *ledger.Registry, *ledger.Ledger) {
	t.Helper()
	registry, lg, err := ledger.New(context.Background(), store.NewMemory())
	require.NoError(t, err)
	return NewFacade(registry, lg, nil, 0), registry, lg
}

func seedEvent(t *testing.T, registry *ledger.Registry, activate bool) *model.Event {
	t.Helper()
	ctx := context.Background()
	ev, err := registry.CreateEvent(ctx, &model.EventSpec{
		Name:         "Open Air",
		Venue:        "Riverside",
		ScheduledAt:  time.Now().Add(24 * time.Hour),
		TotalSupply:  2,
		MaxPrice:     300,
		Transferable: true,
	})
	require.NoError(t, err)
	if activate {
		require.NoError(t, registry.Activate(ctx, ev.ID))
	}
	return ev
}

func TestDraftEventsAreInvisible(t *testing.T) {
	facade, registry, _ := newTestFacade(t)
	ctx := context.Background()

	draft := seedEvent(t, registry, false)
	onSale := seedEvent(t, registry, true)

	views, err := facade.ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, onSale.ID, views[0].ID)

	_, err = facade.GetEvent(ctx, draft.ID)
	var nferr *model.NotFoundError
	assert.ErrorAs(t, err, &nferr)

	view, err := facade.GetEvent(ctx, onSale.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EventOnSale, view.State)
}

func TestReservedSlotIsMaskedAsUnissued(t *testing.T) {
	facade, registry, _ := newTestFacade(t)
	ctx := context.Background()

	ev := seedEvent(t, registry, true)
	ticketID, err := registry.ReserveNextTicket(ctx, ev.ID)
	require.NoError(t, err)

	view, err := facade.GetTicket(ctx, ticketID)
	require.NoError(t, err)
	assert.Equal(t, model.TicketUnissued, view.State)
	assert.Empty(t, view.Owner)

	require.NoError(t, registry.CommitIssuance(ctx, ticketID, "alice", 250))

	view, err = facade.GetTicket(ctx, ticketID)
	require.NoError(t, err)
	assert.Equal(t, model.TicketOwned, view.State)
	assert.Equal(t, "alice", view.Owner)
	assert.Equal(t, uint64(250), view.PriceSettled)
}

func TestListTicketsOwnedBy(t *testing.T) {
	facade, registry, _ := newTestFacade(t)
	ctx := context.Background()

	ev := seedEvent(t, registry, true)
	ticketID, err := registry.ReserveNextTicket(ctx, ev.ID)
	require.NoError(t, err)
	require.NoError(t, registry.CommitIssuance(ctx, ticketID, "alice", 250))

	views, err := facade.ListTicketsOwnedBy(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, ticketID, views[0].ID)

	views, err = facade.ListTicketsOwnedBy(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, views)

	_, err = facade.ListTicketsOwnedBy(ctx, "")
	var verr *model.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestGetEventServesFromCache(t *testing.T) {
	registry, lg, err := ledger.New(context.Background(), store.NewMemory())
	require.NoError(t, err)

	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()
	facade := NewFacade(registry, lg, db, 30*time.Second)

	cached := &model.EventView{ID: 9, Name: "Cached Show", State: model.EventOnSale}
	data, err := json.Marshal(cached)
	require.NoError(t, err)
	mock.ExpectGet("view:event:9").SetVal(string(data))

	// the event does not exist in the core, only in the cache
	view, err := facade.GetEvent(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, "Cached Show", view.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheMissFallsThroughAndPopulates(t *testing.T) {
	registry, lg, err := ledger.New(context.Background(), store.NewMemory())
	require.NoError(t, err)

	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()
	facade := NewFacade(registry, lg, db, 30*time.Second)

	ev := seedEvent(t, registry, true)
	ev, err = registry.Event(ev.ID)
	require.NoError(t, err)

	data, err := json.Marshal(ev.View())
	require.NoError(t, err)
	mock.ExpectGet("view:event:1").RedisNil()
	mock.ExpectSet("view:event:1", data, 30*time.Second).SetVal("OK")

	view, err := facade.GetEvent(context.Background(), ev.ID)
	require.NoError(t, err)
	assert.Equal(t, ev.Name, view.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvalidateDropsKeys(t *testing.T) {
	registry, lg, err := ledger.New(context.Background(), store.NewMemory())
	require.NoError(t, err)

	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()
	facade := NewFacade(registry, lg, db, 30*time.Second)

	ctx := context.Background()
	mock.ExpectDel("view:event:3", "view:events").SetVal(2)
	mock.ExpectDel("view:ticket:8").SetVal(1)
	mock.ExpectDel("view:account:alice").SetVal(1)

	facade.InvalidateEvent(ctx, 3)
	facade.InvalidateTicket(ctx, 8)
	facade.InvalidateAccount(ctx, "alice")
	assert.NoError(t, mock.ExpectationsWereMet())
}
