// Package ledger is the authoritative core of the ticket engine: the event
// registry (supply accounting and issuance) and the ticket ledger (ownership
// movement). State lives in memory and is written through to a store; every
// mutation is applied as a single commit, either fully visible or not at all.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"ticket-ledger-engine/model"
	"ticket-ledger-engine/store"
)

// core holds the shared state behind the Registry and the Ledger.
//
// Locking protocol: mu guards map membership, id counters and record pointer
// swaps. A per-event mutex is the exclusive section for supply transitions
// (reserve, commit, release, activate, cancel). A per-ticket mutex serializes
// ownership transitions (transfer, redeem), which never contend on supply.
// Records are never mutated in place: a mutation copies the record, persists
// the copy, then swaps the pointer under mu.
type core struct {
	mu      sync.RWMutex
	events  map[uint64]*model.Event
	tickets map[uint64]*model.Ticket
	byEvent map[uint64][]uint64
	evMu    map[uint64]*sync.Mutex
	tkMu    map[uint64]*sync.Mutex

	nextEventID  uint64
	nextTicketID uint64

	store store.Store
}

// New loads all persisted records and returns the registry and ledger views
// over the shared core.
func New(ctx context.Context, st store.Store) (*Registry, *Ledger, error) {
	c := &core{
		events:       make(map[uint64]*model.Event),
		tickets:      make(map[uint64]*model.Ticket),
		byEvent:      make(map[uint64][]uint64),
		evMu:         make(map[uint64]*sync.Mutex),
		tkMu:         make(map[uint64]*sync.Mutex),
		nextEventID:  1,
		nextTicketID: 1,
		store:        st,
	}

	evs, err := st.LoadEvents(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("new: error loading events: %w", err)
	}
	for _, ev := range evs {
		c.events[ev.ID] = ev
		c.evMu[ev.ID] = &sync.Mutex{}
		if ev.ID >= c.nextEventID {
			c.nextEventID = ev.ID + 1
		}
	}

	tks, err := st.LoadTickets(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("new: error loading tickets: %w", err)
	}
	for _, t := range tks {
		c.tickets[t.ID] = t
		c.tkMu[t.ID] = &sync.Mutex{}
		c.byEvent[t.EventID] = append(c.byEvent[t.EventID], t.ID)
		if t.ID >= c.nextTicketID {
			c.nextTicketID = t.ID + 1
		}
	}
	// slot order is creation order, which is id order
	for id := range c.byEvent {
		sort.Slice(c.byEvent[id], func(i, j int) bool { return c.byEvent[id][i] < c.byEvent[id][j] })
	}

	return &Registry{c: c}, &Ledger{c: c}, nil
}

func (c *core) eventLock(id uint64) (*sync.Mutex, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.evMu[id]
	return l, ok
}

func (c *core) ticketLock(id uint64) (*sync.Mutex, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.tkMu[id]
	return l, ok
}

// snapshotEvent returns a private copy of the event record.
func (c *core) snapshotEvent(id uint64) (*model.Event, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ev, ok := c.events[id]
	if !ok {
		return nil, false
	}
	cp := *ev
	return &cp, true
}

// snapshotTicket returns a private copy of the ticket record.
func (c *core) snapshotTicket(id uint64) (*model.Ticket, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tickets[id]
	if !ok {
		return nil, false
	}
	cp := *t
	return &cp, true
}

func (c *core) slots(eventID uint64) []uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]uint64, len(c.byEvent[eventID]))
	copy(ids, c.byEvent[eventID])
	return ids
}

// commit persists the updated copies and swaps them in. The caller must hold
// the locks that serialize the transition it is committing.
func (c *core) commit(ctx context.Context, ev *model.Event, tks ...*model.Ticket) error {
	if err := c.store.Save(ctx, ev, tks...); err != nil {
		return fmt.Errorf("commit: error persisting records: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if ev != nil {
		if _, ok := c.evMu[ev.ID]; !ok {
			c.evMu[ev.ID] = &sync.Mutex{}
		}
		c.events[ev.ID] = ev
	}
	for _, t := range tks {
		if _, ok := c.tkMu[t.ID]; !ok {
			c.tkMu[t.ID] = &sync.Mutex{}
			c.byEvent[t.EventID] = append(c.byEvent[t.EventID], t.ID)
		}
		c.tickets[t.ID] = t
	}
	return nil
}
