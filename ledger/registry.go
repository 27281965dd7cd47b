package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"ticket-ledger-engine/model"
)

// maxTotalSupply bounds how many ticket slots a single event may materialize.
// Slots are allocated eagerly at creation, so the ceiling also bounds the
// memory cost of one CreateEvent call.
const maxTotalSupply = 1 << 20

// Registry owns event lifecycle and supply accounting. It never talks to the
// settlement backend; Activate, AbortCreate, CommitIssuance and
// ReleaseReservation are invoked by the coordinator when an action resolves.
type Registry struct {
	c *core
}

// CreateEvent validates the spec and materializes the event in Draft state
// together with its ticket slots. The event goes on sale only once the
// coordinator confirms the creation action.
func (r *Registry) CreateEvent(ctx context.Context, spec *model.EventSpec) (*model.Event, error) {
	if err := validateSpec(spec); err != nil {
		return nil, err
	}

	category := spec.Category
	if category == "" {
		category = model.CategoryStandard
	}

	r.c.mu.Lock()
	eventID := r.c.nextEventID
	r.c.nextEventID++
	firstTicketID := r.c.nextTicketID
	r.c.nextTicketID += spec.TotalSupply
	r.c.mu.Unlock()

	now := time.Now().UTC()
	ev := &model.Event{
		ID:           eventID,
		Name:         spec.Name,
		Venue:        spec.Venue,
		Description:  spec.Description,
		ScheduledAt:  spec.ScheduledAt,
		TotalSupply:  spec.TotalSupply,
		MaxPrice:     spec.MaxPrice,
		Category:     category,
		Encrypted:    spec.Encrypted,
		Transferable: spec.Transferable,
		State:        model.EventDraft,
		CreatedAt:    now,
	}

	tickets := make([]*model.Ticket, 0, spec.TotalSupply)
	for i := uint64(0); i < spec.TotalSupply; i++ {
		t := &model.Ticket{
			ID:      firstTicketID + i,
			EventID: eventID,
			State:   model.TicketUnissued,
		}
		if len(spec.SeatLabels) > 0 {
			t.SeatLabel = spec.SeatLabels[i]
		}
		tickets = append(tickets, t)
	}

	if err := r.c.commit(ctx, ev, tickets...); err != nil {
		return nil, fmt.Errorf("createEvent: %w", err)
	}

	cp := *ev
	return &cp, nil
}

// Activate moves a confirmed event from Draft to OnSale.
func (r *Registry) Activate(ctx context.Context, eventID uint64) error {
	lock, ok := r.c.eventLock(eventID)
	if !ok {
		return &model.NotFoundError{Entity: "event", ID: fmt.Sprint(eventID)}
	}
	lock.Lock()
	defer lock.Unlock()

	ev, _ := r.c.snapshotEvent(eventID)
	if ev.State != model.EventDraft {
		return &model.InvalidStateError{Entity: "event", ID: eventID, State: string(ev.State), Attempted: "activate"}
	}

	ev.State = model.EventOnSale
	return r.c.commit(ctx, ev)
}

// AbortCreate cancels a Draft event whose creation action failed to settle.
func (r *Registry) AbortCreate(ctx context.Context, eventID uint64) error {
	lock, ok := r.c.eventLock(eventID)
	if !ok {
		return &model.NotFoundError{Entity: "event", ID: fmt.Sprint(eventID)}
	}
	lock.Lock()
	defer lock.Unlock()

	ev, _ := r.c.snapshotEvent(eventID)
	if ev.State != model.EventDraft {
		return &model.InvalidStateError{Entity: "event", ID: eventID, State: string(ev.State), Attempted: "abort creation"}
	}

	ev.State = model.EventCancelled
	return r.c.commit(ctx, ev)
}

// CancelEvent cancels an event that has seen no issuance activity. Any
// reserved or owned ticket makes the event uncancellable.
func (r *Registry) CancelEvent(ctx context.Context, eventID uint64) error {
	lock, ok := r.c.eventLock(eventID)
	if !ok {
		return &model.NotFoundError{Entity: "event", ID: fmt.Sprint(eventID)}
	}
	lock.Lock()
	defer lock.Unlock()

	ev, _ := r.c.snapshotEvent(eventID)
	if ev.State != model.EventDraft && ev.State != model.EventOnSale {
		return &model.InvalidStateError{Entity: "event", ID: eventID, State: string(ev.State), Attempted: "cancel"}
	}
	if ev.IssuedCount > 0 || ev.ReservedCount > 0 {
		return &model.InvalidStateError{Entity: "event", ID: eventID, State: string(ev.State), Attempted: "cancel with issued or reserved tickets"}
	}

	ev.State = model.EventCancelled
	return r.c.commit(ctx, ev)
}

// ReserveNextTicket atomically picks the first unissued slot, in slot order,
// and marks it reserved. The per-event lock is the only exclusive section on
// the purchase path: no two callers can receive the same slot, and at most
// TotalSupply reservations ever succeed at once.
func (r *Registry) ReserveNextTicket(ctx context.Context, eventID uint64) (uint64, error) {
	lock, ok := r.c.eventLock(eventID)
	if !ok {
		return 0, &model.NotFoundError{Entity: "event", ID: fmt.Sprint(eventID)}
	}
	lock.Lock()
	defer lock.Unlock()

	ev, _ := r.c.snapshotEvent(eventID)
	switch ev.State {
	case model.EventOnSale:
	case model.EventSoldOut:
		return 0, &model.SoldOutError{EventID: eventID}
	default:
		return 0, &model.InvalidStateError{Entity: "event", ID: eventID, State: string(ev.State), Attempted: "reserve ticket"}
	}

	var pick *model.Ticket
	for _, tid := range r.c.slots(eventID) {
		t, _ := r.c.snapshotTicket(tid)
		if t.State == model.TicketUnissued {
			pick = t
			break
		}
	}
	if pick == nil {
		// every remaining slot is held by an in-flight purchase
		return 0, &model.SoldOutError{EventID: eventID}
	}

	pick.State = model.TicketReserved
	ev.ReservedCount++
	if err := r.c.commit(ctx, ev, pick); err != nil {
		return 0, fmt.Errorf("reserveNextTicket: %w", err)
	}

	return pick.ID, nil
}

// CommitIssuance settles a reserved slot into ownership and transitions the
// event to SoldOut the moment the supply is exhausted.
func (r *Registry) CommitIssuance(ctx context.Context, ticketID uint64, owner string, price uint64) error {
	t, ok := r.c.snapshotTicket(ticketID)
	if !ok {
		return &model.NotFoundError{Entity: "ticket", ID: fmt.Sprint(ticketID)}
	}

	lock, _ := r.c.eventLock(t.EventID)
	lock.Lock()
	defer lock.Unlock()

	t, _ = r.c.snapshotTicket(ticketID)
	if t.State != model.TicketReserved {
		return &model.InvalidStateError{Entity: "ticket", ID: ticketID, State: string(t.State), Attempted: "commit issuance"}
	}

	ev, _ := r.c.snapshotEvent(t.EventID)
	now := time.Now().UTC()
	t.State = model.TicketOwned
	t.Owner = owner
	t.PriceSettled = price
	t.IssuedAt = &now
	ev.IssuedCount++
	ev.ReservedCount--
	if ev.IssuedCount == ev.TotalSupply {
		ev.State = model.EventSoldOut
	}

	if err := r.c.commit(ctx, ev, t); err != nil {
		return fmt.Errorf("commitIssuance: %w", err)
	}
	return nil
}

// ReleaseReservation reverts a reserved slot to unissued after a failed or
// timed out settlement, making it reservable again.
func (r *Registry) ReleaseReservation(ctx context.Context, ticketID uint64) error {
	t, ok := r.c.snapshotTicket(ticketID)
	if !ok {
		return &model.NotFoundError{Entity: "ticket", ID: fmt.Sprint(ticketID)}
	}

	lock, _ := r.c.eventLock(t.EventID)
	lock.Lock()
	defer lock.Unlock()

	t, _ = r.c.snapshotTicket(ticketID)
	if t.State != model.TicketReserved {
		return &model.InvalidStateError{Entity: "ticket", ID: ticketID, State: string(t.State), Attempted: "release reservation"}
	}

	ev, _ := r.c.snapshotEvent(t.EventID)
	t.State = model.TicketUnissued
	ev.ReservedCount--

	if err := r.c.commit(ctx, ev, t); err != nil {
		return fmt.Errorf("releaseReservation: %w", err)
	}
	return nil
}

// Event returns a copy of the event record.
func (r *Registry) Event(eventID uint64) (*model.Event, error) {
	ev, ok := r.c.snapshotEvent(eventID)
	if !ok {
		return nil, &model.NotFoundError{Entity: "event", ID: fmt.Sprint(eventID)}
	}
	return ev, nil
}

// Events returns copies of all event records in id order.
func (r *Registry) Events() []*model.Event {
	r.c.mu.RLock()
	ids := make([]uint64, 0, len(r.c.events))
	for id := range r.c.events {
		ids = append(ids, id)
	}
	r.c.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	evs := make([]*model.Event, 0, len(ids))
	for _, id := range ids {
		if ev, ok := r.c.snapshotEvent(id); ok {
			evs = append(evs, ev)
		}
	}
	return evs
}

func validateSpec(spec *model.EventSpec) error {
	if spec == nil {
		return &model.ValidationError{Field: "event", Reason: "missing event spec"}
	}
	if spec.Name == "" {
		return &model.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if spec.Venue == "" {
		return &model.ValidationError{Field: "venue", Reason: "must not be empty"}
	}
	if spec.TotalSupply == 0 {
		return &model.ValidationError{Field: "total_supply", Reason: "must be positive"}
	}
	if spec.TotalSupply > maxTotalSupply {
		return &model.ValidationError{Field: "total_supply", Reason: fmt.Sprintf("must not exceed %d", maxTotalSupply)}
	}
	if !spec.ScheduledAt.After(time.Now()) {
		return &model.ValidationError{Field: "scheduled_at", Reason: "must be in the future"}
	}
	if spec.Category != "" && !model.ValidCategory(spec.Category) {
		return &model.ValidationError{Field: "category", Reason: "must be standard, premium or vip"}
	}
	if len(spec.SeatLabels) > 0 {
		if uint64(len(spec.SeatLabels)) != spec.TotalSupply {
			return &model.ValidationError{Field: "seat_labels", Reason: "must match total_supply"}
		}
		seen := make(map[string]bool, len(spec.SeatLabels))
		for _, label := range spec.SeatLabels {
			if label == "" {
				return &model.ValidationError{Field: "seat_labels", Reason: "labels must not be empty"}
			}
			if seen[label] {
				return &model.ValidationError{Field: "seat_labels", Reason: fmt.Sprintf("duplicate label %q", label)}
			}
			seen[label] = true
		}
	}
	return nil
}
