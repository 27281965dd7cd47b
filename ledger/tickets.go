package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"ticket-ledger-engine/model"
)

// Ledger owns ownership movement on issued tickets. Validate functions run at
// intent time so a doomed intent never reaches the settlement backend; Apply
// functions are invoked by the coordinator on confirmation and re-check the
// precondition, since ownership may have moved while the action was pending.
type Ledger struct {
	c *core
}

func (l *Ledger) ValidateTransfer(ticketID uint64, from, to string) error {
	t, ok := l.c.snapshotTicket(ticketID)
	if !ok {
		return &model.NotFoundError{Entity: "ticket", ID: fmt.Sprint(ticketID)}
	}
	if to == "" {
		return &model.ValidationError{Field: "to", Reason: "must not be empty"}
	}
	return l.checkTransfer(t, from)
}

// ApplyTransfer moves ownership. Serialized per ticket, not per event:
// transfers do not contend for supply.
func (l *Ledger) ApplyTransfer(ctx context.Context, ticketID uint64, from, to string) error {
	lock, ok := l.c.ticketLock(ticketID)
	if !ok {
		return &model.NotFoundError{Entity: "ticket", ID: fmt.Sprint(ticketID)}
	}
	lock.Lock()
	defer lock.Unlock()

	t, _ := l.c.snapshotTicket(ticketID)
	if err := l.checkTransfer(t, from); err != nil {
		return err
	}

	t.Owner = to
	if err := l.c.commit(ctx, nil, t); err != nil {
		return fmt.Errorf("applyTransfer: %w", err)
	}
	return nil
}

func (l *Ledger) checkTransfer(t *model.Ticket, from string) error {
	if t.State == model.TicketUsed {
		return &model.InvalidStateError{Entity: "ticket", ID: t.ID, State: string(t.State), Attempted: "transfer"}
	}
	if t.State != model.TicketOwned || t.Owner != from {
		return &model.NotOwnerError{TicketID: t.ID, Actor: from, Owner: t.Owner}
	}
	ev, _ := l.c.snapshotEvent(t.EventID)
	if !ev.Transferable {
		return &model.NonTransferableError{TicketID: t.ID, EventID: t.EventID}
	}
	return nil
}

// ValidateRedeem reports whether the redemption is a replay of an already
// settled redemption by the same actor, in which case the caller should
// return the original result instead of submitting again.
func (l *Ledger) ValidateRedeem(ticketID uint64, by string) (alreadyUsed bool, err error) {
	t, ok := l.c.snapshotTicket(ticketID)
	if !ok {
		return false, &model.NotFoundError{Entity: "ticket", ID: fmt.Sprint(ticketID)}
	}
	if t.State == model.TicketUsed {
		if t.RedeemedBy == by {
			return true, nil
		}
		return false, &model.InvalidStateError{Entity: "ticket", ID: ticketID, State: string(t.State), Attempted: "redeem"}
	}
	if t.State != model.TicketOwned || t.Owner != by {
		return false, &model.NotOwnerError{TicketID: ticketID, Actor: by, Owner: t.Owner}
	}
	return false, nil
}

// ApplyRedeem marks the ticket used. Redemption is terminal and idempotent:
// applying it again for the same actor is a no-op.
func (l *Ledger) ApplyRedeem(ctx context.Context, ticketID uint64, by string) error {
	lock, ok := l.c.ticketLock(ticketID)
	if !ok {
		return &model.NotFoundError{Entity: "ticket", ID: fmt.Sprint(ticketID)}
	}
	lock.Lock()
	defer lock.Unlock()

	t, _ := l.c.snapshotTicket(ticketID)
	if t.State == model.TicketUsed {
		if t.RedeemedBy == by {
			return nil
		}
		return &model.InvalidStateError{Entity: "ticket", ID: ticketID, State: string(t.State), Attempted: "redeem"}
	}
	if t.State != model.TicketOwned || t.Owner != by {
		return &model.NotOwnerError{TicketID: ticketID, Actor: by, Owner: t.Owner}
	}

	now := time.Now().UTC()
	t.State = model.TicketUsed
	t.RedeemedBy = by
	t.RedeemedAt = &now
	if err := l.c.commit(ctx, nil, t); err != nil {
		return fmt.Errorf("applyRedeem: %w", err)
	}
	return nil
}

// Ticket returns a copy of the ticket record.
func (l *Ledger) Ticket(ticketID uint64) (*model.Ticket, error) {
	t, ok := l.c.snapshotTicket(ticketID)
	if !ok {
		return nil, &model.NotFoundError{Entity: "ticket", ID: fmt.Sprint(ticketID)}
	}
	return t, nil
}

// TicketsOwnedBy returns copies of all tickets currently held by the account,
// in id order. Reserved slots never appear: a hold is not ownership.
func (l *Ledger) TicketsOwnedBy(owner string) []*model.Ticket {
	l.c.mu.RLock()
	ids := make([]uint64, 0)
	for id, t := range l.c.tickets {
		if (t.State == model.TicketOwned || t.State == model.TicketUsed) && t.Owner == owner {
			ids = append(ids, id)
		}
	}
	l.c.mu.RUnlock()

	tks := make([]*model.Ticket, 0, len(ids))
	for _, id := range ids {
		if t, ok := l.c.snapshotTicket(id); ok {
			if (t.State == model.TicketOwned || t.State == model.TicketUsed) && t.Owner == owner {
				tks = append(tks, t)
			}
		}
	}
	sort.Slice(tks, func(i, j int) bool { return tks[i].ID < tks[j].ID })
	return tks
}
