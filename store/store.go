// Package store provides durable storage for event and ticket records. The
// ledger keeps authoritative state in memory and writes through; a store only
// has to make records survive a process restart.
package store

import (
	"context"

	"ticket-ledger-engine/model"
)

type Store interface {
	// Save persists the given records as one atomic unit. The event may be
	// nil when only tickets changed. An error means nothing was applied.
	Save(ctx context.Context, ev *model.Event, tickets ...*model.Ticket) error
	LoadEvents(ctx context.Context) ([]*model.Event, error)
	LoadTickets(ctx context.Context) ([]*model.Ticket, error)
	Close() error
}
