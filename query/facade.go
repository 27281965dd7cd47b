// Package query serves read-only projections over confirmed registry and
// ledger state. Reads never block on pending actions: a reservation or an
// unresolved settlement is simply not visible. Projections are cached in
// redis and invalidated by coordinator signals on resolution.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ticket-ledger-engine/ledger"
	"ticket-ledger-engine/logger"
	"ticket-ledger-engine/model"

	"github.com/redis/go-redis/v9"
)

const (
	eventViewKey   = "view:event:%d"
	ticketViewKey  = "view:ticket:%d"
	accountViewKey = "view:account:%s"
	eventListKey   = "view:events"
)

type Facade struct {
	registry *ledger.Registry
	ledger   *ledger.Ledger
	cache    *redis.Client
	ttl      time.Duration
}

// NewFacade returns a facade over the given registry and ledger. The cache
// client may be nil, in which case every read hits the core directly.
func NewFacade(registry *ledger.Registry, lg *ledger.Ledger, cache *redis.Client, ttl time.Duration) *Facade {
	return &Facade{registry: registry, ledger: lg, cache: cache, ttl: ttl}
}

// ListEvents returns all events that have reached a confirmed lifecycle
// state. Draft events are creation intents that have not settled yet and are
// not listed.
func (f *Facade) ListEvents(ctx context.Context) ([]*model.EventView, error) {
	var views []*model.EventView
	if f.fromCache(ctx, eventListKey, &views) {
		return views, nil
	}

	for _, ev := range f.registry.Events() {
		if ev.State == model.EventDraft {
			continue
		}
		views = append(views, ev.View())
	}

	f.toCache(ctx, eventListKey, views)
	return views, nil
}

func (f *Facade) GetEvent(ctx context.Context, eventID uint64) (*model.EventView, error) {
	key := fmt.Sprintf(eventViewKey, eventID)
	var view *model.EventView
	if f.fromCache(ctx, key, &view) {
		return view, nil
	}

	ev, err := f.registry.Event(eventID)
	if err != nil {
		return nil, err
	}
	if ev.State == model.EventDraft {
		return nil, &model.NotFoundError{Entity: "event", ID: fmt.Sprint(eventID)}
	}

	view = ev.View()
	f.toCache(ctx, key, view)
	return view, nil
}

func (f *Facade) GetTicket(ctx context.Context, ticketID uint64) (*model.TicketView, error) {
	key := fmt.Sprintf(ticketViewKey, ticketID)
	var view *model.TicketView
	if f.fromCache(ctx, key, &view) {
		return view, nil
	}

	t, err := f.ledger.Ticket(ticketID)
	if err != nil {
		return nil, err
	}

	view = t.View()
	f.toCache(ctx, key, view)
	return view, nil
}

func (f *Facade) ListTicketsOwnedBy(ctx context.Context, account string) ([]*model.TicketView, error) {
	if account == "" {
		return nil, &model.ValidationError{Field: "account", Reason: "must not be empty"}
	}

	key := fmt.Sprintf(accountViewKey, account)
	var views []*model.TicketView
	if f.fromCache(ctx, key, &views) {
		return views, nil
	}

	for _, t := range f.ledger.TicketsOwnedBy(account) {
		views = append(views, t.View())
	}

	f.toCache(ctx, key, views)
	return views, nil
}

// InvalidateEvent implements coordinator.Invalidator.
func (f *Facade) InvalidateEvent(ctx context.Context, eventID uint64) {
	f.drop(ctx, fmt.Sprintf(eventViewKey, eventID), eventListKey)
}

// InvalidateTicket implements coordinator.Invalidator.
func (f *Facade) InvalidateTicket(ctx context.Context, ticketID uint64) {
	f.drop(ctx, fmt.Sprintf(ticketViewKey, ticketID))
}

// InvalidateAccount implements coordinator.Invalidator.
func (f *Facade) InvalidateAccount(ctx context.Context, account string) {
	f.drop(ctx, fmt.Sprintf(accountViewKey, account))
}

func (f *Facade) fromCache(ctx context.Context, key string, out interface{}) bool {
	if f.cache == nil {
		return false
	}
	data, err := f.cache.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			logger.Warnf(ctx, "cache: error reading %s: %v", key, err)
		}
		return false
	}
	if err := json.Unmarshal([]byte(data), out); err != nil {
		logger.Warnf(ctx, "cache: error unmarshalling %s: %v", key, err)
		return false
	}
	return true
}

func (f *Facade) toCache(ctx context.Context, key string, v interface{}) {
	if f.cache == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		logger.Warnf(ctx, "cache: error marshalling %s: %v", key, err)
		return
	}
	if err := f.cache.Set(ctx, key, data, f.ttl).Err(); err != nil {
		logger.Warnf(ctx, "cache: error writing %s: %v", key, err)
	}
}

func (f *Facade) drop(ctx context.Context, keys ...string) {
	if f.cache == nil {
		return
	}
	if err := f.cache.Del(ctx, keys...).Err(); err != nil {
		logger.Warnf(ctx, "cache: error invalidating %v: %v", keys, err)
	}
}
