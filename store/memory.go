package store

import (
	"context"
	"sync"

	"ticket-ledger-engine/model"
)

// Memory keeps records in process memory. Used in development mode and in
// tests; provides no restart durability.
type Memory struct {
	mu      sync.Mutex
	events  map[uint64]model.Event
	tickets map[uint64]model.Ticket
}

func NewMemory() *Memory {
	return &Memory{
		events:  make(map[uint64]model.Event),
		tickets: make(map[uint64]model.Ticket),
	}
}

func (s *Memory) Save(ctx context.Context, ev *model.Event, tickets ...*model.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev != nil {
		s.events[ev.ID] = *ev
	}
	for _, t := range tickets {
		s.tickets[t.ID] = *t
	}
	return nil
}

func (s *Memory) LoadEvents(ctx context.Context) ([]*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evs []*model.Event
	for id := range s.events {
		ev := s.events[id]
		evs = append(evs, &ev)
	}
	return evs, nil
}

func (s *Memory) LoadTickets(ctx context.Context) ([]*model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tks []*model.Ticket
	for id := range s.tickets {
		t := s.tickets[id]
		tks = append(tks, &t)
	}
	return tks, nil
}

func (s *Memory) Close() error { return nil }
