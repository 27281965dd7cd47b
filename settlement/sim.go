package settlement

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Sim is an in-process settlement backend used in development mode and in
// tests. In auto mode a submission confirms itself once the configured
// latency has passed; in manual mode it stays pending until Confirm or Fail
// is called. Submit errors can be scripted to exercise the retry path.
type Sim struct {
	mu         sync.Mutex
	seq        int
	auto       bool
	latency    time.Duration
	submitted  map[Handle]simEntry
	resolved   map[Handle]Status
	submitErrs []error
}

type simEntry struct {
	action Action
	at     time.Time
}

func NewSim(auto bool, latency time.Duration) *Sim {
	return &Sim{
		auto:      auto,
		latency:   latency,
		submitted: make(map[Handle]simEntry),
		resolved:  make(map[Handle]Status),
	}
}

func (s *Sim) Submit(ctx context.Context, a Action) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.submitErrs) > 0 {
		err := s.submitErrs[0]
		s.submitErrs = s.submitErrs[1:]
		return "", err
	}

	s.seq++
	h := Handle(fmt.Sprintf("sim-%d", s.seq))
	s.submitted[h] = simEntry{action: a, at: time.Now()}
	return h, nil
}

func (s *Sim) PollStatus(ctx context.Context, h Handle) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.resolved[h]; ok {
		return st, nil
	}
	entry, ok := s.submitted[h]
	if !ok {
		return Status{}, fmt.Errorf("pollStatus: unknown handle %s", h)
	}
	if s.auto && time.Since(entry.at) >= s.latency {
		st := Status{State: StateConfirmed, Reference: string(h), Amount: entry.action.Amount}
		s.resolved[h] = st
		return st, nil
	}
	return Status{State: StatePending, Reference: string(h)}, nil
}

// PushSubmitError scripts the next Submit call to fail with err.
func (s *Sim) PushSubmitError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitErrs = append(s.submitErrs, err)
}

// Confirm resolves the handle as confirmed with the submitted amount.
func (s *Sim) Confirm(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.submitted[h]
	s.resolved[h] = Status{State: StateConfirmed, Reference: string(h), Amount: entry.action.Amount}
}

// Fail resolves the handle as failed.
func (s *Sim) Fail(h Handle, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolved[h] = Status{State: StateFailed, Reference: string(h), Reason: reason}
}

// LastHandle returns the most recently issued handle.
func (s *Sim) LastHandle() Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Handle(fmt.Sprintf("sim-%d", s.seq))
}
