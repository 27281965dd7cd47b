package model

import (
	"fmt"
)

// ValidationError reports bad caller input. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: field %q: %s", e.Field, e.Reason)
}

// SoldOutError reports that an event has no unissued slot left.
type SoldOutError struct {
	EventID uint64
}

func (e *SoldOutError) Error() string {
	return fmt.Sprintf("event %d is sold out", e.EventID)
}

// NotOwnerError reports an ownership mismatch on a ticket operation.
type NotOwnerError struct {
	TicketID uint64
	Actor    string
	Owner    string
}

func (e *NotOwnerError) Error() string {
	return fmt.Sprintf("ticket %d is not owned by %q (owner %q)", e.TicketID, e.Actor, e.Owner)
}

// NonTransferableError reports a transfer attempt on a ticket whose event
// disallows transfer.
type NonTransferableError struct {
	TicketID uint64
	EventID  uint64
}

func (e *NonTransferableError) Error() string {
	return fmt.Sprintf("ticket %d of event %d is not transferable", e.TicketID, e.EventID)
}

// InvalidStateError reports an illegal lifecycle transition attempt.
type InvalidStateError struct {
	Entity    string
	ID        uint64
	State     string
	Attempted string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s %d: cannot %s while %s", e.Entity, e.ID, e.Attempted, e.State)
}

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// SettlementError reports that the settlement backend exhausted the retry
// budget for a submission. Ledger state is untouched when it surfaces.
type SettlementError struct {
	ActionID string
	Attempts int
	Err      error
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("settlement of action %s failed after %d attempts: %v", e.ActionID, e.Attempts, e.Err)
}

func (e *SettlementError) Unwrap() error { return e.Err }

// InconsistencyError reports a late or duplicate backend resolution that can
// no longer be applied. It is surfaced for manual reconciliation, never
// corrected silently.
type InconsistencyError struct {
	ActionID string
	Detail   string
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("inconsistent resolution for action %s: %s", e.ActionID, e.Detail)
}
