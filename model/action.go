package model

import (
	"time"
)

type ActionKind string

const (
	ActionCreateEvent ActionKind = "CREATE_EVENT"
	ActionPurchase    ActionKind = "PURCHASE"
	ActionTransfer    ActionKind = "TRANSFER"
	ActionRedeem      ActionKind = "REDEEM"
)

type ActionStatus string

const (
	ActionSubmitted ActionStatus = "SUBMITTED"
	ActionConfirmed ActionStatus = "CONFIRMED"
	ActionFailed    ActionStatus = "FAILED"
	ActionTimedOut  ActionStatus = "TIMED_OUT"
)

// PendingAction correlates an intent with a settlement backend handle.
// It resolves exactly once; a TimedOut action stays queryable so a late
// backend confirmation can still be detected and reported.
type PendingAction struct {
	ID             string       `json:"action_id"`
	Kind           ActionKind   `json:"kind"`
	IdempotencyKey string       `json:"idempotency_key"`
	Handle         string       `json:"handle,omitempty"`
	Status         ActionStatus `json:"status"`
	Actor          string       `json:"actor"`
	EventID        uint64       `json:"event_id,omitempty"`
	TicketID       uint64       `json:"ticket_id,omitempty"`
	To             string       `json:"to,omitempty"`
	Amount         uint64       `json:"amount,omitempty"`
	Attempts       int          `json:"attempts"`
	SubmittedAt    time.Time    `json:"submitted_at"`
	ResolvedAt     *time.Time   `json:"resolved_at,omitempty"`
	Result         string       `json:"result,omitempty"`
	FailReason     string       `json:"fail_reason,omitempty"`
	CancelRequested bool        `json:"cancel_requested,omitempty"`
	Inconsistent   bool         `json:"inconsistent,omitempty"`
}

// Resolved reports whether the action reached a terminal local status.
func (a *PendingAction) Resolved() bool {
	return a.Status != ActionSubmitted
}
