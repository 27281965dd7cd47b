// Package settlement defines the boundary to the settlement backend: the
// only non-deterministic, fallible collaborator of the engine. A backend
// accepts an action, returns a handle, and eventually reports the handle as
// confirmed or failed. It may be slow, it may fail, it may reorder.
package settlement

import (
	"context"
	"errors"
	"fmt"

	"ticket-ledger-engine/model"
)

// Handle identifies a submitted action on the backend.
type Handle string

// Action is the payload submitted for settlement. Nonce carries the
// coordinator's idempotency key so a resubmission is recognizable on the
// backend side as well.
type Action struct {
	Kind      model.ActionKind `json:"kind"`
	Nonce     string           `json:"nonce"`
	EventID   uint64           `json:"event_id,omitempty"`
	TicketID  uint64           `json:"ticket_id,omitempty"`
	Actor     string           `json:"actor"`
	To        string           `json:"to,omitempty"`
	Amount    uint64           `json:"amount,omitempty"`
	Encrypted bool             `json:"-"`
}

type State string

const (
	StatePending   State = "PENDING"
	StateConfirmed State = "CONFIRMED"
	StateFailed    State = "FAILED"
)

// Status is a poll result. Amount is the settled amount when the backend
// reports one; zero means the backend has no opinion and the offered amount
// stands.
type Status struct {
	State     State
	Reference string
	Amount    uint64
	Reason    string
}

type Backend interface {
	Submit(ctx context.Context, a Action) (Handle, error)
	PollStatus(ctx context.Context, h Handle) (Status, error)
}

// TransientError marks a backend failure worth retrying. Anything not marked
// transient is final for the submission attempt.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient backend error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}
