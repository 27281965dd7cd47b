package model

import (
	"time"
)

type TicketState string

const (
	TicketUnissued TicketState = "UNISSUED"
	TicketReserved TicketState = "RESERVED"
	TicketOwned    TicketState = "OWNED"
	TicketUsed     TicketState = "USED"
)

// Ticket is an authoritative ticket slot. Slots are materialized when the
// owning event is created and keep their id for life; ownership fields are
// only populated once issuance settles.
type Ticket struct {
	ID           uint64      `json:"ticket_id"`
	EventID      uint64      `json:"event_id"`
	SeatLabel    string      `json:"seat_label,omitempty"`
	Owner        string      `json:"owner,omitempty"`
	PriceSettled uint64      `json:"price_settled,omitempty"`
	State        TicketState `json:"state"`
	IssuedAt     *time.Time  `json:"issued_at,omitempty"`
	RedeemedBy   string      `json:"redeemed_by,omitempty"`
	RedeemedAt   *time.Time  `json:"redeemed_at,omitempty"`
}

// TicketView is the read projection served by the query facade. A Reserved
// slot is presented as Unissued: a hold that has not settled must not be
// observable as ownership.
type TicketView struct {
	ID           uint64      `json:"ticket_id"`
	EventID      uint64      `json:"event_id"`
	SeatLabel    string      `json:"seat_label,omitempty"`
	Owner        string      `json:"owner,omitempty"`
	PriceSettled uint64      `json:"price_settled,omitempty"`
	State        TicketState `json:"state"`
	RedeemedAt   *time.Time  `json:"redeemed_at,omitempty"`
}

func (t *Ticket) View() *TicketView {
	v := &TicketView{
		ID:        t.ID,
		EventID:   t.EventID,
		SeatLabel: t.SeatLabel,
		State:     t.State,
	}
	if t.State == TicketReserved {
		v.State = TicketUnissued
		return v
	}
	if t.State == TicketOwned || t.State == TicketUsed {
		v.Owner = t.Owner
		v.PriceSettled = t.PriceSettled
		v.RedeemedAt = t.RedeemedAt
	}
	return v
}
