package model

type CreateEventRequest struct {
	Data struct {
		Event          *EventSpec `json:"event,omitempty" validate:"required"`
		Actor          string     `json:"actor,omitempty" validate:"required"`
		IdempotencyKey string     `json:"idempotency_key,omitempty"`
	} `json:"data"`
}

type PurchaseRequest struct {
	Data struct {
		EventID        uint64 `json:"event_id,omitempty" validate:"required"`
		Buyer          string `json:"buyer,omitempty" validate:"required"`
		Amount         uint64 `json:"amount,omitempty"`
		IdempotencyKey string `json:"idempotency_key,omitempty"`
	} `json:"data"`
}

type TransferRequest struct {
	Data struct {
		TicketID       uint64 `json:"ticket_id,omitempty" validate:"required"`
		From           string `json:"from,omitempty" validate:"required"`
		To             string `json:"to,omitempty" validate:"required"`
		IdempotencyKey string `json:"idempotency_key,omitempty"`
	} `json:"data"`
}

type RedeemRequest struct {
	Data struct {
		TicketID       uint64 `json:"ticket_id,omitempty" validate:"required"`
		By             string `json:"by,omitempty" validate:"required"`
		IdempotencyKey string `json:"idempotency_key,omitempty"`
	} `json:"data"`
}
