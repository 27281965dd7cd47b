package response

import (
	"encoding/json"
	"net/http"

	"ticket-ledger-engine/model"
)

type SuccessResponse struct {
	Data       *Data `json:"data"`
	StatusCode int   `json:"-"`
}

type Data struct {
	Event   *model.EventView     `json:"event,omitempty"`
	Events  []*model.EventView   `json:"events,omitempty"`
	Ticket  *model.TicketView    `json:"ticket,omitempty"`
	Tickets []*model.TicketView  `json:"tickets,omitempty"`
	Action  *model.PendingAction `json:"action,omitempty"`
}

func (r SuccessResponse) Send(w http.ResponseWriter) {
	w.WriteHeader(r.StatusCode)
	json.NewEncoder(w).Encode(r)
}
