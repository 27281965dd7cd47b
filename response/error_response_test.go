package response

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"ticket-ledger-engine/model"

	"github.com/stretchr/testify/assert"
)

func TestFromErrorMapsTaxonomy(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		status     string
	}{
		{"validation", &model.ValidationError{Field: "name", Reason: "must not be empty"}, http.StatusBadRequest, "INVALID_DATA"},
		{"sold out", &model.SoldOutError{EventID: 4}, http.StatusConflict, "SOLD_OUT"},
		{"not owner", &model.NotOwnerError{TicketID: 9, Actor: "mallory", Owner: "alice"}, http.StatusForbidden, "NOT_OWNER"},
		{"non transferable", &model.NonTransferableError{TicketID: 9, EventID: 4}, http.StatusConflict, "NON_TRANSFERABLE"},
		{"invalid state", &model.InvalidStateError{Entity: "ticket", ID: 9, State: "USED", Attempted: "transfer"}, http.StatusConflict, "INVALID_STATE"},
		{"not found", &model.NotFoundError{Entity: "event", ID: "4"}, http.StatusNotFound, "NOT_FOUND"},
		{"settlement", &model.SettlementError{ActionID: "act_1", Attempts: 5, Err: errors.New("down")}, http.StatusBadGateway, "SETTLEMENT_FAILED"},
		{"inconsistency", &model.InconsistencyError{ActionID: "act_1", Detail: "late confirm"}, http.StatusInternalServerError, "INCONSISTENT"},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, "SOMETHING_WRONG"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := FromError(tt.err)
			assert.Equal(t, tt.statusCode, resp.StatusCode)
			assert.Equal(t, tt.status, resp.Status)
		})
	}
}

func TestFromErrorUnwrapsWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("purchase: %w", &model.SoldOutError{EventID: 4})
	resp := FromError(wrapped)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "SOLD_OUT", resp.Status)
}
