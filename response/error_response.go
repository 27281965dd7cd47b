package response

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"ticket-ledger-engine/logger"
	"ticket-ledger-engine/model"
)

type ErrorResponse struct {
	StatusCode  int
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
}

func (r ErrorResponse) Error() string {
	return fmt.Sprintf("StatusCode: %d, Success: %t, Message: %s, Status: %s, Description: %s", r.StatusCode, r.Success, r.Message, r.Status, r.Description)
}

func (r ErrorResponse) Send(ctx context.Context, w http.ResponseWriter) {
	logger.Errorf(ctx, r.Error())
	w.WriteHeader(r.StatusCode)
	json.NewEncoder(w).Encode(r)
}

// FromError maps the engine error taxonomy onto the wire envelope. Anything
// outside the taxonomy is reported as SOMETHING_WRONG without detail.
func FromError(err error) ErrorResponse {
	var (
		validation      *model.ValidationError
		soldOut         *model.SoldOutError
		notOwner        *model.NotOwnerError
		nonTransferable *model.NonTransferableError
		invalidState    *model.InvalidStateError
		notFound        *model.NotFoundError
		settlement      *model.SettlementError
		inconsistency   *model.InconsistencyError
	)

	switch {
	case errors.As(err, &validation):
		return ErrorResponse{
			StatusCode:  http.StatusBadRequest,
			Message:     "Invalid data passed",
			Status:      "INVALID_DATA",
			Description: validation.Error(),
		}
	case errors.As(err, &soldOut):
		return ErrorResponse{
			StatusCode:  http.StatusConflict,
			Message:     "No tickets left for this event",
			Status:      "SOLD_OUT",
			Description: soldOut.Error(),
		}
	case errors.As(err, &notOwner):
		return ErrorResponse{
			StatusCode:  http.StatusForbidden,
			Message:     "Caller does not own this ticket",
			Status:      "NOT_OWNER",
			Description: notOwner.Error(),
		}
	case errors.As(err, &nonTransferable):
		return ErrorResponse{
			StatusCode:  http.StatusConflict,
			Message:     "This ticket cannot be transferred",
			Status:      "NON_TRANSFERABLE",
			Description: nonTransferable.Error(),
		}
	case errors.As(err, &invalidState):
		return ErrorResponse{
			StatusCode:  http.StatusConflict,
			Message:     "Illegal state transition attempted",
			Status:      "INVALID_STATE",
			Description: invalidState.Error(),
		}
	case errors.As(err, &notFound):
		return ErrorResponse{
			StatusCode:  http.StatusNotFound,
			Message:     "Requested Resource Not Found",
			Status:      "NOT_FOUND",
			Description: notFound.Error(),
		}
	case errors.As(err, &settlement):
		return ErrorResponse{
			StatusCode:  http.StatusBadGateway,
			Message:     "Settlement backend unavailable",
			Status:      "SETTLEMENT_FAILED",
			Description: settlement.Error(),
		}
	case errors.As(err, &inconsistency):
		return ErrorResponse{
			StatusCode:  http.StatusInternalServerError,
			Message:     "Ledger requires manual reconciliation",
			Status:      "INCONSISTENT",
			Description: inconsistency.Error(),
		}
	}

	return SomethingWrong()
}

func BadRequest(message, description string) ErrorResponse {
	return ErrorResponse{
		StatusCode:  http.StatusBadRequest,
		Success:     false,
		Message:     message,
		Status:      "BAD REQUEST",
		Description: description,
	}
}

func ResourceNotFound(message, description string) ErrorResponse {
	return ErrorResponse{
		StatusCode:  http.StatusNotFound,
		Success:     false,
		Message:     message,
		Status:      "NOT FOUND",
		Description: description,
	}
}

func SomethingWrong() ErrorResponse {
	return ErrorResponse{
		StatusCode: http.StatusInternalServerError,
		Success:    false,
		Message:    "Sorry, Something went wrong",
		Status:     "SOMETHING_WRONG",
	}
}
