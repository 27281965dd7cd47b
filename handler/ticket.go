package handler

import (
	"encoding/json"
	"net/http"

	"ticket-ledger-engine/coordinator"
	"ticket-ledger-engine/logger"
	"ticket-ledger-engine/model"
	"ticket-ledger-engine/query"
	"ticket-ledger-engine/response"

	"github.com/gorilla/mux"
)

func PurchaseTicket(coord *coordinator.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req model.PurchaseRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		if err != nil {
			logger.Errorf(ctx, "purchaseTicket: error unmarshalling request body: %+v", err)
			response.BadRequest("invalid request body", "").Send(ctx, w)
			return
		}

		action, err := coord.Purchase(ctx, req.Data.EventID, req.Data.Buyer, req.Data.Amount, req.Data.IdempotencyKey)
		if err != nil {
			logger.Errorf(ctx, "purchaseTicket: unable to purchase ticket for event %d: %v", req.Data.EventID, err)
			response.FromError(err).Send(ctx, w)
			return
		}

		response.SuccessResponse{
			Data:       &response.Data{Action: action},
			StatusCode: http.StatusAccepted,
		}.Send(w)
	}
}

func TransferTicket(coord *coordinator.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req model.TransferRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		if err != nil {
			logger.Errorf(ctx, "transferTicket: error unmarshalling request body: %+v", err)
			response.BadRequest("invalid request body", "").Send(ctx, w)
			return
		}

		action, err := coord.Transfer(ctx, req.Data.TicketID, req.Data.From, req.Data.To, req.Data.IdempotencyKey)
		if err != nil {
			logger.Errorf(ctx, "transferTicket: unable to transfer ticket %d: %v", req.Data.TicketID, err)
			response.FromError(err).Send(ctx, w)
			return
		}

		response.SuccessResponse{
			Data:       &response.Data{Action: action},
			StatusCode: http.StatusAccepted,
		}.Send(w)
	}
}

func RedeemTicket(coord *coordinator.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req model.RedeemRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		if err != nil {
			logger.Errorf(ctx, "redeemTicket: error unmarshalling request body: %+v", err)
			response.BadRequest("invalid request body", "").Send(ctx, w)
			return
		}

		action, err := coord.Redeem(ctx, req.Data.TicketID, req.Data.By, req.Data.IdempotencyKey)
		if err != nil {
			logger.Errorf(ctx, "redeemTicket: unable to redeem ticket %d: %v", req.Data.TicketID, err)
			response.FromError(err).Send(ctx, w)
			return
		}

		response.SuccessResponse{
			Data:       &response.Data{Action: action},
			StatusCode: http.StatusAccepted,
		}.Send(w)
	}
}

func GetTicket(facade *query.Facade) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		ticketID, ok := pathID(w, r, "ticketID")
		if !ok {
			return
		}

		ticket, err := facade.GetTicket(ctx, ticketID)
		if err != nil {
			logger.Errorf(ctx, "getTicket: unable to get ticket %d: %v", ticketID, err)
			response.FromError(err).Send(ctx, w)
			return
		}

		response.SuccessResponse{
			Data:       &response.Data{Ticket: ticket},
			StatusCode: http.StatusOK,
		}.Send(w)
	}
}

func GetAccountTickets(facade *query.Facade) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		account := mux.Vars(r)["account"]
		if account == "" {
			response.BadRequest("account is required", "").Send(ctx, w)
			return
		}

		tickets, err := facade.ListTicketsOwnedBy(ctx, account)
		if err != nil {
			logger.Errorf(ctx, "getAccountTickets: unable to list tickets for %s: %v", account, err)
			response.FromError(err).Send(ctx, w)
			return
		}

		response.SuccessResponse{
			Data:       &response.Data{Tickets: tickets},
			StatusCode: http.StatusOK,
		}.Send(w)
	}
}
