package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"ticket-ledger-engine/coordinator"
	"ticket-ledger-engine/ledger"
	"ticket-ledger-engine/logger"
	"ticket-ledger-engine/model"
	"ticket-ledger-engine/query"
	"ticket-ledger-engine/response"

	"github.com/gorilla/mux"
)

func CreateEvent(coord *coordinator.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req model.CreateEventRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		if err != nil {
			logger.Errorf(ctx, "createEvent: error unmarshalling request body: %+v", err)
			response.BadRequest("invalid request body", "").Send(ctx, w)
			return
		}

		action, err := coord.CreateEvent(ctx, req.Data.Actor, req.Data.Event, req.Data.IdempotencyKey)
		if err != nil {
			logger.Errorf(ctx, "createEvent: unable to create event: %v", err)
			response.FromError(err).Send(ctx, w)
			return
		}

		response.SuccessResponse{
			Data:       &response.Data{Action: action},
			StatusCode: http.StatusAccepted,
		}.Send(w)
	}
}

func GetEvents(facade *query.Facade) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		events, err := facade.ListEvents(ctx)
		if err != nil {
			logger.Errorf(ctx, "getEvents: unable to list events: %v", err)
			response.FromError(err).Send(ctx, w)
			return
		}

		response.SuccessResponse{
			Data:       &response.Data{Events: events},
			StatusCode: http.StatusOK,
		}.Send(w)
	}
}

func GetEvent(facade *query.Facade) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		eventID, ok := pathID(w, r, "eventID")
		if !ok {
			return
		}

		event, err := facade.GetEvent(ctx, eventID)
		if err != nil {
			logger.Errorf(ctx, "getEvent: unable to get event %d: %v", eventID, err)
			response.FromError(err).Send(ctx, w)
			return
		}

		response.SuccessResponse{
			Data:       &response.Data{Event: event},
			StatusCode: http.StatusOK,
		}.Send(w)
	}
}

func CancelEvent(registry *ledger.Registry, facade *query.Facade) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		eventID, ok := pathID(w, r, "eventID")
		if !ok {
			return
		}

		if err := registry.CancelEvent(ctx, eventID); err != nil {
			logger.Errorf(ctx, "cancelEvent: unable to cancel event %d: %v", eventID, err)
			response.FromError(err).Send(ctx, w)
			return
		}
		facade.InvalidateEvent(ctx, eventID)

		event, err := facade.GetEvent(ctx, eventID)
		if err != nil {
			response.FromError(err).Send(ctx, w)
			return
		}

		response.SuccessResponse{
			Data:       &response.Data{Event: event},
			StatusCode: http.StatusOK,
		}.Send(w)
	}
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	ctx := r.Context()
	raw := mux.Vars(r)[name]

	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		logger.Errorf(ctx, "pathID: unable to parse %s: %s: %v", name, raw, err)
		response.BadRequest(fmt.Sprintf("invalid %s: %v", name, raw), "").Send(ctx, w)
		return 0, false
	}
	return id, true
}
