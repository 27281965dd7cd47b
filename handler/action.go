package handler

import (
	"net/http"
	"time"

	"ticket-ledger-engine/coordinator"
	"ticket-ledger-engine/logger"
	"ticket-ledger-engine/response"

	"github.com/gorilla/mux"
)

// waitCeiling caps how long a wait request can hold its connection open.
const waitCeiling = 30 * time.Second

func GetAction(coord *coordinator.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		action, err := coord.Action(ctx, mux.Vars(r)["actionID"])
		if err != nil {
			logger.Errorf(ctx, "getAction: unable to get action: %v", err)
			response.FromError(err).Send(ctx, w)
			return
		}

		response.SuccessResponse{
			Data:       &response.Data{Action: action},
			StatusCode: http.StatusOK,
		}.Send(w)
	}
}

// WaitAction blocks until the action resolves or the wait ceiling passes,
// then returns the action in whatever state it reached.
func WaitAction(coord *coordinator.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actionID := mux.Vars(r)["actionID"]

		updates, err := coord.Subscribe(ctx, actionID)
		if err != nil {
			logger.Errorf(ctx, "waitAction: unable to subscribe to action %s: %v", actionID, err)
			response.FromError(err).Send(ctx, w)
			return
		}

		select {
		case resolved, ok := <-updates:
			if ok {
				response.SuccessResponse{
					Data:       &response.Data{Action: resolved},
					StatusCode: http.StatusOK,
				}.Send(w)
				return
			}
		case <-time.After(waitCeiling):
		case <-ctx.Done():
			return
		}

		action, err := coord.Action(ctx, actionID)
		if err != nil {
			response.FromError(err).Send(ctx, w)
			return
		}
		response.SuccessResponse{
			Data:       &response.Data{Action: action},
			StatusCode: http.StatusOK,
		}.Send(w)
	}
}

func CancelAction(coord *coordinator.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actionID := mux.Vars(r)["actionID"]

		action, err := coord.Cancel(ctx, actionID)
		if err != nil {
			logger.Errorf(ctx, "cancelAction: unable to cancel action %s: %v", actionID, err)
			response.FromError(err).Send(ctx, w)
			return
		}

		response.SuccessResponse{
			Data:       &response.Data{Action: action},
			StatusCode: http.StatusAccepted,
		}.Send(w)
	}
}
