package router

import (
	"context"
	"fmt"
	"net/http"
	"ticket-ledger-engine/config"
	"ticket-ledger-engine/coordinator"
	"ticket-ledger-engine/factory"
	"ticket-ledger-engine/handler"
	"ticket-ledger-engine/healthcheck"
	"ticket-ledger-engine/ledger"
	"ticket-ledger-engine/logger"
	"ticket-ledger-engine/middleware"
	"ticket-ledger-engine/query"
	"ticket-ledger-engine/response"
	"ticket-ledger-engine/settlement"
	"ticket-ledger-engine/store"
	"ticket-ledger-engine/vault"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

// Router wires the ledger, coordinator and query facade and returns the
// router for all the API handler.
func Router(ctx context.Context) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.SetCorrelationIDHeader)
	r.Use(middleware.PanicHandler)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		response.ResourceNotFound(fmt.Sprintf("The requested resource was not found: path: %s, method: %s", req.URL.Path, req.Method), "The requested resource was not found!").Send(req.Context(), w)
	})

	r.Use(middleware.ResponseTimeLogging)
	r.Use(middleware.RequestLogging)
	r.Use(middleware.SetContentTypeHeader)

	f := factory.NewFactory()

	st := newStore(ctx, f)
	registry, lg, err := ledger.New(ctx, st)
	if err != nil {
		logger.Fatalf(ctx, "router: error restoring ledger state: %+v", err)
	}

	var cache *redis.Client
	var actions coordinator.ActionStore
	if viper.GetString(config.RedisAddress) != "" {
		cache = f.Redis(ctx)
		actions = coordinator.NewRedisActions(cache)
	} else {
		actions = coordinator.NewMemoryActions()
	}

	facade := query.NewFacade(registry, lg, cache, viper.GetDuration(config.CacheTTL))

	coord := coordinator.New(newBackend(ctx), registry, lg, actions, facade, coordinator.Config{
		PollInterval:    viper.GetDuration(config.PollInterval),
		Deadline:        viper.GetDuration(config.SettleDeadline),
		MaxAttempts:     viper.GetInt(config.MaxAttempts),
		BaseBackoff:     viper.GetDuration(config.BaseBackoff),
		ReconcileWindow: viper.GetDuration(config.ReconcileWindow),
	})
	if err := coord.Restore(ctx); err != nil {
		logger.Fatalf(ctx, "router: error restoring pending actions: %+v", err)
	}

	r.HandleFunc("/healthcheck", healthcheck.Self).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	baseRouter := r.PathPrefix("/v1").Subrouter()

	eventRouter := baseRouter.PathPrefix("/event").Subrouter()
	eventRouter.HandleFunc("", handler.CreateEvent(coord)).Methods(http.MethodPost)
	eventRouter.HandleFunc("/{eventID}", handler.GetEvent(facade)).Methods(http.MethodGet)
	eventRouter.HandleFunc("/{eventID}/cancel", handler.CancelEvent(registry, facade)).Methods(http.MethodPost)
	baseRouter.HandleFunc("/events", handler.GetEvents(facade)).Methods(http.MethodGet)

	ticketRouter := baseRouter.PathPrefix("/ticket").Subrouter()
	ticketRouter.HandleFunc("/purchase", handler.PurchaseTicket(coord)).Methods(http.MethodPost)
	ticketRouter.HandleFunc("/transfer", handler.TransferTicket(coord)).Methods(http.MethodPost)
	ticketRouter.HandleFunc("/redeem", handler.RedeemTicket(coord)).Methods(http.MethodPost)
	ticketRouter.HandleFunc("/{ticketID}", handler.GetTicket(facade)).Methods(http.MethodGet)
	baseRouter.HandleFunc("/account/{account}/tickets", handler.GetAccountTickets(facade)).Methods(http.MethodGet)

	actionRouter := baseRouter.PathPrefix("/action").Subrouter()
	actionRouter.HandleFunc("/{actionID}", handler.GetAction(coord)).Methods(http.MethodGet)
	actionRouter.HandleFunc("/{actionID}/wait", handler.WaitAction(coord)).Methods(http.MethodGet)
	actionRouter.HandleFunc("/{actionID}/cancel", handler.CancelAction(coord)).Methods(http.MethodPost)

	return r
}

// newStore picks the durable store. Without a configured database the
// engine runs on the in-memory store, which is enough for development and
// for a single-process deployment that accepts losing state on restart.
func newStore(ctx context.Context, f factory.Factory) store.Store {
	if viper.GetString(config.DBURL) == "" {
		logger.Infof(ctx, "router: no database configured, using in-memory store")
		return store.NewMemory()
	}

	st, err := store.NewMySQL(f.DB(ctx))
	if err != nil {
		logger.Fatalf(ctx, "router: error preparing mysql store: %+v", err)
	}
	return st
}

// newBackend picks the settlement backend. Operator credentials come from
// vault when one is configured, otherwise straight from configuration.
func newBackend(ctx context.Context) settlement.Backend {
	apiAddress := viper.GetString(config.SettlementAPIAddress)
	if apiAddress == "" {
		logger.Infof(ctx, "router: no settlement api configured, using simulated backend")
		return settlement.NewSim(true, 0)
	}

	operator := &settlement.Account{
		AccountAddress:     viper.GetString(config.OperatorAddress),
		SecurityPassphrase: viper.GetString(config.OperatorPassphrase),
	}
	if viper.GetString(config.VaultAddress) != "" {
		v, err := vault.New(
			viper.GetString(config.VaultToken),
			viper.GetString(config.VaultUnSealKey),
			viper.GetString(config.VaultAddress),
			viper.GetString(config.VaultOperatorPath))
		if err != nil {
			logger.Fatalf(ctx, "router: error creating vault client: %+v", err)
		}
		operator.AccountAddress, operator.SecurityPassphrase, err = v.OperatorCredentials()
		if err != nil {
			logger.Fatalf(ctx, "router: error reading operator credentials: %+v", err)
		}
	}

	var noteKey []byte
	if k := viper.GetString(config.SettlementNoteKey); k != "" {
		noteKey = []byte(k)
	}

	return settlement.NewAlgorand(
		operator,
		apiAddress,
		viper.GetString(config.SettlementAPIKey),
		viper.GetUint64(config.SettlementMinFee),
		noteKey,
	)
}
