package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/gatehouse-api/gatehouse/clients"
	"github.com/gatehouse-api/gatehouse/invites"
)

type (
	Api struct {
		Store      clients.StoreClient
		engine     *invites.Engine
		baseLogger *zap.SugaredLogger
		Config     Config
	}
	Config struct {
		// AdminHeader names the header the fronting proxy uses to assert
		// the authenticated admin identity.
		AdminHeader string `split_words:"true" default:"x-gatehouse-admin"`
		Protocol    string `default:"http"`
	}

	// this just makes it easier to bind a handler for the Handle function
	varsHandler func(http.ResponseWriter, *http.Request, map[string]string)

	// Status is the standard error response body.
	Status struct {
		Code   int    `json:"code"`
		Reason string `json:"reason"`
	}
)

const (
	STATUS_ERR_DECODING_BODY    = "Error decoding request body"
	STATUS_ERR_CREATING_INVITE  = "Error creating the invite"
	STATUS_ERR_RESENDING_INVITE = "Error resending the invite"
	STATUS_ERR_REVOKING_INVITE  = "Error revoking the invite"
	STATUS_ERR_ACCEPTING_INVITE = "Error accepting the invite"
	STATUS_ERR_FINDING_INVITE   = "Error finding the invite"
	STATUS_ERR_LISTING_USERS    = "Error listing users"

	STATUS_INVITE_NOT_FOUND = "No matching invite was found"
	STATUS_NO_ACTOR         = "Missing acting admin identity"
	STATUS_OK               = "OK"
)

func NewApi(
	cfg Config,
	store clients.StoreClient,
	engine *invites.Engine,
	logger *zap.SugaredLogger,
) *Api {
	return &Api{
		Store:      store,
		engine:     engine,
		baseLogger: logger,
		Config:     cfg,
	}
}

func apiConfigProvider() (Config, error) {
	var config Config
	err := envconfig.Process("gatehouse", &config)
	if err != nil {
		return Config{}, err
	}
	return config, nil
}

func routerProvider(api *Api) *mux.Router {
	rtr := mux.NewRouter()
	api.SetHandlers("", rtr)
	return rtr
}

// RouterModule build a router
var RouterModule = fx.Options(fx.Provide(routerProvider, apiConfigProvider))

// addPathVarToLogger adds a request's path variable to the logging context.
//
// It uses the first case-insensitive match of name it finds, additional occurrences of name are
// ignored.
func (a *Api) addPathVarToLogger(name string) mux.MiddlewareFunc {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, orig *http.Request) {
			vars := mux.Vars(orig)
			next := orig
			for key := range vars {
				if !strings.EqualFold(key, name) {
					continue
				}
				ctxLog := a.logger(orig.Context()).With(zap.String(key, vars[key]))
				ctxWithLog := context.WithValue(orig.Context(), ctxLoggerKey{}, ctxLog)
				next = orig.WithContext(ctxWithLog)
				break
			}
			h.ServeHTTP(w, next)
		})
	}
}

type ctxLoggerKey struct{}

func (a *Api) logger(ctx context.Context) *zap.SugaredLogger {
	if logger, ok := ctx.Value(ctxLoggerKey{}).(*zap.SugaredLogger); ok {
		return logger
	}
	return a.cloneLogger()
}

func (a *Api) cloneLogger() *zap.SugaredLogger {
	return a.baseLogger.WithOptions()
}

func (a *Api) ctxLoggerHandler(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origCtx := r.Context()
		ctxLog := a.cloneLogger()
		ctxWithLog := context.WithValue(origCtx, ctxLoggerKey{}, ctxLog)
		rWithLog := r.WithContext(ctxWithLog)
		h.ServeHTTP(w, rWithLog)
	})
}

func (a *Api) SetHandlers(prefix string, rtr *mux.Router) {
	rtr.Use(mux.MiddlewareFunc(a.ctxLoggerHandler))
	rtr.Use(a.addPathVarToLogger("inviteId"))

	rtr.HandleFunc("/status", a.IsReady).Methods("GET")
	rtr.HandleFunc("/ready", a.IsReady).Methods("GET")
	rtr.HandleFunc("/live", a.IsAlive).Methods("GET")

	// vars is a shorthand for applying the varsHandler to an handler.
	type vars = varsHandler

	// POST   /admin/invites
	// GET    /admin/invites/:inviteId/resend-context
	// POST   /admin/invites/:inviteId/resend
	// PATCH  /admin/invites/:inviteId/revoke
	// GET    /admin/users
	admin := rtr.PathPrefix("/admin").Subrouter()
	admin.Handle("/invites", vars(a.CreateInvite)).Methods("POST")
	admin.Handle("/invites/{inviteId}/resend-context", vars(a.GetResendContext)).Methods("GET")
	admin.Handle("/invites/{inviteId}/resend", vars(a.ResendInvite)).Methods("POST")
	admin.Handle("/invites/{inviteId}/revoke", vars(a.RevokeInvite)).Methods("PATCH")
	admin.Handle("/users", vars(a.ListUsers)).Methods("GET")

	// POST /invites/:token/accept
	rtr.Handle("/invites/{token}/accept", vars(a.AcceptInvite)).Methods("POST")
}

func (h varsHandler) ServeHTTP(res http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	h(res, req, vars)
}

func (a *Api) IsReady(res http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	if err := a.Store.Ping(ctx); err != nil {
		a.sendError(ctx, res, http.StatusInternalServerError, "store connectivity failure", err)
		return
	}
	res.WriteHeader(http.StatusOK)
	res.Write([]byte(STATUS_OK))
}

func (a *Api) IsAlive(res http.ResponseWriter, req *http.Request) {
	res.WriteHeader(http.StatusOK)
	res.Write([]byte(STATUS_OK))
}

// actor resolves the acting admin identity asserted by the fronting proxy.
// Writes a 401 and returns empty when the header is absent.
func (a *Api) actor(res http.ResponseWriter, req *http.Request) string {
	actor := strings.TrimSpace(req.Header.Get(a.Config.AdminHeader))
	if actor == "" {
		a.sendError(req.Context(), res, http.StatusUnauthorized, STATUS_NO_ACTOR)
		return ""
	}
	ctxLog := a.logger(req.Context()).With(zap.String("actor", actor))
	*req = *req.WithContext(context.WithValue(req.Context(), ctxLoggerKey{}, ctxLog))
	return actor
}

// handleEngineError translates engine outcomes into the response taxonomy:
// unknown invite is 404, terminal-state refusals are 409, guardrail
// refusals are 400, anything else is a 500 with the given fallback reason.
func (a *Api) handleEngineError(ctx context.Context, res http.ResponseWriter, err error, fallback string) {
	if err == invites.ErrNotFound {
		a.sendError(ctx, res, http.StatusNotFound, STATUS_INVITE_NOT_FOUND)
		return
	}
	if conflict, ok := invites.AsConflict(err); ok {
		a.sendError(ctx, res, http.StatusConflict, conflict.Reason)
		return
	}
	if guardrail, ok := invites.AsGuardrail(err); ok {
		a.sendError(ctx, res, http.StatusBadRequest, guardrail.Reason)
		return
	}
	a.sendError(ctx, res, http.StatusInternalServerError, fallback, err)
}

func (a *Api) sendModelAsResWithStatus(ctx context.Context, res http.ResponseWriter, model interface{}, statusCode int) {
	if jsonDetails, err := json.Marshal(model); err != nil {
		a.logger(ctx).With("model", model, zap.Error(err)).Errorf("trying to send model")
		http.Error(res, "Error marshaling data for response", http.StatusInternalServerError)
	} else {
		res.Header().Set("content-type", "application/json")
		res.WriteHeader(statusCode)
		res.Write(jsonDetails)
	}
}

func (a *Api) sendError(ctx context.Context, res http.ResponseWriter, statusCode int, reason string, extras ...interface{}) {
	a.sendErrorLog(ctx, statusCode, reason, extras...)
	a.sendModelAsResWithStatus(ctx, res, Status{Code: statusCode, Reason: reason}, statusCode)
}

func (a *Api) sendErrorLog(ctx context.Context, code int, reason string, extras ...interface{}) {
	details := splitExtrasAndErrorsAndFields(extras)
	log := a.logger(ctx).WithOptions(zap.AddCallerSkip(2)).
		Desugar().With(details.Fields...).Sugar().
		With(zap.Int("code", code))
	if len(details.NonErrors) > 0 {
		log = log.With("extras", details.NonErrors)
	}
	if len(details.Errors) == 1 {
		log = log.With(zap.Error(details.Errors[0]))
	} else if len(details.Errors) > 1 {
		log = log.With(zap.Errors("errors", details.Errors))
	}
	if code < http.StatusInternalServerError || len(details.Errors) == 0 {
		// if there are no errors, use info to skip the stack trace, as it's
		// probably not useful
		log.Info(reason)
	} else {
		log.Error(reason)
	}
}

type extrasDetails struct {
	Errors    []error
	NonErrors []interface{}
	Fields    []zap.Field
}

func splitExtrasAndErrorsAndFields(extras []interface{}) extrasDetails {
	details := extrasDetails{
		Errors:    []error{},
		NonErrors: []interface{}{},
		Fields:    []zap.Field{},
	}
	for _, extra := range extras {
		if err, ok := extra.(error); ok {
			if err != nil {
				details.Errors = append(details.Errors, err)
			}
		} else if field, ok := extra.(zap.Field); ok {
			details.Fields = append(details.Fields, field)
		} else if extraErrs, ok := extra.([]error); ok {
			if len(extraErrs) > 0 {
				details.Errors = append(details.Errors, extraErrs...)
			}
		} else {
			details.NonErrors = append(details.NonErrors, extra)
		}
	}
	return details
}
