// Package api exposes the bridge over HTTP: route discovery, transfer
// submission, inbound delivery for relayers, oracle proposals and the
// admin surface.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/spantoken/bridge-hub/pkg/accounts"
	"github.com/spantoken/bridge-hub/pkg/adapter"
	apphttp "github.com/spantoken/bridge-hub/pkg/app/http"
	"github.com/spantoken/bridge-hub/pkg/auth"
	"github.com/spantoken/bridge-hub/pkg/bridge"
	"github.com/spantoken/bridge-hub/pkg/oracle"
	"github.com/spantoken/bridge-hub/pkg/ratelimit"
	"github.com/spantoken/bridge-hub/pkg/router"
)

const defaultRequestTimeout = 60 * time.Second

// Deps collects everything the HTTP layer serves. Accounts and Directory
// may be nil when the service runs without Postgres; the account admin
// endpoints then report a configuration error.
type Deps struct {
	Router    *router.Router
	Adapters  map[bridge.Protocol]*adapter.Adapter
	Oracle    *oracle.Oracle
	Limiter   *ratelimit.Limiter
	Accounts  accounts.Store
	Directory *accounts.Directory
	Verifier  *auth.Verifier
	Logger    *zap.Logger
}

// Server is the HTTP layer over the bridge components.
type Server struct {
	router    *router.Router
	adapters  map[bridge.Protocol]*adapter.Adapter
	oracle    *oracle.Oracle
	limiter   *ratelimit.Limiter
	accounts  accounts.Store
	directory *accounts.Directory
	verifier  *auth.Verifier
	validate  *validator.Validate
	logger    *zap.Logger
}

// NewServer wires the handlers over the bridge components.
func NewServer(deps Deps) *Server {
	return &Server{
		router:    deps.Router,
		adapters:  deps.Adapters,
		oracle:    deps.Oracle,
		limiter:   deps.Limiter,
		accounts:  deps.Accounts,
		directory: deps.Directory,
		verifier:  deps.Verifier,
		validate:  validator.New(),
		logger:    deps.Logger.Named("api"),
	}
}

// Routes builds the chi router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(defaultRequestTimeout))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.verifier.Authenticate)

		r.Get("/routes", apphttp.HandleError(s.getRoutes))
		r.Get("/routes/optimal", apphttp.HandleError(s.getOptimalRoute))

		r.With(s.verifier.Require("bridge")).Post("/transfers", apphttp.HandleError(s.createTransfer))
		r.Get("/transfers", apphttp.HandleError(s.listTransfers))
		r.Get("/transfers/{id}", apphttp.HandleError(s.getTransfer))

		// Relayer capability is per protocol, checked inside the handler.
		r.Post("/inbound/{protocol}", apphttp.HandleError(s.handleInbound))
		r.Put("/transfers/{id}/status", apphttp.HandleError(s.updateTransferStatus))

		// Oracle proposals are open endpoints: the threshold signature is
		// the authorization.
		r.Post("/oracle/proposals", apphttp.HandleError(s.proposeUpdate))
		r.Get("/oracle/supplies", apphttp.HandleError(s.getSupplies))

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.verifier.Require("admin"))

			r.Post("/router/pause", apphttp.HandleError(s.pauseRouter))
			r.Post("/router/unpause", apphttp.HandleError(s.unpauseRouter))
			r.Post("/adapters/{protocol}/pause", apphttp.HandleError(s.pauseAdapter))
			r.Post("/adapters/{protocol}/unpause", apphttp.HandleError(s.unpauseAdapter))
			r.Put("/adapters/{protocol}/remotes", apphttp.HandleError(s.setTrustedRemote))
			r.Put("/protocols/{protocol}", apphttp.HandleError(s.setProtocolEnabled))
			r.Post("/emergency", apphttp.HandleError(s.setEmergencyMode))
			r.Put("/ratelimit", apphttp.HandleError(s.updateRateLimit))
			r.Put("/accounts/{address}/tier", apphttp.HandleError(s.setAccountTier))
			r.Put("/accounts/{address}/exempt", apphttp.HandleError(s.setAccountExempt))
		})
	})

	return r
}
