package api

import (
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/lowtide/lowtide/pkg/agent"
	"github.com/lowtide/lowtide/pkg/auth"
	"github.com/lowtide/lowtide/pkg/config"
	"github.com/lowtide/lowtide/pkg/events"
	"github.com/lowtide/lowtide/pkg/gasprice"
	"github.com/lowtide/lowtide/pkg/httputil"
	"github.com/lowtide/lowtide/pkg/intents"
	"github.com/lowtide/lowtide/pkg/middleware"
	"github.com/lowtide/lowtide/pkg/plans"
	"github.com/lowtide/lowtide/pkg/solver"
	"github.com/lowtide/lowtide/pkg/subscriptions"
)

// Deps carries everything the API server needs. Feed, SigningKeys,
// Dispatcher and Redis are optional.
type Deps struct {
	Plans         plans.Service
	Intents       intents.Service
	Subscriptions subscriptions.Service
	Queue         *solver.Queue
	Monitor       *gasprice.Monitor
	Feed          *gasprice.Feed
	Factory       *agent.Factory
	Options       *config.Options
	Dispatcher    *events.Dispatcher
	Keyring       *auth.Keyring
	Audit         *auth.AuditTrail
	SigningKeys   KeyRegistry
	Redis         *redis.Client
	Logger        *logrus.Logger
}

// Server represents our API server
type Server struct {
	router *mux.Router
	log    *logrus.Logger

	plans         plans.Service
	intents       intents.Service
	subscriptions subscriptions.Service
	queue         *solver.Queue
	monitor       *gasprice.Monitor
	feed          *gasprice.Feed
	factory       *agent.Factory
	options       *config.Options
	dispatcher    *events.Dispatcher
	keyring       *auth.Keyring
	audit         *auth.AuditTrail
	signingKeys   KeyRegistry
	redis         *redis.Client
}

// NewServer creates a new API server
func NewServer(deps Deps) *Server {
	log := deps.Logger
	if log == nil {
		log = logrus.New()
	}

	s := &Server{
		router:        mux.NewRouter(),
		log:           log,
		plans:         deps.Plans,
		intents:       deps.Intents,
		subscriptions: deps.Subscriptions,
		queue:         deps.Queue,
		monitor:       deps.Monitor,
		feed:          deps.Feed,
		factory:       deps.Factory,
		options:       deps.Options,
		dispatcher:    deps.Dispatcher,
		keyring:       deps.Keyring,
		audit:         deps.Audit,
		signingKeys:   deps.SigningKeys,
		redis:         deps.Redis,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.Use(mux.MiddlewareFunc(httputil.RecoveryMiddleware))
	s.router.Use(mux.MiddlewareFunc(httputil.RequestIDMiddleware))

	api := s.router.PathPrefix("/api/v1").Subrouter()

	authMW := middleware.NewAuthMiddleware(s.keyring, s.audit, false)
	api.Use(authMW.Handler)

	// Rate limits are shared across replicas when redis is available.
	if s.redis != nil {
		api.Use(middleware.NewDistributedRateLimitMiddleware(s.redis, s.log).Handler)
	} else {
		api.Use(middleware.NewRateLimitMiddleware().Handler)
	}

	var publisher events.Publisher = events.NopPublisher{}
	if s.dispatcher != nil {
		publisher = s.dispatcher
	}

	NewPlanHandlers(s.plans).RegisterRoutes(api)
	NewIntentHandlers(s.intents, s.signingKeys, s.audit, publisher).RegisterRoutes(api)
	NewSubscriptionHandlers(s.subscriptions, s.queue, s.audit, publisher).RegisterRoutes(api)
	NewAgentHandlers(s.factory).RegisterRoutes(api)
	NewSolverHandlers(s.queue, s.monitor, s.audit).RegisterRoutes(api)
	NewGasPriceHandlers(s.monitor, s.feed).RegisterRoutes(api)
	if s.dispatcher != nil {
		NewEventHandlers(s.dispatcher).RegisterRoutes(api)
	}
	NewAdminHandlers(s.options, s.keyring, s.audit).RegisterRoutes(api)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router exposes the underlying router so callers can attach extra routes
func (s *Server) Router() *mux.Router {
	return s.router
}

// RouteRegistrar is an interface for types that can register routes
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// RegisterRoutes registers routes from a RouteRegistrar
func (s *Server) RegisterRoutes(registrar RouteRegistrar) {
	registrar.RegisterRoutes(s.router)
}
