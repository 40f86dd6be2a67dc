// Package api exposes the ledger over HTTP.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"chainproof-ledger/internal/auth"
	"chainproof-ledger/internal/domain"
	"chainproof-ledger/internal/ledger"
	"chainproof-ledger/internal/observability"
	"chainproof-ledger/internal/storage"
)

// Config captures the dependencies required to construct the server.
type Config struct {
	Engine *ledger.Engine
	// Events serves event history; nil disables the events routes.
	Events storage.EventStore
	// Auth verifies request signatures. When nil the signer header is
	// trusted as-is, which is only suitable for local deployments.
	Auth *auth.Authenticator
	// Faucet enables the token faucet route. FaucetOperator, when set, is
	// the only signer allowed to mint; otherwise any signer may.
	Faucet         bool
	FaucetOperator *domain.Address
	// Ready reports whether dependencies are reachable; nil means always ready.
	Ready func(r *http.Request) error
	// Status reports background job state on /v1/status; nil disables it.
	Status func() any
	Logger *logrus.Entry
}

// Server encapsulates dependencies for the HTTP API.
type Server struct {
	engine *ledger.Engine
	events storage.EventStore
	auth   *auth.Authenticator
	faucet bool
	minter *domain.Address
	ready  func(r *http.Request) error
	status func() any
	log    *logrus.Entry

	router http.Handler
}

// New constructs a configured HTTP router.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.WithField("component", "api")
	}
	srv := &Server{
		engine: cfg.Engine,
		events: cfg.Events,
		auth:   cfg.Auth,
		faucet: cfg.Faucet,
		minter: cfg.FaucetOperator,
		ready:  cfg.Ready,
		status: cfg.Status,
		log:    logger,
	}
	srv.router = srv.buildRouter()
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.observe)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.health)
	r.Method(http.MethodGet, "/metrics", observability.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Get("/tokens/{mint}", s.getTokenEntry)
		api.Get("/profiles/{wallet}", s.getProfile)
		api.Get("/developers/registry", s.getDeveloperRegistry)
		api.Get("/projects", s.listProjects)
		api.Get("/projects/{mint}", s.getProject)
		api.Get("/stakes/{wallet}/{mint}", s.getUserStake)
		api.Get("/pool", s.getPool)
		api.Get("/balances/{owner}", s.getBalance)
		if s.events != nil {
			api.Get("/events", s.listEvents)
			api.Get("/events/{id}", s.getEvent)
		}
		if s.status != nil {
			api.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusOK, s.status())
			})
		}

		api.Group(func(signed chi.Router) {
			signed.Use(s.identify)
			signed.Post("/tokens", s.registerToken)
			signed.Post("/tokens/{mint}", s.updateTokenEntry)
			signed.Post("/profiles", s.createProfile)
			signed.Post("/profiles/update", s.updateProfile)
			signed.Post("/developers/registry", s.initializeDeveloperRegistry)
			signed.Post("/developers", s.registerDeveloper)
			signed.Post("/projects", s.initializeProjectStakes)
			signed.Post("/stakes", s.stake)
			signed.Post("/stakes/unstake-request", s.requestUnstake)
			signed.Post("/stakes/unstake-complete", s.completeUnstake)
			signed.Post("/pool", s.initializeRewardPool)
			signed.Post("/pool/deposits", s.deposit)
			signed.Post("/pool/distributions", s.distribute)
			signed.Post("/token-accounts", s.openTokenAccount)
			if s.faucet {
				signed.Post("/faucet", s.faucetMint)
			}
		})
	})

	return r
}

// identify resolves the acting wallet of a mutating request.
func (s *Server) identify(next http.Handler) http.Handler {
	if s.auth != nil {
		return s.auth.Middleware(func(w http.ResponseWriter, _ *http.Request, err error) {
			writeError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
		})(next)
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signer, err := domain.ParseAddress(strings.TrimSpace(r.Header.Get(auth.HeaderSigner)))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "missing or invalid "+auth.HeaderSigner)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithSigner(r.Context(), signer)))
	})
}

// observe records request metrics and a structured access log line.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		observability.RecordHTTPRequest(route, r.Method, status, elapsed.Seconds())

		entry := s.log.WithFields(logrus.Fields{
			"method":     r.Method,
			"route":      route,
			"status":     status,
			"duration":   elapsed,
			"request_id": chimw.GetReqID(r.Context()),
		})
		if status >= http.StatusInternalServerError {
			entry.Warn("request failed")
			return
		}
		entry.Debug("request served")
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r); err != nil {
			writeError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
