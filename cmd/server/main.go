// Package main runs the ChainProof ledger service:
// - HTTP API (continuous): registry, profiles, staking, reward pool
// - Scheduler (periodic): reward distribution, account mirroring
// - Event mirror (continuous, optional): on-chain program events
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"chainproof-ledger/internal/api"
	"chainproof-ledger/internal/auth"
	"chainproof-ledger/internal/config"
	"chainproof-ledger/internal/custody"
	"chainproof-ledger/internal/domain"
	"chainproof-ledger/internal/events"
	"chainproof-ledger/internal/idhash"
	"chainproof-ledger/internal/ledger"
	"chainproof-ledger/internal/logging"
	"chainproof-ledger/internal/mirror"
	"chainproof-ledger/internal/observability"
	"chainproof-ledger/internal/orchestrator"
	"chainproof-ledger/internal/solana"
	"chainproof-ledger/internal/storage"
	chstore "chainproof-ledger/internal/storage/clickhouse"
	"chainproof-ledger/internal/storage/memory"
	"chainproof-ledger/internal/storage/migrations"
	pgstore "chainproof-ledger/internal/storage/postgres"
)

// Server holds all components of the ledger service.
type Server struct {
	cfg   config.Config
	addrs config.Addresses

	stores  *allStores
	engine  *ledger.Engine
	sinks   events.Multi
	orch    *orchestrator.Orchestrator
	api     *api.Server
	started time.Time

	logger *logrus.Entry
}

// allStores holds the account store and every event sink.
type allStores struct {
	accounts storage.AccountStore
	progress storage.SyncProgressStore
	// events serves the API's event history.
	events storage.EventStore
	sinks  map[string]storage.EventStore
	ping   func(ctx context.Context) error
}

func main() {
	configPath := flag.String("config", os.Getenv("CHAINPROOF_CONFIG"), "Path to YAML config file")
	listen := flag.String("listen", "", "HTTP listen address (overrides config)")
	backend := flag.String("backend", "", "Account store backend: memory or postgres (overrides config)")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string (overrides config)")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string for the event sink (overrides config)")
	logLevel := flag.String("log-level", "", "Log level (overrides config)")
	mirrorChain := flag.Bool("mirror", false, "Mirror on-chain accounts and events")

	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.ListenAddress = *listen
	}
	if *backend != "" {
		cfg.Storage.Backend = *backend
	}
	if *postgresDSN != "" {
		cfg.Storage.PostgresDSN = *postgresDSN
	}
	if *clickhouseDSN != "" {
		cfg.Storage.ClickHouseDSN = *clickhouseDSN
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *mirrorChain {
		cfg.Solana.Mirror = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	closer, err := logging.Setup(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()
	logger := logging.Component("server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, cleanup, err := createStores(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to create stores")
	}
	defer cleanup()

	server, err := newServer(cfg, stores, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to build server")
	}

	// Channel to signal completion
	done := make(chan error, 1)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.WithField("signal", sig.String()).Info("received signal, initiating graceful shutdown")
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.WithField("signal", sig.String()).Warn("received second signal, forcing immediate shutdown")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Warn("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	if cfg.MetricsAddress != "" {
		go startMetricsServer(ctx, cfg.MetricsAddress, logger)
	}

	err = server.Run(ctx)
	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Fatal("server error")
	}

	logger.Info("shutdown complete")
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// createStores opens the configured account store and event sinks.
func createStores(ctx context.Context, cfg config.Config, logger *logrus.Entry) (*allStores, func(), error) {
	stores := &allStores{sinks: make(map[string]storage.EventStore)}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN, cfg.Storage.PostgresMaxConns)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, pool.Close)

		if cfg.Storage.Migrate {
			applied, err := migrations.RunPostgresMigrations(ctx, pool)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("postgres migrations: %w", err)
			}
			logger.WithField("applied", len(applied)).Info("postgres migrations complete")
		}

		pgEvents := pgstore.NewEventStore(pool)
		stores.accounts = pgstore.NewAccountStore(pool)
		stores.progress = pgstore.NewSyncProgressStore(pool)
		stores.events = pgEvents
		stores.sinks["postgres"] = pgEvents
		stores.ping = func(ctx context.Context) error { return pool.Ping(ctx) }
		logger.Info("using postgres account store")
	default:
		memEvents := memory.NewEventStore()
		stores.accounts = memory.NewAccountStore()
		stores.progress = memory.NewSyncProgressStore()
		stores.events = memEvents
		stores.sinks["memory"] = memEvents
		logger.Info("using in-memory account store")
	}

	if cfg.Storage.ClickHouseDSN != "" {
		conn, err := chstore.NewConn(ctx, cfg.Storage.ClickHouseDSN, chstore.CreateDatabase())
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("clickhouse: %w", err)
		}
		closers = append(closers, func() { _ = conn.Close() })
		if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		stores.sinks["clickhouse"] = chstore.NewEventStore(conn)
		logger.Info("clickhouse event sink enabled")
	}

	return stores, cleanup, nil
}

func newServer(cfg config.Config, stores *allStores, logger *logrus.Entry) (*Server, error) {
	addrs, err := cfg.ProgramAddresses()
	if err != nil {
		return nil, err
	}

	deriver := idhash.NewDeriver(addrs.Program, addrs.TokenProgram, addrs.AssociatedTokenProgram)
	tokens := custody.NewTokenProgram(addrs.StakeMint, addrs.TokenProgram)
	engine := ledger.NewEngine(stores.accounts, deriver, tokens, cfg.LedgerParams())
	engine.SetLogger(logging.Component("ledger"))

	sinks := events.Multi{events.NewLogEmitter(logging.Component("events"))}
	for name, store := range stores.sinks {
		sinks = append(sinks, events.NewStoreEmitter(name, store, logging.Component("events")))
	}
	engine.SetEmitter(sinks)

	s := &Server{
		cfg:    cfg,
		addrs:  addrs,
		stores: stores,
		engine: engine,
		sinks:  sinks,
		logger: logger,
	}

	var jobs []orchestrator.Job
	if cfg.Scheduler.Enabled {
		operator, err := domain.ParseAddress(cfg.Scheduler.Operator)
		if err != nil {
			return nil, fmt.Errorf("scheduler operator: %w", err)
		}
		jobs = append(jobs, orchestrator.DistributionJob(engine, operator,
			cfg.Scheduler.CheckInterval.Duration, nil, logging.Component("scheduler")))
	}
	if cfg.Solana.Mirror {
		syncer := mirror.NewAccountSyncer(mirror.AccountSyncerOptions{
			RPC:     solana.NewHTTPClient(cfg.Solana.RPCEndpoint),
			Store:   stores.accounts,
			Program: addrs.Program,
			Logger:  logging.Component("mirror"),
		})
		jobs = append(jobs, orchestrator.AccountSyncJob(syncer, cfg.Solana.SyncInterval.Duration, logging.Component("mirror")))
	}
	if len(jobs) > 0 {
		orch, err := orchestrator.New(orchestrator.Options{Jobs: jobs, Logger: logging.Component("scheduler")})
		if err != nil {
			return nil, err
		}
		s.orch = orch
	}

	apiCfg := api.Config{
		Engine: engine,
		Events: stores.events,
		Faucet: cfg.Faucet,
		Status: s.status,
		Logger: logging.Component("api"),
	}
	if !cfg.Auth.Disabled {
		apiCfg.Auth = auth.NewAuthenticator(nil, cfg.Auth.MaxSkew.Duration, nil)
	} else {
		logger.Warn("request signature checks disabled; the signer header is trusted")
	}
	if cfg.FaucetOperator != "" {
		op := domain.MustParseAddress(cfg.FaucetOperator)
		apiCfg.FaucetOperator = &op
	}
	if stores.ping != nil {
		apiCfg.Ready = func(r *http.Request) error { return stores.ping(r.Context()) }
	}
	s.api = api.New(apiCfg)
	return s, nil
}

// Run starts every component and blocks until ctx is canceled or one fails.
func (s *Server) Run(ctx context.Context) error {
	s.started = time.Now()
	s.logger.WithFields(logrus.Fields{
		"listen":  s.cfg.ListenAddress,
		"backend": s.cfg.Storage.Backend,
		"program": s.addrs.Program.String(),
		"mirror":  s.cfg.Solana.Mirror,
	}).Info("starting ledger server")

	errCh := make(chan error, 3)

	go func() {
		if err := s.serveHTTP(ctx); err != nil {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	if s.orch != nil {
		go func() {
			err := s.orch.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("scheduler: %w", err)
			}
		}()
	}

	if s.cfg.Solana.Mirror {
		go func() {
			err := s.runMirror(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("mirror: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// serveHTTP runs the API until ctx is canceled, then drains connections.
func (s *Server) serveHTTP(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           s.api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.WithError(err).Warn("http shutdown")
		}
	}()

	s.logger.WithField("addr", srv.Addr).Info("http api listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// runMirror backfills missed program events, then follows the live log
// stream, reconnecting with backoff whenever the subscription ends.
func (s *Server) runMirror(ctx context.Context) error {
	log := logging.Component("mirror")
	rpc := solana.NewHTTPClient(s.cfg.Solana.RPCEndpoint)
	delay := time.Second
	const maxDelay = time.Minute

	for {
		err := s.mirrorOnce(ctx, rpc, log)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.WithError(err).WithField("retry_in", delay).Warn("event mirror stopped")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

func (s *Server) mirrorOnce(ctx context.Context, rpc solana.RPCClient, log *logrus.Entry) error {
	ws, err := solana.NewWSClient(ctx, s.cfg.Solana.WSEndpoint, nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	listener := mirror.NewEventListener(mirror.EventListenerOptions{
		WS:       ws,
		RPC:      rpc,
		Program:  s.addrs.Program,
		Emitter:  s.sinks,
		Progress: s.stores.progress,
		Logger:   log,
	})

	res, err := listener.Backfill(ctx)
	if err != nil {
		return fmt.Errorf("backfill: %w", err)
	}
	log.WithFields(logrus.Fields{
		"transactions": res.Transactions,
		"events":       res.Events,
		"failed":       res.Failed,
		"errors":       res.Errors,
		"duration":     res.Duration,
	}).Info("backfill complete")

	return listener.Run(ctx)
}

// serverStatus is the JSON body of /v1/status.
type serverStatus struct {
	Status  string                   `json:"status"`
	Uptime  string                   `json:"uptime"`
	Backend string                   `json:"backend"`
	Mirror  bool                     `json:"mirror"`
	Jobs    []orchestrator.JobStatus `json:"jobs"`
}

func (s *Server) status() any {
	st := serverStatus{
		Status:  "ok",
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Backend: s.cfg.Storage.Backend,
		Mirror:  s.cfg.Solana.Mirror,
		Jobs:    []orchestrator.JobStatus{},
	}
	if s.orch != nil {
		st.Jobs = s.orch.Status()
	}
	return st
}

func startMetricsServer(ctx context.Context, addr string, logger *logrus.Entry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	logger.WithField("addr", addr).Info("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Error("metrics server error")
	}
}
