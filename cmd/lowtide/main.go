package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lowtide/lowtide/pkg/agent"
	"github.com/lowtide/lowtide/pkg/api"
	"github.com/lowtide/lowtide/pkg/auth"
	"github.com/lowtide/lowtide/pkg/config"
	"github.com/lowtide/lowtide/pkg/events"
	"github.com/lowtide/lowtide/pkg/gasprice"
	"github.com/lowtide/lowtide/pkg/intents"
	"github.com/lowtide/lowtide/pkg/observability"
	"github.com/lowtide/lowtide/pkg/plans"
	"github.com/lowtide/lowtide/pkg/solver"
	"github.com/lowtide/lowtide/pkg/subscriptions"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "lowtide: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	log := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signing keys are kept in memory in both storage modes; they are
	// re-registered at subscriber onboarding after a restart.
	signingKeys := intents.NewMemoryKeyring()

	var (
		db        *sql.DB
		planSvc   plans.Service
		intentSvc intents.Service
		subSvc    subscriptions.Service
	)
	switch cfg.Storage.Type {
	case "postgres":
		db, err = sql.Open("postgres", cfg.Storage.PostgresURL)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()
		db.SetMaxOpenConns(cfg.Storage.PostgresMaxConns)
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		planSvc = plans.NewPostgresService(db, nil)
		intentSvc = intents.NewPostgresService(db, signingKeys, 0)
		subSvc = subscriptions.NewPostgresService(db, planSvc, intentSvc)
		log.Info("using postgres storage")
	default:
		planSvc = plans.NewMemoryService(nil)
		intentSvc = intents.NewMemoryService(signingKeys, 0)
		subSvc = subscriptions.NewMemoryService(planSvc, intentSvc)
		log.Info("using in-memory storage")
	}

	options, err := config.NewOptions(cfg.Solver)
	if err != nil {
		return err
	}
	if cfg.Solver.OptionsFile != "" {
		if err := options.LoadFromFile(cfg.Solver.OptionsFile); err != nil {
			log.WithError(err).Warn("could not load options file, using environment values")
		}
		if err := options.Watch(ctx, cfg.Solver.OptionsFile, log); err != nil {
			return fmt.Errorf("watch options file: %w", err)
		}
	}

	monitor := gasprice.NewMonitor(cfg.Solver.OptimalGasPrice)
	var (
		feed        *gasprice.Feed
		redisClient *redis.Client
	)
	if cfg.Storage.RedisURL != "" {
		feed, err = gasprice.NewFeed(cfg.Storage.RedisURL, cfg.Storage.RedisFeedKey)
		if err != nil {
			return fmt.Errorf("connect gas price feed: %w", err)
		}
		redisClient = feed.Client()
		restored, err := feed.Restore(ctx, monitor)
		if err != nil {
			log.WithError(err).Warn("could not restore gas price history from feed")
		} else {
			log.WithField("samples", restored).Info("restored gas price history")
		}
	}

	ledger := agent.NewMemoryLedger()
	factory, err := agent.NewFactory(cfg.Solver.Treasury, ledger, subSvc, planSvc)
	if err != nil {
		return err
	}

	dispatcher := events.NewDispatcher(log)
	dispatcher.StartRetryWorker(ctx)
	defer dispatcher.StopRetryWorker()

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	solverMetrics := solver.NewMetrics(registry)

	var history *solver.History
	if cfg.Storage.HistoryPath != "" {
		history, err = solver.NewHistory(cfg.Storage.HistoryPath)
		if err != nil {
			return fmt.Errorf("open execution history: %w", err)
		}
		defer history.Close()
	}

	queue := solver.NewQueue(subSvc, intentSvc, factory, options, history, dispatcher, solverMetrics, log)

	keyring := auth.NewKeyring()
	audit := auth.NewAuditTrail(log)
	if opKey := os.Getenv("LOWTIDE_OPERATOR_KEY"); opKey != "" {
		if _, err := keyring.Adopt(opKey, "operator", auth.RoleOperator); err != nil {
			return fmt.Errorf("adopt operator key: %w", err)
		}
		log.Info("operator key registered")
	} else {
		log.Warn("LOWTIDE_OPERATOR_KEY not set; no operator access until one is configured")
	}

	server := api.NewServer(api.Deps{
		Plans:         planSvc,
		Intents:       intentSvc,
		Subscriptions: subSvc,
		Queue:         queue,
		Monitor:       monitor,
		Feed:          feed,
		Factory:       factory,
		Options:       options,
		Dispatcher:    dispatcher,
		Keyring:       keyring,
		Audit:         audit,
		SigningKeys:   signingKeys,
		Redis:         redisClient,
		Logger:        log,
	})

	var handler http.Handler = server
	if cfg.Observability.MetricsEnabled {
		handler = observability.HTTPMetricsMiddleware(metrics)(handler)
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Probes and metrics live on their own port
	healthMux := http.NewServeMux()
	checker := observability.NewHealthChecker(db, redisClient)
	healthMux.HandleFunc("/healthz", checker.Liveness)
	healthMux.HandleFunc("/readyz", checker.Readiness)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}
	go func() {
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("health server stopped")
		}
	}()

	shutdown := observability.NewShutdownManager(log, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		cancel()
		return nil
	})

	go func() {
		log.WithField("addr", httpServer.Addr).Info("lowtide listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server stopped")
		}
	}()

	return shutdown.WaitForShutdown()
}
