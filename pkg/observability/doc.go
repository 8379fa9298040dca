// Package observability provides structured logging, Prometheus metrics,
// health probes, and graceful shutdown for the server process.
//
// # Structured Logging
//
// NewLogger builds the process-wide logrus logger with a JSON formatter:
//
//	log := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	log.WithField("subscriber", id).Info("intent verified")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.HTTPRequestsTotal.WithLabelValues("GET", "/plans", "200").Inc()
//
// Business gauges:
//
//	metrics.ActiveSubscriptions.Set(float64(count))
//	metrics.QueuedRenewalsTotal.Set(float64(depth))
//	metrics.GasPriceCurrent.Set(float64(price))
//
// # Health Probes
//
//	checker := observability.NewHealthChecker(db, redisClient)
//	mux.HandleFunc("/healthz", checker.Liveness)
//	mux.HandleFunc("/readyz", checker.Readiness)
//	observability.RegisterMetricsEndpoint(mux, registry)
//
// Liveness always succeeds; readiness pings postgres and redis when
// they are configured.
//
// # Graceful Shutdown
//
//	manager := observability.NewShutdownManager(log, server, 30*time.Second)
//	manager.RegisterShutdownFunc(func(ctx context.Context) error { return feed.Close() })
//	manager.WaitForShutdown()
package observability
