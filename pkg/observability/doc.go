// Package observability provides structured logging, Prometheus metrics,
// health checks, graceful shutdown and OpenTelemetry tracing.
//
// # Structured Logging
//
//	logger := observability.NewLogger(logrus.InfoLevel, observability.JSONFormat, nil)
//	logger.WithField("app_id", appID).Info("event accepted")
//
// Request scoped loggers travel in the context:
//
//	entry := observability.LoggerFromContext(r.Context(), logger)
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.IngestEventsTotal.WithLabelValues("prod").Inc()
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	observability.RegisterHealthRoutes(mux, checker)
//
// The event store is required for readiness; Redis is optional and only
// degrades the status.
//
// # Tracing
//
//	providers, err := observability.InitOTel(ctx, cfg, logger)
//	defer observability.ShutdownOTel(ctx, providers)
package observability
