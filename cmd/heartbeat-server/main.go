package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/heartbeat/pkg/aggregate"
	"github.com/platinummonkey/heartbeat/pkg/api"
	"github.com/platinummonkey/heartbeat/pkg/async"
	"github.com/platinummonkey/heartbeat/pkg/cache"
	"github.com/platinummonkey/heartbeat/pkg/config"
	"github.com/platinummonkey/heartbeat/pkg/heartbeat"
	"github.com/platinummonkey/heartbeat/pkg/ingest"
	"github.com/platinummonkey/heartbeat/pkg/middleware"
	"github.com/platinummonkey/heartbeat/pkg/observability"
	"github.com/platinummonkey/heartbeat/pkg/storage"
)

// Version is set at build time.
var Version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "Print the version and exit")
	flag.Parse()
	if *showVersion {
		fmt.Println(Version)
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, os.Stdout)
	async.SetLogger(logger)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("heartbeat server stopped with error")
	}
	logger.Info("heartbeat server stopped")
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otelCfg := cfg.Observability.OTel()
	if otelCfg.ServiceVersion == "" {
		otelCfg.ServiceVersion = Version
	}
	providers, err := observability.InitOTel(ctx, otelCfg, logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	store, err := openEventStore(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = storage.OpenRedis(ctx, cfg.Redis)
		if err != nil {
			// The cache and the rate limiter fall back to process local state.
			logger.WithError(err).Warn("redis unavailable, continuing without it")
			redisClient = nil
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	engineCfg := aggregate.Config{
		Limits:  cfg.Aggregate.Limits,
		Metrics: metrics,
		Logger:  logger,
	}
	if cfg.Cache.Enabled {
		engineCfg.Cache = cache.NewTiered(cfg.Cache.CacheSettings(), redisClient, metrics, logger)
	}
	engine := aggregate.NewEngine(store.backend, engineCfg)
	ingester := ingest.NewIngester(store.log, nil, metrics, logger)

	var limiter middleware.Limiter
	if cfg.RateLimit.Enabled {
		if redisClient != nil {
			limiter = middleware.NewDistributedRateLimiter(redisClient, cfg.RateLimit.Limiter(), "")
		} else {
			local := middleware.NewRateLimiter(cfg.RateLimit.Limiter())
			local.StartCleanup(ctx)
			limiter = local
		}
	}

	apiServer := api.NewServer(api.Options{
		Ingester:    ingester,
		Aggregator:  engine,
		Limiter:     limiter,
		Metrics:     metrics,
		Logger:      logger,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      apiServer.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	checker := observability.NewHealthChecker(store.db, redisClient, Version).WithMetrics(metrics)
	observability.RegisterHealthRoutes(healthMux, checker)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:      healthMux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, httpServer, healthServer)

	if cfg.Aggregate.WarmSchedule != "" {
		warmer, err := startWarmer(ctx, cfg.Aggregate.WarmSchedule, engine, logger)
		if err != nil {
			return err
		}
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			select {
			case <-warmer.Stop().Done():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}

	if store.conns != nil {
		store.conns.StartHealthCheckRoutine(ctx, 30*time.Second)
	}

	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return store.Close()
	})
	if redisClient != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return redisClient.Close()
		})
	}
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers)
	})

	for _, srv := range []*http.Server{httpServer, healthServer} {
		go func() {
			logger.WithField("addr", srv.Addr).Info("listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).WithField("addr", srv.Addr).Error("server failed")
				cancel()
			}
		}()
	}

	logger.WithFields(logrus.Fields{
		"version": Version,
		"storage": cfg.Storage.Type,
		"redis":   redisClient != nil,
	}).Info("heartbeat server started")

	return shutdown.WaitForShutdown(ctx)
}

// startWarmer refreshes the aggregate cache of both environments on spec.
func startWarmer(ctx context.Context, spec string, engine *aggregate.Engine, logger logrus.FieldLogger) (*cron.Cron, error) {
	cronLogger := cron.PrintfLogger(logger.WithField("component", "warmer"))
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	_, err := c.AddFunc(spec, func() {
		for _, env := range []heartbeat.Environment{heartbeat.EnvProd, heartbeat.EnvDev} {
			warmCtx, cancel := context.WithTimeout(ctx, time.Minute)
			if err := engine.Warm(warmCtx, env); err != nil {
				logger.WithError(err).WithField("environment", env).Warn("cache warm incomplete")
			}
			cancel()
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid warm schedule %q: %w", spec, err)
	}

	c.Start()
	return c, nil
}
