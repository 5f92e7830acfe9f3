package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/heartbeat/pkg/async"
	"github.com/platinummonkey/heartbeat/pkg/config"
	"github.com/platinummonkey/heartbeat/pkg/identity"
	"github.com/platinummonkey/heartbeat/pkg/localstore"
	"github.com/platinummonkey/heartbeat/pkg/observability"
	"github.com/platinummonkey/heartbeat/pkg/ping"
)

// Version is set at build time.
var Version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to the YAML configuration file")
	daemon := flag.Bool("daemon", false, "Keep running and retry every interval")
	showID := flag.Bool("show-id", false, "Print the device hash and exit")
	flag.Parse()

	cfg, err := config.LoadClientConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := observability.NewLogger(observability.ParseLogLevel(cfg.LogLevel), observability.TextFormat, os.Stderr)
	async.SetLogger(logger)
	ping.Version = Version

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *daemon, *showID); err != nil {
		logger.WithError(err).Error("heartbeat-ping failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.ClientConfig, logger *logrus.Logger, daemon, showID bool) error {
	store, err := localstore.OpenSQLite(ctx, cfg.StatePath)
	if err != nil {
		return err
	}
	defer store.Close()

	ids := identity.NewProvider(store, logger)
	if showID {
		fmt.Println(ids.DeviceHash(ctx))
		return nil
	}

	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	sender, err := ping.NewHTTPSender(cfg.Endpoint, client)
	if err != nil {
		return err
	}

	coordinator, err := ping.NewCoordinator(ping.Options{
		AppID:       cfg.AppID,
		AppVersion:  cfg.AppVersion,
		Environment: cfg.Env(),
		Timeout:     cfg.Timeout,
		StartDelay:  cfg.StartDelay,
		Logger:      logger,
	}, ids, store, sender)
	if err != nil {
		return err
	}

	if !daemon {
		outcome := coordinator.Trigger(ctx)
		logger.WithField("outcome", outcome.String()).Info("heartbeat attempt finished")
		if outcome == ping.OutcomeFailed {
			return fmt.Errorf("heartbeat not delivered")
		}
		return nil
	}

	scheduler := ping.NewCronScheduler(logger)
	if err := coordinator.SchedulePeriodic(ctx, scheduler, cfg.Interval); err != nil {
		return err
	}
	scheduler.Start()
	coordinator.PingAsync(ctx)

	logger.WithFields(logrus.Fields{
		"app_id":   cfg.AppID,
		"interval": cfg.Interval.String(),
	}).Info("heartbeat daemon started")

	<-ctx.Done()
	<-scheduler.Stop().Done()
	return nil
}
