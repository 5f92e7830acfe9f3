// Package ping sends the daily heartbeat from a host application.
//
// A Coordinator sends at most one acknowledged signal per UTC day. Whether
// today's signal went out is decided only by the State persisted through a
// StateStore, so the guarantee survives restarts:
//
//	c, err := ping.NewCoordinator(ping.Options{
//	    AppID:      "com.example.app",
//	    AppVersion: "1.4.2",
//	}, provider, store, sender)
//	c.PingAsync(ctx)                                 // at launch
//	c.SchedulePeriodic(ctx, ping.NewCronScheduler(nil), 4*time.Hour) // while running
//
// Every failure (timeout, network error, non-200 answer, unwritable state)
// leaves the day pending so a later trigger retries. Nothing is ever
// returned to the host as an error; outcomes are logged at debug level and
// counted through the global OpenTelemetry meter.
//
// The environment defaults to prod; building with the heartbeat_dev tag
// makes dev the default.
package ping
