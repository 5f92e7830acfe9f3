package api

import (
	"context"

	"github.com/platinummonkey/heartbeat/pkg/heartbeat"
)

// Ingester records heartbeat signals.
type Ingester interface {
	Ingest(ctx context.Context, sig heartbeat.Signal) (heartbeat.Event, error)
}

// Aggregator answers the aggregate queries.
type Aggregator interface {
	DailySeries(ctx context.Context, appID string, env heartbeat.Environment) []heartbeat.DailyCount
	Leaderboard(ctx context.Context, env heartbeat.Environment, day heartbeat.Date) []heartbeat.AppCount
	VersionBreakdown(ctx context.Context, appID string, env heartbeat.Environment) []heartbeat.VersionCount
	Today() heartbeat.Date
}

// DailyResponse is the body of the daily series route.
type DailyResponse struct {
	AppID       string                 `json:"app_id"`
	Environment heartbeat.Environment  `json:"environment"`
	Summary     heartbeat.Summary      `json:"summary"`
	Series      []heartbeat.DailyCount `json:"series"`
}

// VersionsResponse is the body of the version breakdown route.
type VersionsResponse struct {
	AppID       string                   `json:"app_id"`
	Environment heartbeat.Environment    `json:"environment"`
	Versions    []heartbeat.VersionCount `json:"versions"`
}

// LeaderboardResponse is the body of the leaderboard route.
type LeaderboardResponse struct {
	Date        heartbeat.Date        `json:"date"`
	Environment heartbeat.Environment `json:"environment"`
	Apps        []heartbeat.AppCount  `json:"apps"`
}
