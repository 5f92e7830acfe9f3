package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/heartbeat/pkg/async"
	"github.com/platinummonkey/heartbeat/pkg/heartbeat"
	"github.com/platinummonkey/heartbeat/pkg/observability"
)

var tracer = otel.Tracer("heartbeat/aggregate")

// Limits bounds result windows and sizes.
type Limits struct {
	// SeriesDays is the window of the daily series and version breakdown.
	SeriesDays  int `yaml:"series_days"`
	Leaderboard int `yaml:"leaderboard"`
	Versions    int `yaml:"versions"`
}

// DefaultLimits returns the standard 90 day window, top 50 apps and top 10
// versions.
func DefaultLimits() Limits {
	return Limits{SeriesDays: 90, Leaderboard: 50, Versions: 10}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.SeriesDays <= 0 {
		l.SeriesDays = d.SeriesDays
	}
	if l.Leaderboard <= 0 {
		l.Leaderboard = d.Leaderboard
	}
	if l.Versions <= 0 {
		l.Versions = d.Versions
	}
	return l
}

// Cache stores encoded query results. Implementations swallow their own
// failures; a failed Get is a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
}

// Config holds the optional collaborators of an Engine.
type Config struct {
	Limits  Limits
	Cache   Cache
	Metrics *observability.Metrics
	Logger  logrus.FieldLogger
	// Clock returns the current time; defaults to time.Now.
	Clock func() time.Time
	// WarmWorkers bounds the concurrency of Warm.
	WarmWorkers int
	// WarmTimeout bounds each query issued by Warm.
	WarmTimeout time.Duration
}

// Engine answers the aggregate query shapes.
type Engine struct {
	backend Backend
	cache   Cache
	metrics *observability.Metrics
	logger  logrus.FieldLogger
	clock   func() time.Time
	limits  Limits

	warmWorkers int
	warmTimeout time.Duration

	group singleflight.Group
}

// NewEngine creates an engine reading from backend.
func NewEngine(backend Backend, cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.WarmWorkers <= 0 {
		cfg.WarmWorkers = 4
	}
	if cfg.WarmTimeout <= 0 {
		cfg.WarmTimeout = 10 * time.Second
	}
	return &Engine{
		backend:     backend,
		cache:       cfg.Cache,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger.WithField("component", "aggregate"),
		clock:       cfg.Clock,
		limits:      cfg.Limits.withDefaults(),
		warmWorkers: cfg.WarmWorkers,
		warmTimeout: cfg.WarmTimeout,
	}
}

// Limits returns the effective limits.
func (e *Engine) Limits() Limits {
	return e.limits
}

// Today returns the current UTC date according to the engine clock.
func (e *Engine) Today() heartbeat.Date {
	return heartbeat.DateOf(e.clock())
}

// DailySeries returns distinct devices per day for appID, newest first.
// Days without events are absent.
func (e *Engine) DailySeries(ctx context.Context, appID string, env heartbeat.Environment) []heartbeat.DailyCount {
	appID = strings.TrimSpace(appID)
	if appID == "" {
		return []heartbeat.DailyCount{}
	}
	rows := e.run(ctx, SeriesQuery(appID, env, e.Today(), e.limits.SeriesDays))
	return seriesFromRows(rows, e.limits.SeriesDays)
}

// Leaderboard returns distinct devices per app on day, largest first with
// ties broken by app id. A zero day means today.
func (e *Engine) Leaderboard(ctx context.Context, env heartbeat.Environment, day heartbeat.Date) []heartbeat.AppCount {
	if day.IsZero() {
		day = e.Today()
	}
	rows := e.run(ctx, LeaderboardQuery(env, day, e.limits.Leaderboard))

	ranked := rankRows(rows, e.limits.Leaderboard)
	out := make([]heartbeat.AppCount, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, heartbeat.AppCount{AppID: r.Key, Devices: r.Devices})
	}
	return out
}

// VersionBreakdown returns distinct devices per version of appID across
// the series window, largest first with ties broken by version.
func (e *Engine) VersionBreakdown(ctx context.Context, appID string, env heartbeat.Environment) []heartbeat.VersionCount {
	appID = strings.TrimSpace(appID)
	if appID == "" {
		return []heartbeat.VersionCount{}
	}
	rows := e.run(ctx, VersionQuery(appID, env, e.Today(), e.limits.SeriesDays, e.limits.Versions))

	ranked := rankRows(rows, e.limits.Versions)
	out := make([]heartbeat.VersionCount, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, heartbeat.VersionCount{Version: r.Key, Devices: r.Devices})
	}
	return out
}

// Warm refreshes the cached leaderboard of today and the series and
// version breakdown of every app on it. It reports backend failures,
// which the query methods never do.
func (e *Engine) Warm(ctx context.Context, env heartbeat.Environment) error {
	ctx, span := tracer.Start(ctx, "aggregate.Warm",
		trace.WithAttributes(attribute.String("environment", string(env))))
	defer span.End()

	today := e.Today()
	rows, err := e.fetch(ctx, LeaderboardQuery(env, today, e.limits.Leaderboard))
	if err != nil {
		e.warmed("failure")
		span.RecordError(err)
		span.SetStatus(codes.Error, "leaderboard refresh failed")
		return fmt.Errorf("warm leaderboard: %w", err)
	}

	var queries []Query
	for _, r := range rankRows(rows, e.limits.Leaderboard) {
		queries = append(queries,
			SeriesQuery(r.Key, env, today, e.limits.SeriesDays),
			VersionQuery(r.Key, env, today, e.limits.SeriesDays, e.limits.Versions),
		)
	}

	errs := async.Batch(ctx, queries, e.warmWorkers, "aggregate warm", e.warmTimeout,
		func(ctx context.Context, q Query) error {
			_, err := e.fetch(ctx, q)
			return err
		})
	if len(errs) > 0 {
		e.warmed("failure")
		err := errors.Join(errs...)
		span.RecordError(err)
		span.SetStatus(codes.Error, "warm queries failed")
		return fmt.Errorf("warm %d of %d queries failed: %w", len(errs), len(queries), err)
	}

	e.warmed("success")
	e.logger.WithFields(logrus.Fields{
		"environment": env,
		"apps":        len(queries) / 2,
	}).Debug("aggregate cache warmed")
	span.SetStatus(codes.Ok, "")
	return nil
}

// run answers q from the cache or the backend, degrading to an empty
// result on any backend failure.
func (e *Engine) run(ctx context.Context, q Query) []Row {
	ctx, span := tracer.Start(ctx, "aggregate."+q.Name,
		trace.WithAttributes(
			attribute.String("app_id", q.Filter.AppID),
			attribute.String("environment", string(q.Filter.Environment)),
			attribute.String("group_by", string(q.GroupBy)),
		),
	)
	defer span.End()

	key := q.CacheKey()
	if rows, ok := e.cached(ctx, key); ok {
		e.countQuery(q.Name, "cache")
		span.SetAttributes(attribute.Bool("cache_hit", true), attribute.Int("rows", len(rows)))
		return rows
	}

	v, err, _ := e.group.Do(key, func() (interface{}, error) {
		return e.fetch(ctx, q)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "backend unavailable")
		return []Row{}
	}
	rows := v.([]Row)
	span.SetAttributes(attribute.Int("rows", len(rows)))
	return rows
}

// fetch queries the backend and caches successful results.
func (e *Engine) fetch(ctx context.Context, q Query) ([]Row, error) {
	start := time.Now()
	rows, err := e.backend.Aggregate(ctx, q)
	if e.metrics != nil {
		e.metrics.AggregateQueryDuration.WithLabelValues(q.Name).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if e.metrics != nil {
			e.metrics.AggregateBackendErrorsTotal.WithLabelValues(q.Name).Inc()
		}
		observability.WithTraceContext(ctx, e.logger.WithFields(logrus.Fields{
			"query":  q.Name,
			"app_id": q.Filter.AppID,
		})).WithError(err).Warn("aggregate backend failed, serving empty result")
		return nil, err
	}
	if rows == nil {
		rows = []Row{}
	}
	e.countQuery(q.Name, "backend")
	e.store(ctx, q.CacheKey(), rows)
	return rows, nil
}

func (e *Engine) cached(ctx context.Context, key string) ([]Row, bool) {
	if e.cache == nil {
		return nil, false
	}
	data, ok := e.cache.Get(ctx, key)
	if !ok {
		return nil, false
	}
	var rows []Row
	if err := json.Unmarshal(data, &rows); err != nil {
		e.logger.WithError(err).WithField("key", key).Debug("discarding undecodable cache entry")
		return nil, false
	}
	if rows == nil {
		rows = []Row{}
	}
	return rows, true
}

func (e *Engine) store(ctx context.Context, key string, rows []Row) {
	if e.cache == nil {
		return
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return
	}
	e.cache.Set(ctx, key, data)
}

func (e *Engine) countQuery(name, source string) {
	if e.metrics != nil {
		e.metrics.AggregateQueriesTotal.WithLabelValues(name, source).Inc()
	}
}

func (e *Engine) warmed(status string) {
	if e.metrics != nil {
		e.metrics.AggregateWarmRunsTotal.WithLabelValues(status).Inc()
	}
}

// seriesFromRows drops empty days, orders newest first and caps the result.
func seriesFromRows(rows []Row, limit int) []heartbeat.DailyCount {
	out := make([]heartbeat.DailyCount, 0, len(rows))
	for _, r := range rows {
		if r.Devices <= 0 || r.Key == "" {
			continue
		}
		out = append(out, heartbeat.DailyCount{Date: heartbeat.Date(r.Key), Devices: r.Devices})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// rankRows drops empty groups, orders by devices descending then key
// ascending and caps the result. Backends already order and limit; the
// engine does not rely on it.
func rankRows(rows []Row, limit int) []Row {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if r.Devices > 0 {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Devices != out[j].Devices {
			return out[i].Devices > out[j].Devices
		}
		return out[i].Key < out[j].Key
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
