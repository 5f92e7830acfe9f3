package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/heartbeat/pkg/heartbeat"
	"github.com/platinummonkey/heartbeat/pkg/httputil"
)

// StatsHandlers serves the aggregate queries.
type StatsHandlers struct {
	aggregator Aggregator
	wrap       httputil.Middleware
}

// NewStatsHandlers creates a new stats handlers instance. wrap, when not
// nil, decorates every route (CORS).
func NewStatsHandlers(aggregator Aggregator, wrap httputil.Middleware) *StatsHandlers {
	return &StatsHandlers{aggregator: aggregator, wrap: wrap}
}

// RegisterRoutes registers the stats API routes
func (h *StatsHandlers) RegisterRoutes(r *mux.Router) {
	methods := []string{http.MethodGet}
	if h.wrap != nil {
		methods = append(methods, http.MethodOptions)
	}
	r.Handle("/api/v1/apps/{appID}/daily", h.handle(h.getDailySeries)).Methods(methods...)
	r.Handle("/api/v1/apps/{appID}/versions", h.handle(h.getVersions)).Methods(methods...)
	r.Handle("/api/v1/leaderboard", h.handle(h.getLeaderboard)).Methods(methods...)
}

func (h *StatsHandlers) handle(fn http.HandlerFunc) http.Handler {
	if h.wrap == nil {
		return fn
	}
	return h.wrap(fn)
}

func environment(r *http.Request) heartbeat.Environment {
	return heartbeat.ParseEnvironment(httputil.ParseQueryString(r, "env", string(heartbeat.EnvProd)))
}

// getDailySeries handles GET /api/v1/apps/{appID}/daily
func (h *StatsHandlers) getDailySeries(w http.ResponseWriter, r *http.Request) {
	appID, ok := httputil.ParsePathStringOrError(w, r, "appID")
	if !ok {
		return
	}
	env := environment(r)

	series := h.aggregator.DailySeries(r.Context(), appID, env)
	httputil.WriteSuccess(w, DailyResponse{
		AppID:       appID,
		Environment: env,
		Summary:     heartbeat.Summarize(series),
		Series:      series,
	})
}

// getVersions handles GET /api/v1/apps/{appID}/versions
func (h *StatsHandlers) getVersions(w http.ResponseWriter, r *http.Request) {
	appID, ok := httputil.ParsePathStringOrError(w, r, "appID")
	if !ok {
		return
	}
	env := environment(r)

	httputil.WriteSuccess(w, VersionsResponse{
		AppID:       appID,
		Environment: env,
		Versions:    h.aggregator.VersionBreakdown(r.Context(), appID, env),
	})
}

// getLeaderboard handles GET /api/v1/leaderboard
// Query params:
//   - env: dev or prod (default prod)
//   - date: YYYY-MM-DD (default today, UTC)
func (h *StatsHandlers) getLeaderboard(w http.ResponseWriter, r *http.Request) {
	env := environment(r)

	day := h.aggregator.Today()
	if raw := httputil.ParseQueryString(r, "date", ""); raw != "" {
		parsed, err := heartbeat.ParseDate(raw)
		if err != nil {
			httputil.WriteBadRequest(w, "invalid date, expected YYYY-MM-DD")
			return
		}
		day = parsed
	}

	httputil.WriteSuccess(w, LeaderboardResponse{
		Date:        day,
		Environment: env,
		Apps:        h.aggregator.Leaderboard(r.Context(), env, day),
	})
}
