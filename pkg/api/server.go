package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/heartbeat/pkg/httputil"
	"github.com/platinummonkey/heartbeat/pkg/middleware"
	"github.com/platinummonkey/heartbeat/pkg/observability"
)

// Options configures a Server.
type Options struct {
	Ingester   Ingester
	Aggregator Aggregator
	// Limiter throttles /p per client IP. Nil disables rate limiting.
	Limiter middleware.Limiter
	Metrics *observability.Metrics
	Logger  logrus.FieldLogger
	// CORSOrigins are allowed to read the query routes.
	CORSOrigins []string
}

// Server represents the heartbeat HTTP API
type Server struct {
	router  *mux.Router
	opts    Options
	logger  logrus.FieldLogger
	handler http.Handler
}

// NewServer creates a new API server
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{
		router: mux.NewRouter(),
		opts:   opts,
		logger: logger.WithField("component", "api"),
	}
	s.setupRoutes()

	chain := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.RecoveryMiddleware(s.logger),
		httputil.LoggingMiddleware(s.logger),
	)
	s.handler = otelhttp.NewHandler(chain(s.router), "heartbeat-api")
	return s
}

func (s *Server) setupRoutes() {
	if s.opts.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.opts.Metrics))
	}

	if s.opts.Ingester != nil {
		var limit httputil.Middleware
		if s.opts.Limiter != nil {
			limit = middleware.RateLimitMiddleware(s.opts.Limiter, s.opts.Metrics, s.logger)
		}
		NewIngestHandlers(s.opts.Ingester, limit).RegisterRoutes(s.router)
	}

	if s.opts.Aggregator != nil {
		var cors httputil.Middleware
		if len(s.opts.CORSOrigins) > 0 {
			cors = httputil.CORSMiddleware(s.opts.CORSOrigins)
		}
		NewStatsHandlers(s.opts.Aggregator, cors).RegisterRoutes(s.router)
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusNotFound, "not found")
	})
}

// Router returns the route table without the outer middleware.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
