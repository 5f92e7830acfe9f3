// Package middleware provides per-client rate limiting for the heartbeat
// ingestion endpoint.
//
// RateLimiter is an in-process token bucket. DistributedRateLimiter keeps a
// fixed window counter in Redis so every server replica shares one budget
// per client. Both satisfy Limiter and plug into RateLimitMiddleware:
//
//	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())
//	router.Handle("/p", middleware.RateLimitMiddleware(limiter, metrics, logger)(ingestHandler))
//
// Clients are keyed by IP address as reported by httputil.ClientIP. A
// limiter error fails open: the request is served and the error logged.
package middleware
