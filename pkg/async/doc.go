// Package async provides safe concurrent execution primitives for background tasks.
//
// # Overview
//
// This package handles goroutine lifecycle management with panic recovery, timeout
// enforcement, context cancellation, and error collection.
//
// # Key Functions
//
// SafeGo: Execute function in goroutine with safety features
//
//	async.SafeGo(ctx, 30*time.Second, "heartbeat ping", func(ctx context.Context) error {
//		return sender.Send(ctx, signal)
//	})
//
// WorkerPool: Managed pool of concurrent workers
//
//	pool := async.NewWorkerPool(ctx, 4, "aggregate warm", 10*time.Second)
//	defer pool.Shutdown(5 * time.Second)
//
//	pool.Submit(func(ctx context.Context) error {
//		return warm(ctx, query)
//	})
//
// Batch: Concurrent batch processing
//
//	errs := async.Batch(ctx, queries, 4, "aggregate warm", 10*time.Second, func(ctx context.Context, q Query) error {
//		return warm(ctx, q)
//	})
//
// # Features
//
// Panic Recovery: Captures panics with stack traces
// Timeout Enforcement: Per-task timeouts
// Context Cancellation: Respects context cancellation
// Error Collection: Non-blocking error channels
// Graceful Shutdown: Worker draining
//
// # Related Packages
//
//   - pkg/ping: Uses SafeGoNoError for fire-and-forget pings
//   - pkg/aggregate: Uses Batch for cache warming
package async
