// Package storage persists the heartbeat event log and runs aggregate
// queries against it.
//
// # Backends
//
// EventStore is the SQL implementation, usable with PostgreSQL (lib/pq) in
// production and SQLite (mattn/go-sqlite3) for single node deployments and
// development. Writes go to the primary connection of a ConnectionManager;
// aggregate reads are spread over read replicas when any are configured.
//
// MemoryLog keeps events in process and answers the same queries. It backs
// the "memory" storage type and unit tests.
//
// Both implement ingest.EventLog and aggregate.Backend:
//
//	conns, err := storage.NewConnectionManager(ctx, storage.ConnectionConfig{
//		Dialect:    storage.DialectPostgres,
//		PrimaryURL: "postgres://localhost/heartbeat?sslmode=disable",
//	}, logger)
//	store := storage.NewEventStore(conns)
//
// # Schema
//
// Migrations for each dialect are embedded in the binary and applied with
// goose. See Migrate.
//
// # Redis
//
// OpenRedis builds the shared Redis client used by the result cache, the
// distributed rate limiter and the readiness check.
package storage
