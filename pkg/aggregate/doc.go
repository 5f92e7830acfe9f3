// Package aggregate answers grouped, distinct-device counting questions
// over the heartbeat event log.
//
// Three shapes are supported: a per-app daily series, a per-day
// leaderboard of apps and a per-app version breakdown. Each shape is a
// structured Query compiled to SQL by BuildSelect, so caller supplied
// values only ever travel as bound parameters and column names come from
// a fixed whitelist.
//
// Backends return the canonical Row type. Whatever shape the driver
// produces is converted once, by NormalizeRow, at the backend boundary.
//
// The Engine never returns errors to its callers. A failing or misbehaving
// backend yields an empty result, is logged and counted in
// heartbeat_aggregate_backend_errors_total so an outage stays visible to
// operators even though the API renders it as "no data".
package aggregate
