// Package api exposes heartbeat ingestion and the aggregate queries over
// HTTP.
//
// Routes:
//
//	GET /p?a=<app>&d=<device hash>&e=<dev|prod>&v=<version>
//	GET /api/v1/apps/{appID}/daily?env=prod
//	GET /api/v1/apps/{appID}/versions?env=prod
//	GET /api/v1/leaderboard?env=prod&date=YYYY-MM-DD
//
// /p answers "ok" on success, 400 {"error":"missing params"} when the app
// or device is absent and 500 when the event could not be recorded. It
// sends Access-Control-Allow-Origin: * and is rate limited per client IP.
//
// The query routes always answer 200 with JSON arrays, empty when there is
// no data. Aggregate failures look like "no data" here and show up in
// heartbeat_aggregate_backend_errors_total instead.
package api
