// Package config loads configuration for the heartbeat server and client.
//
// # Server
//
// The server reads environment variables with defaults for every setting:
//
//	HEARTBEAT_HOST="0.0.0.0"
//	HEARTBEAT_PORT="8080"
//	HEARTBEAT_HEALTH_PORT="9090"
//	HEARTBEAT_CORS_ORIGINS="https://stats.example.com"
//
//	HEARTBEAT_STORAGE_TYPE="sqlite3"  # memory, sqlite3, postgres
//	HEARTBEAT_DATABASE_URL="heartbeat.db"
//	HEARTBEAT_DATABASE_REPLICA_URLS="postgres://replica1/heartbeat,postgres://replica2/heartbeat"
//	HEARTBEAT_AUTO_MIGRATE="true"
//
//	HEARTBEAT_REDIS_URL="redis://localhost:6379/0"  # enables shared cache and rate limit
//	HEARTBEAT_CACHE_ENABLED="true"
//	HEARTBEAT_WARM_SCHEDULE="@every 5m"
//	HEARTBEAT_RATE_LIMIT_REQUESTS="60"
//
//	HEARTBEAT_LOG_LEVEL="info"
//	HEARTBEAT_OTEL_ENABLED="true"
//	HEARTBEAT_OTEL_ENDPOINT="otel-collector:4317"
//
// Load with:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Client
//
// The ping client reads a YAML file (see ClientConfig) and then applies
// HEARTBEAT_ENDPOINT, HEARTBEAT_APP_ID, HEARTBEAT_APP_VERSION,
// HEARTBEAT_ENVIRONMENT, HEARTBEAT_STATE_PATH, HEARTBEAT_INTERVAL,
// HEARTBEAT_TIMEOUT and HEARTBEAT_LOG_LEVEL on top.
package config
