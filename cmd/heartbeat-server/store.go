package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/heartbeat/pkg/aggregate"
	"github.com/platinummonkey/heartbeat/pkg/config"
	"github.com/platinummonkey/heartbeat/pkg/ingest"
	"github.com/platinummonkey/heartbeat/pkg/storage"
)

// eventStore bundles the append side and the query side of the configured
// storage type.
type eventStore struct {
	log     ingest.EventLog
	backend aggregate.Backend
	// db and conns are nil for the memory store.
	db    *sql.DB
	conns *storage.ConnectionManager
}

func (s *eventStore) Close() error {
	if s.conns == nil {
		return nil
	}
	return s.conns.Close()
}

func openEventStore(ctx context.Context, cfg config.StorageConfig, logger logrus.FieldLogger) (*eventStore, error) {
	if cfg.Type == config.StorageMemory {
		logger.Warn("using in-memory event store, events are lost on restart")
		mem := storage.NewMemoryLog()
		return &eventStore{log: mem, backend: mem}, nil
	}

	connCfg, err := cfg.ConnectionConfig()
	if err != nil {
		return nil, err
	}
	conns, err := storage.NewConnectionManager(ctx, connCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect event store: %w", err)
	}

	if cfg.AutoMigrate {
		if err := storage.Migrate(ctx, conns.Primary(), conns.Dialect(), logger); err != nil {
			conns.Close()
			return nil, fmt.Errorf("migrate event store: %w", err)
		}
	}

	events := storage.NewEventStore(conns)
	return &eventStore{
		log:     events,
		backend: events,
		db:      conns.Primary(),
		conns:   conns,
	}, nil
}
