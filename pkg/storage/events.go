package storage

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/platinummonkey/heartbeat/pkg/aggregate"
	"github.com/platinummonkey/heartbeat/pkg/heartbeat"
)

var eventColumns = []string{
	"event_date",
	"device_hash",
	"app_id",
	"environment",
	"app_version",
	"received_at",
}

// EventStore is the SQL event log.
type EventStore struct {
	conns       *ConnectionManager
	placeholder sq.PlaceholderFormat
	collation   string
}

// NewEventStore creates a store on conns.
func NewEventStore(conns *ConnectionManager) *EventStore {
	return &EventStore{
		conns:       conns,
		placeholder: conns.Dialect().Placeholder(),
		collation:   conns.Dialect().SortCollation(),
	}
}

// Append inserts one event on the primary.
func (s *EventStore) Append(ctx context.Context, ev heartbeat.Event) error {
	query, args, err := sq.Insert(aggregate.EventsTable).
		Columns(eventColumns...).
		Values(
			string(ev.Date),
			string(ev.DeviceHash),
			ev.AppID,
			string(ev.Environment),
			ev.AppVersion,
			ev.ReceivedAt.UTC(),
		).
		PlaceholderFormat(s.placeholder).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}

	if _, err := s.conns.Primary().ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// Aggregate runs q on a replica.
func (s *EventStore) Aggregate(ctx context.Context, q aggregate.Query) ([]aggregate.Row, error) {
	var opts []aggregate.SelectOption
	if s.collation != "" {
		opts = append(opts, aggregate.WithCollation(s.collation))
	}
	b, err := aggregate.BuildSelect(q, opts...)
	if err != nil {
		return nil, err
	}
	query, args, err := b.PlaceholderFormat(s.placeholder).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build %s query: %w", q.Name, err)
	}

	rows, err := s.conns.Replica().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run %s query: %w", q.Name, err)
	}
	defer rows.Close()

	result := []aggregate.Row{}
	for rows.Next() {
		var key, devices any
		if err := rows.Scan(&key, &devices); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", q.Name, err)
		}
		row, err := aggregate.NormalizeRow(q.GroupBy, key, devices)
		if err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s rows: %w", q.Name, err)
	}
	return result, nil
}

// HealthCheck pings the underlying connections.
func (s *EventStore) HealthCheck(ctx context.Context) error {
	return s.conns.HealthCheck(ctx)
}
