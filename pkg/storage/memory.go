package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/platinummonkey/heartbeat/pkg/aggregate"
	"github.com/platinummonkey/heartbeat/pkg/heartbeat"
)

// MemoryLog is an in-process event log.
type MemoryLog struct {
	mu     sync.RWMutex
	events []heartbeat.Event
	err    error
}

// NewMemoryLog creates an empty log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

// Fail makes every following call return err; nil restores the log.
func (m *MemoryLog) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Append records ev.
func (m *MemoryLog) Append(ctx context.Context, ev heartbeat.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, ev)
	return nil
}

// Events returns a copy of the log.
func (m *MemoryLog) Events() []heartbeat.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]heartbeat.Event, len(m.events))
	copy(out, m.events)
	return out
}

// Len returns the number of appended events.
func (m *MemoryLog) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

// Aggregate answers q by scanning the log.
func (m *MemoryLog) Aggregate(ctx context.Context, q aggregate.Query) ([]aggregate.Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}

	groups := make(map[string]map[heartbeat.DeviceHash]struct{})
	for _, ev := range m.events {
		if !matches(q.Filter, ev) {
			continue
		}
		key, err := groupKey(q.GroupBy, ev)
		if err != nil {
			return nil, err
		}
		devices, ok := groups[key]
		if !ok {
			devices = make(map[heartbeat.DeviceHash]struct{})
			groups[key] = devices
		}
		devices[ev.DeviceHash] = struct{}{}
	}

	rows := make([]aggregate.Row, 0, len(groups))
	for key, devices := range groups {
		rows = append(rows, aggregate.Row{Key: key, Devices: int64(len(devices))})
	}

	switch q.OrderBy {
	case aggregate.KeyDesc:
		sort.Slice(rows, func(i, j int) bool { return rows[i].Key > rows[j].Key })
	case aggregate.DevicesDesc:
		sort.Slice(rows, func(i, j int) bool {
			if rows[i].Devices != rows[j].Devices {
				return rows[i].Devices > rows[j].Devices
			}
			return rows[i].Key < rows[j].Key
		})
	default:
		return nil, fmt.Errorf("unknown order %d", q.OrderBy)
	}

	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	return rows, nil
}

func matches(f aggregate.Filter, ev heartbeat.Event) bool {
	if ev.Environment != f.Environment {
		return false
	}
	if f.AppID != "" && ev.AppID != f.AppID {
		return false
	}
	if !f.From.IsZero() && ev.Date < f.From {
		return false
	}
	if !f.To.IsZero() && ev.Date > f.To {
		return false
	}
	return true
}

func groupKey(dim aggregate.Dimension, ev heartbeat.Event) (string, error) {
	switch dim {
	case aggregate.ByDate:
		return string(ev.Date), nil
	case aggregate.ByApp:
		return ev.AppID, nil
	case aggregate.ByVersion:
		return ev.AppVersion, nil
	default:
		return "", fmt.Errorf("unknown dimension %q", dim)
	}
}
