package localstore

import (
	"context"
	"strings"
	"sync"

	"github.com/platinummonkey/heartbeat/pkg/ping"
)

// MemoryStore keeps values in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
	err    error
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Get returns the value stored under key.
func (m *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", false, m.err
	}
	v, ok := m.values[key]
	return v, ok, nil
}

// Set stores value under key.
func (m *MemoryStore) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.values[key] = value
	return nil
}

// SetIfAbsent writes value unless key holds a non-blank value and returns
// the stored value.
func (m *MemoryStore) SetIfAbsent(ctx context.Context, key, value string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	if existing, ok := m.values[key]; ok && strings.TrimSpace(existing) != "" {
		return existing, nil
	}
	m.values[key] = value
	return value, nil
}

// LoadState reads the ping state.
func (m *MemoryStore) LoadState(ctx context.Context) (ping.State, error) {
	return loadState(ctx, m)
}

// SaveState persists the ping state.
func (m *MemoryStore) SaveState(ctx context.Context, state ping.State) error {
	return m.Set(ctx, StateKey, string(state.LastSent))
}

// Fail makes every following operation return err; nil restores the store.
func (m *MemoryStore) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}
