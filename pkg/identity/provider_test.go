package identity

import (
	"context"
	"errors"
	"io"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu     sync.Mutex
	values map[string]string
	getErr error
	setErr error
	sets   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: make(map[string]string)}
}

func (s *fakeStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return "", false, s.getErr
	}
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *fakeStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.sets++
	s.values[key] = value
	return nil
}

// casStore adds SetIfAbsent on top of fakeStore.
type casStore struct {
	*fakeStore
}

func (s casStore) SetIfAbsent(ctx context.Context, key, value string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return "", s.setErr
	}
	if existing, ok := s.values[key]; ok && strings.TrimSpace(existing) != "" {
		return existing, nil
	}
	s.sets++
	s.values[key] = value
	return value, nil
}

// keepFirstStore never replaces an existing value, blank or not.
type keepFirstStore struct {
	*fakeStore
}

func (s keepFirstStore) SetIfAbsent(ctx context.Context, key, value string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.values[key]; ok {
		return existing, nil
	}
	s.values[key] = value
	return value, nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

var hashPattern = regexp.MustCompile(`^[0-9a-f]{16}$`)

func TestHashID(t *testing.T) {
	tests := []struct {
		name  string
		rawID string
		want  string
	}{
		// sha256("") = e3b0c44298fc1c14...
		{name: "empty", rawID: "", want: "e3b0c44298fc1c14"},
		// sha256("abc") = ba7816bf8f01cfea...
		{name: "abc", rawID: "abc", want: "ba7816bf8f01cfea"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(HashID(tt.rawID)))
		})
	}
}

func TestHashID_Deterministic(t *testing.T) {
	raw := "6F9619FF-8B86-D011-B42D-00C04FC964FF"
	assert.Equal(t, HashID(raw), HashID(raw))
	assert.NotEqual(t, HashID(raw), HashID(raw+"x"))
	assert.Regexp(t, hashPattern, string(HashID(raw)))
}

func TestProvider_CreatesAndPersists(t *testing.T) {
	store := newFakeStore()
	p := NewProvider(store, quietLogger())
	ctx := context.Background()

	first := p.DeviceHash(ctx)
	second := p.DeviceHash(ctx)

	assert.Regexp(t, hashPattern, string(first))
	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.sets)
	assert.Equal(t, HashID(store.values[StoreKey]), first)
}

func TestProvider_ReusesPersistedID(t *testing.T) {
	store := newFakeStore()
	store.values[StoreKey] = "existing-id"

	p := NewProvider(store, quietLogger())
	assert.Equal(t, HashID("existing-id"), p.DeviceHash(context.Background()))
	assert.Equal(t, 0, store.sets)

	// A new provider over the same store, as after a restart.
	restarted := NewProvider(store, quietLogger())
	assert.Equal(t, HashID("existing-id"), restarted.DeviceHash(context.Background()))
}

func TestProvider_StoreUnavailable(t *testing.T) {
	tests := []struct {
		name   string
		getErr error
		setErr error
	}{
		{name: "read fails", getErr: errors.New("keychain locked")},
		{name: "write fails", setErr: errors.New("disk full")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			store.getErr, store.setErr = tt.getErr, tt.setErr
			p := NewProvider(store, quietLogger())
			ctx := context.Background()

			_, err := p.RawID(ctx)
			assert.ErrorIs(t, err, ErrUnavailable)

			first := p.DeviceHash(ctx)
			second := p.DeviceHash(ctx)
			assert.Regexp(t, hashPattern, string(first))
			assert.NotEqual(t, first, second, "ephemeral ids must not be remembered")

			// Once the store recovers the persisted identity is used.
			store.getErr, store.setErr = nil, nil
			stable := p.DeviceHash(ctx)
			assert.Equal(t, stable, p.DeviceHash(ctx))
		})
	}
}

func TestProvider_ConcurrentFirstCalls(t *testing.T) {
	stores := map[string]Store{
		"plain store": newFakeStore(),
		"cas store":   casStore{newFakeStore()},
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			p := NewProvider(store, quietLogger())

			const callers = 32
			results := make([]string, callers)
			var wg sync.WaitGroup
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					results[i] = string(p.DeviceHash(context.Background()))
				}(i)
			}
			wg.Wait()

			for _, r := range results {
				assert.Equal(t, results[0], r)
			}
		})
	}
}

func TestProvider_CompareAndSetAcrossProviders(t *testing.T) {
	// Two providers model two processes racing over one shared store.
	shared := casStore{newFakeStore()}
	a := NewProvider(shared, quietLogger())
	b := NewProvider(shared, quietLogger())

	var wg sync.WaitGroup
	var ha, hb string
	wg.Add(2)
	go func() { defer wg.Done(); ha = string(a.DeviceHash(context.Background())) }()
	go func() { defer wg.Done(); hb = string(b.DeviceHash(context.Background())) }()
	wg.Wait()

	require.Equal(t, ha, hb)
	assert.Equal(t, 1, shared.sets)
}

func TestProvider_BlankStoredIDIsReplaced(t *testing.T) {
	tests := []struct {
		name  string
		blank string
		wrap  func(*fakeStore) Store
	}{
		{name: "plain store empty", blank: "", wrap: func(s *fakeStore) Store { return s }},
		{name: "plain store spaces", blank: "   ", wrap: func(s *fakeStore) Store { return s }},
		{name: "cas store empty", blank: "", wrap: func(s *fakeStore) Store { return casStore{s} }},
		{name: "cas store spaces", blank: "   ", wrap: func(s *fakeStore) Store { return casStore{s} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backing := newFakeStore()
			backing.values[StoreKey] = tt.blank
			p := NewProvider(tt.wrap(backing), quietLogger())
			ctx := context.Background()

			first := p.DeviceHash(ctx)
			stored := backing.values[StoreKey]
			assert.NotEmpty(t, strings.TrimSpace(stored))
			assert.NotEqual(t, HashID(tt.blank), first)
			assert.Equal(t, HashID(stored), first)
			assert.Equal(t, 1, backing.sets)

			// Memoized: the store is not consulted again.
			backing.getErr = errors.New("not read again")
			assert.Equal(t, first, p.DeviceHash(ctx))
		})
	}
}

func TestProvider_CompareAndSetKeepsBlank(t *testing.T) {
	backing := newFakeStore()
	backing.values[StoreKey] = " "
	p := NewProvider(keepFirstStore{backing}, quietLogger())
	ctx := context.Background()

	_, err := p.RawID(ctx)
	assert.ErrorIs(t, err, ErrUnavailable)

	h1 := p.DeviceHash(ctx)
	h2 := p.DeviceHash(ctx)
	assert.NotEqual(t, HashID(" "), h1)
	assert.NotEqual(t, HashID(""), h1)
	assert.NotEqual(t, h1, h2)
}
