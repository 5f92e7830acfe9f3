package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/heartbeat/pkg/heartbeat"
)

// StoreKey is the key under which the raw identifier is persisted.
const StoreKey = "heartbeat.device_id"

// ErrUnavailable wraps store failures.
var ErrUnavailable = errors.New("identity store unavailable")

// Store is an installation scoped key/value store.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// CompareAndSetter is implemented by stores that can write a key only when
// it is absent or blank. SetIfAbsent returns the value that ends up stored,
// which is the caller's value only if it won.
type CompareAndSetter interface {
	SetIfAbsent(ctx context.Context, key, value string) (stored string, err error)
}

// Provider hands out the device hash of this installation.
type Provider struct {
	store  Store
	logger logrus.FieldLogger

	mu    sync.Mutex
	rawID string
}

// NewProvider creates a provider backed by store.
func NewProvider(store Store, logger logrus.FieldLogger) *Provider {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Provider{
		store:  store,
		logger: logger.WithField("component", "identity"),
	}
}

// DeviceHash returns the hashed identifier, creating the raw identifier on
// first use.
func (p *Provider) DeviceHash(ctx context.Context) heartbeat.DeviceHash {
	return HashID(p.rawIDOrEphemeral(ctx))
}

// rawIDOrEphemeral returns the persisted identifier or, if the store fails,
// a fresh one that is not remembered.
func (p *Provider) rawIDOrEphemeral(ctx context.Context) string {
	id, err := p.RawID(ctx)
	if err != nil {
		p.logger.WithError(err).Warn("using ephemeral device identifier")
		return newRawID()
	}
	return id
}

// RawID returns the persisted identifier, generating and persisting it if
// absent. Concurrent first calls converge on a single value.
func (p *Provider) RawID(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rawID != "" {
		return p.rawID, nil
	}

	existing, ok, err := p.store.Get(ctx, StoreKey)
	if err != nil {
		return "", errors.Join(ErrUnavailable, err)
	}
	if ok && strings.TrimSpace(existing) != "" {
		p.rawID = existing
		return p.rawID, nil
	}

	candidate := newRawID()
	if cas, ok := p.store.(CompareAndSetter); ok {
		stored, err := cas.SetIfAbsent(ctx, StoreKey, candidate)
		if err != nil {
			return "", errors.Join(ErrUnavailable, err)
		}
		if strings.TrimSpace(stored) == "" {
			return "", fmt.Errorf("%w: blank identifier kept by store", ErrUnavailable)
		}
		p.rawID = stored
		return p.rawID, nil
	}

	if err := p.store.Set(ctx, StoreKey, candidate); err != nil {
		return "", errors.Join(ErrUnavailable, err)
	}
	p.rawID = candidate
	return p.rawID, nil
}

// HashID derives the device hash of a raw identifier: the SHA-256 digest of
// its bytes, hex encoded and cut to 16 characters.
func HashID(rawID string) heartbeat.DeviceHash {
	sum := sha256.Sum256([]byte(rawID))
	return heartbeat.DeviceHash(hex.EncodeToString(sum[:])[:heartbeat.DeviceHashLen])
}

func newRawID() string {
	return uuid.NewString()
}
