package cache

import (
	"context"
	"errors"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/heartbeat/pkg/observability"
)

const (
	tierLocal = "l1"
	tierRedis = "l2"
)

// Tiered is an LRU cache in front of an optional Redis cache.
type Tiered struct {
	config  Config
	local   *lru.LRU[string, []byte]
	redis   *redis.Client
	metrics *observability.Metrics
	logger  logrus.FieldLogger
}

// NewTiered creates a cache. A nil client disables the Redis tier and a
// nil metrics disables instrumentation.
func NewTiered(config Config, client *redis.Client, metrics *observability.Metrics, logger logrus.FieldLogger) *Tiered {
	config = config.withDefaults()
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Tiered{
		config:  config,
		local:   lru.NewLRU[string, []byte](config.MaxEntries, nil, config.LocalTTL),
		redis:   client,
		metrics: metrics,
		logger:  logger.WithField("component", "cache"),
	}
}

// Get returns the value under key from the first tier holding it.
func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool) {
	if v, ok := t.local.Get(key); ok {
		t.hit(tierLocal)
		return v, true
	}
	t.miss(tierLocal)

	if t.redis == nil {
		return nil, false
	}

	data, err := t.redis.Get(ctx, t.config.KeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		t.miss(tierRedis)
		return nil, false
	}
	if err != nil {
		t.fail("get", key, err)
		return nil, false
	}

	t.hit(tierRedis)
	t.local.Add(key, data)
	return data, true
}

// Set stores value in every tier.
func (t *Tiered) Set(ctx context.Context, key string, value []byte) {
	t.local.Add(key, value)

	if t.redis == nil {
		return
	}
	if err := t.redis.Set(ctx, t.config.KeyPrefix+key, value, t.config.RedisTTL).Err(); err != nil {
		t.fail("set", key, err)
	}
}

func (t *Tiered) hit(tier string) {
	if t.metrics != nil {
		t.metrics.CacheHitsTotal.WithLabelValues(tier).Inc()
	}
}

func (t *Tiered) miss(tier string) {
	if t.metrics != nil {
		t.metrics.CacheMissesTotal.WithLabelValues(tier).Inc()
	}
}

func (t *Tiered) fail(op, key string, err error) {
	if t.metrics != nil {
		t.metrics.CacheErrorsTotal.WithLabelValues(tierRedis, op).Inc()
	}
	t.logger.WithError(err).WithFields(logrus.Fields{
		"operation": op,
		"key":       key,
	}).Debug("redis cache operation failed")
}
