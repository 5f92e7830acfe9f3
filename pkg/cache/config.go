package cache

import "time"

// Config holds cache sizing and expiry.
type Config struct {
	// MaxEntries bounds the in-process tier.
	MaxEntries int
	// LocalTTL is the expiry of in-process entries.
	LocalTTL time.Duration
	// RedisTTL is the expiry of shared entries.
	RedisTTL time.Duration
	// KeyPrefix namespaces Redis keys.
	KeyPrefix string
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		MaxEntries: 1024,
		LocalTTL:   30 * time.Second,
		RedisTTL:   5 * time.Minute,
		KeyPrefix:  "heartbeat:",
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxEntries <= 0 {
		c.MaxEntries = d.MaxEntries
	}
	if c.LocalTTL <= 0 {
		c.LocalTTL = d.LocalTTL
	}
	if c.RedisTTL <= 0 {
		c.RedisTTL = d.RedisTTL
	}
	return c
}
