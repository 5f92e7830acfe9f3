// Package cache provides the two level result cache used by the
// aggregation engine.
//
// Level one is an in-process LRU with per-entry expiry
// (github.com/hashicorp/golang-lru/v2/expirable). Level two is optional
// Redis shared by every server replica. A level two hit refills level one.
// Redis failures are counted and logged but never surface: the caller
// simply sees a miss.
//
//	c := cache.NewTiered(cache.DefaultConfig(), redisClient, metrics, logger)
//	engine := aggregate.NewEngine(backend, aggregate.Config{Cache: c})
package cache
