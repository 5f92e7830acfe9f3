// Package identity derives the anonymous device key.
//
// A random UUID is created once per installation and kept in a Store. Only
// its truncated SHA-256 digest leaves the Provider:
//
//	p := identity.NewProvider(store, logger)
//	hash := p.DeviceHash(ctx) // e.g. "3f2a9c0d1b7e4a55"
//
// When the store cannot be read or written the Provider answers with a hash
// of a throwaway identifier for that call. The device then looks new to the
// server until the store recovers; this is an accepted degradation and is
// logged at warn level.
package identity
