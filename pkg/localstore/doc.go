// Package localstore persists the client side state of an installation:
// the raw device identifier and the last acknowledged heartbeat day.
//
// SQLiteStore keeps both in a single-file key/value table and implements
// identity.Store, identity.CompareAndSetter and ping.StateStore. MemoryStore
// implements the same contracts in process, with injectable failures for
// tests.
package localstore
