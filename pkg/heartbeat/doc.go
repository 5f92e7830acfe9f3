// Package heartbeat defines the values shared by the client and the server:
// the wire signal, the stored event, calendar dates, environments and the
// aggregate result rows.
//
// A device is only ever known by its DeviceHash, the first 16 hex characters
// of the SHA-256 digest of a random per-installation identifier.
package heartbeat
