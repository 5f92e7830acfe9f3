// Package ingest validates incoming heartbeat signals and appends them to
// the event log.
//
// The event date is always taken from the server clock at receipt. Each
// accepted signal produces exactly one append; repeated signals from one
// device on one day are kept and collapse at query time through distinct
// counting.
package ingest
