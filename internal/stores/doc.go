// Package stores provides the Redis-backed OTP record store.
//
// # Design
//
// Each code is a versioned, binary-encoded record under its own key, indexed
// by a per-code set and a per-account set. Consumption is a Lua
// compare-and-set on the status byte, so exactly one validator wins.
// Records are never deleted here; an optional retention TTL bounds them.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for OTP records. It
// does NOT generate codes, check expiry, or make authentication decisions;
// those belong to the flow functions in internal/flows.
//
// # What this package must NOT do
//
//   - Import deskauth or any sibling internal package.
//   - Log or expose plaintext codes.
package stores
