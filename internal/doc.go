// Package internal contains helper utilities that are private to deskauth:
// OTP code generation and id generation.
//
// # Sub-packages
//
//   - appconfig: daemon configuration loading (YAML/TOML files, .env, environment)
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: pure-function orchestrators for every Engine operation
//   - metrics: lock-free counters and latency histograms
//   - security: configuration posture report model
//   - stores: Redis-backed OTP code store
//
// # What this package must NOT do
//
//   - Export types that appear in the public deskauth API.
//   - Be imported by any package outside the deskauth module.
package internal
