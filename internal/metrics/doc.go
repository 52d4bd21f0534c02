// Package metrics keeps the engine's operation counters and per-operation
// latency histograms in a fixed array indexed by [MetricID].
//
// Counter slots are padded to a cache line. Latency ids double as sample
// counters, and each has eight buckets from 5ms to 500ms plus overflow.
// Exporters under metrics/export read [Snapshot] values and never touch the
// live arrays.
package metrics
