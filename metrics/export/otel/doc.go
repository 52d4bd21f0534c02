// Package otel exposes deskauth counters and latency buckets as
// OpenTelemetry observable instruments. The caller owns the MeterProvider;
// one callback reads the engine snapshot per collection.
package otel
