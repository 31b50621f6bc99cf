// Package telemetry holds the per-device rolling sample buffers and the
// registry that owns them.
//
// A Buffer keeps the last N samples of one device as three index-aligned
// sequences (times, MMI, Richter magnitude). When an append pushes the
// length past the capacity the oldest sample is evicted from all three.
//
// Neither type is safe for concurrent use; the dashboard session serializes
// every mutation on a single goroutine.
package telemetry
