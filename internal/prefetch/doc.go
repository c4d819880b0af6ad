// Package prefetch implements the bounded-concurrency route prefetch queue.
//
// A [Queue] accepts [RouteDescriptor] values in FIFO order and keeps at most
// MaxConcurrent loads in flight. Each completion frees a slot and pulls the
// next queued route, so the queue drains itself without a dispatcher
// goroutine. Every enqueued descriptor is attempted exactly once; there is
// no de-duplication, retry or cancellation.
//
// # Metrics
//
// The queue counts successes and failures, the total wall time of
// successful loads, and cache hits (successes that finished faster than the
// cache-hit threshold, 50ms by default). [Queue.Metrics] derives the
// average load time and the cache hit rate from successful loads only.
//
// # Item lifecycle
//
//	queued -> loading -> succeeded
//	                  -> failed
//
// Terminal states are never left.
package prefetch
