// Package progress provides the event primitives, non-blocking hub, and emitter
// interfaces the dispatcher and workers use to report harvest progress. Events are
// batched on a background goroutine and fanned out to pluggable sinks such as the
// console printer, structured logs, or Prometheus collectors.
package progress
