// Package sinks implements concrete progress consumers: a console printer for
// human-readable progress lines, structured logging, and Prometheus collectors.
// Each sink satisfies the progress.Sink interface.
package sinks
