// Package progress carries run lifecycle and per-account outcome events from
// the supervisor and workers to pluggable sinks. Emitters never block: a
// background goroutine batches events and fans each batch out to every sink.
package progress
