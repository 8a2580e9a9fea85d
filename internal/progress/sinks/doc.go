// Package sinks implements progress consumers: Prometheus collectors, run
// history persistence, structured logs, and broker notifications.
package sinks
