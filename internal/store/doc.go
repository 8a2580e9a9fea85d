// Package store declares the run-history repository used to persist job runs
// and their outcome totals across restarts.
package store
