// Package progress carries run milestones from the lookup pipeline to
// pluggable sinks. Emitters never block; a background goroutine batches
// events and fans them out to Prometheus, the run ledger, logs, or a
// publisher.
package progress
