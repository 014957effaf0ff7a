// Package sinks implements concrete progress consumers: Prometheus, the run
// ledger, structured logging, and a batch publisher. Each sink satisfies
// progress.Sink and is safe for repeated Consume/Close cycles.
package sinks
