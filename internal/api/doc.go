// Package api hosts the optional HTTP server that reports on a running
// lookup. Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/progress for the live run snapshot.
//   - GET /v1/runs/{run_id} for ledger history when a database is configured.
package api
