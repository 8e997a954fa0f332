// Package api hosts the optional status server for a harvest process.
// Routes:
//   - GET /healthz and /readyz for liveness and readiness; readyz runs the configured checks.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/run and /v1/run/outcomes for the current or last run.
//   - GET /v1/runs, /v1/runs/{run_id} and /v1/runs/{run_id}/outcomes for runs
//     persisted in the outcome ledger.
package api
