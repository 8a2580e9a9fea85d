// Package api hosts the HTTP server, middleware, and REST handlers for the
// generator dashboard. Notable routes:
//   - POST /api/start and /api/stop to control the job.
//   - GET /api/stats and /api/logs for dashboard polling.
//   - GET /api/accounts/{category} and /api/download/{category} for records.
//   - POST /api/export/{category} to archive a category in blob storage.
//   - GET /api/runs and /api/runs/{run_id} for run history via the
//     store.RunRepository interface.
//   - GET /healthz / readyz for probes and GET /metrics for Prometheus.
package api
