// Package api hosts the operator HTTP surface. Notable routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/discovery/runs and GET /v1/discovery/runs/{run_id} to start and
//     inspect discovery runs.
//   - POST /v1/documents/process, POST /v1/documents/process-pending and
//     GET /v1/documents/{id} to drive and inspect extraction.
package api
