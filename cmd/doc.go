// Package cmd defines the docket-crawler CLI.
//
// Architecture overview:
//   - Discovery: internal/discovery.Orchestrator runs the hub crawler, the sitemap walker and the web-archive
//     query in fixed priority order, deduplicates their URLs by normalized form, and records new documents or
//     lineage updates in the catalog. Each discoverer paces requests per host through internal/policy/ratelimit.
//   - Extraction: internal/extract.Pipeline fetches one document with conditional validators, extracts text from
//     PDF or HTML, scores quality, and stores the result. Indexed documents are announced on the configured
//     publisher. internal/worker drains pending documents one at a time.
//   - Persistence: the catalog is in memory for local runs or Postgres (pgx) in production. Job log entries are
//     batched through internal/joblog and fanned out to zap, Prometheus and the catalog.
//   - Surfaces: `serve` exposes the same operations over HTTP (internal/api); `discover`, `process`,
//     `process-pending` and `migrate` run them once from the command line and print JSON.
//
// Configuration comes from an optional file passed with --config, overridden by DOCKET_* environment variables
// (for example DOCKET_STORE_DRIVER=postgres, DOCKET_DB_DSN=..., DOCKET_PUBSUB_DRIVER=pubsub).
package cmd
