// Package joblog provides the fire-and-forget job log used by discovery and
// extraction. Entries are batched on a background goroutine and fanned out to
// pluggable sinks (structured logs, the job_logs table, Prometheus). Emitting
// never blocks and never fails the caller.
package joblog
