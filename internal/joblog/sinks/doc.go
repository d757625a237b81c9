// Package sinks implements concrete job log consumers: structured logging,
// the job_logs table, and a Prometheus counter. Each sink satisfies the
// joblog.Sink interface and is safe for repeated Consume/Close cycles.
package sinks
