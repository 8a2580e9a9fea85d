// Package main hosts the bulkgen entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes start/stop control, live statistics, the drained activity log,
//     category listings, downloads and archived exports, plus health, readiness and metrics endpoints.
//   - Job supervisor: internal/job.Supervisor owns one run at a time. It resets the counter registry, spawns a
//     fixed worker pool and polls the shared counters until the target is met, every worker has exited, or a stop
//     is requested. Each run gets its own context so a late monitor never touches a newer run.
//   - Workers: internal/worker drives a Synthesizer in a loop, classifies each account, records it to the accounts
//     store and bumps the counters. Optional rate limiting paces attempts per region.
//   - Activity log: internal/logbridge holds a bounded buffer of categorized messages fed by the zap tee core and
//     by explicit emits. The dashboard drains it on every poll.
//   - Persistence & fanout: accounts land in memory or a per-category folder tree; exports go to the configured
//     BlobStore (memory/local/GCS); run history is kept in Postgres when a DSN is set; progress events are batched
//     by the progress Hub and sent to Prometheus, the log, Postgres and Pub/Sub.
//
// Quick checklist:
//   - Configure env vars with the BULKGEN_ prefix (BULKGEN_SERVER_PORT, BULKGEN_JOB_THREAD_COUNT,
//     BULKGEN_DB_DSN, BULKGEN_PUBSUB_PROJECT_ID, ...). A .env file is read first when present.
//   - Serve: go run ./cmd/bulkgen serve --config config.yaml
//   - One-shot: go run ./cmd/bulkgen run --count 50 --threads 4 --region GHOST
package main
