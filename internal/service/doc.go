// Package service wires the search components into the two ways leadseeker
// runs.
//
// Serve starts a long running process: a session.Manager guarded by one
// process wide search lock, the notification sinks (optionally the SQLite
// store), the Supervisor triggering configured schedules and the HTTP API.
// Everything stops when the context is cancelled.
//
// Search runs exactly one search in the foreground, prints progress to
// stderr and the final snapshot as JSON to stdout.
//
// Data flow:
//
//	Supervisor (gocron)      api.Server (echo)
//	      |                        |
//	      +--- StartSearch --------+
//	                 |
//	          session.Manager --- searchlock.Lock
//	                 |
//	          session.Session <-- upstream.Client (text/event-stream)
//	                 |
//	          notify.Multi --> log, dir, webhook, store
//
// A schedule trigger denied by the search lock is logged and skipped, it
// is not retried before its next time.
package service
