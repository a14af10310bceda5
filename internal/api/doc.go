// Package api serves the HTTP read API over the derived ledger state and
// the DID registry.
//
// Routes:
//
//	GET  /healthz
//	GET  /metrics
//	GET  /v1/projects/{address}
//	GET  /v1/projects/{address}/donors
//	GET  /v1/projects/{address}/contributions
//	GET  /v1/projects/{address}/milestones
//	GET  /v1/donors/{address}
//	POST /v1/events            (only with WithIngest)
//	GET  /v1/did/{address}
//	PUT  /v1/did/{address}     (caller in X-Caller-Address)
//	GET  /v1/did/events        (server-sent document updates)
//
// Ledger state is read-only over HTTP. Event batches posted to /v1/events
// are queued on the engine and applied by its single-writer loop.
package api
