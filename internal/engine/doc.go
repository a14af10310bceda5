// Package engine applies ledger events to durable state, one at a time.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Events are applied by exactly one writer. This ensures:
// - Events touching the same project or donor never interleave
// - The event log order is the application order
// - Replay of the log reproduces the stored state
//
// Event Processing Flow:
// 1. Producers Enqueue ledger events from any goroutine
// 2. Engine.Run() dequeues events in FIFO order
// 3. Process() opens a store transaction, applies the event through the
// aggregator, and appends it to the event log
// 4. The transaction commits, then the clock advances
//
// An event that fails to apply rolls back its transaction: neither the log
// nor the derived state changes, and the failure is logged. There are no
// retries; the upstream ledger redelivers.
//
// Ingest tools that need per-event results call Process directly instead
// of going through the queue. Process serializes with Run internally.
//
// Replay folds the stored log into a fresh in-memory state and compares
// the result with the stored derived state (see replay.go).
package engine
