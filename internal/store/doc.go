// Package store provides SQLite-backed durable storage for tally.
//
// The store holds two things:
//   - Events: the append-only log of applied ledger events
//   - Derived state: projects, donors, contributions and milestones, the
//     output of folding the log through the aggregator
//
// Both are written in the same transaction (Store.Update), so the derived
// tables always equal a fold of the log prefix they were written with.
// engine.Replay verifies exactly that.
//
// # Conventions
//
//   - Event ordering uses seq INTEGER (logical clock), never timestamps
//   - List queries carry an explicit ORDER BY so results are identical
//     across runs
//   - Amounts are stored as decimal TEXT via ir.Amount's Valuer/Scanner
//   - Entity writes are upserts; contributions are only ever replaced under
//     the apply-duplicates policy
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
