// Package aggregate folds ledger events into derived donation state.
//
// The Aggregator is a deterministic function from (state, event) to state.
// State is an explicit key-value object passed into every operation; there is
// no process-wide registry of entities.
//
// Three rules carry the model:
//   - ApplyDonation accumulates Project and Donor totals and writes a
//     Contribution keyed by the event key
//   - ApplyMilestoneSettlement flips Milestone.IsPaid; unknown milestones are
//     a silent no-op because provisioning and settlement arrive on
//     independently ordered channels
//   - EnsureProject / EnsureDonor materialize an entity the first time an
//     event references it
//
// # Duplicate delivery
//
// Donations are not idempotent by themselves: re-applying one adds its amount
// again. PolicyRejectDuplicates (the default) looks the event key up before any
// write and returns a DUPLICATE_EVENT error. PolicyApplyDuplicates reproduces
// the unguarded behaviour of the on-chain indexer this package replaces and
// exists for parity testing only.
//
// # Atomicity
//
// Operations either apply all of their writes or none. Validation and the
// duplicate check happen before the first write; callers that need rollback
// on storage errors run operations inside MemState.Update or store.Store.Update.
//
// Events for different projects and donors commute. The aggregator assumes a
// single writer per entity; ordering is the caller's responsibility.
package aggregate
