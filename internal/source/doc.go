// Package source reads ledger event batches and contract term tables from
// YAML files.
//
// Input is checked in two passes. The embedded CUE schema (schema.cue)
// rejects structurally wrong documents with a file position: unknown fields,
// wrong kinds, malformed addresses or amounts. A second pass decodes the
// document into ir types and reports semantic problems (missing event
// locators, out-of-range amounts, unparseable times) as ValidationErrors with
// line numbers.
//
// Hex addresses must be quoted in YAML; an unquoted 0x literal with leading
// zeros is read as an integer.
//
// Every event needs a locator: either an explicit event_key or the
// (tx_hash, log_index) pair of the log that emitted it, from which the key is
// derived with ir.EventKey.
package source
