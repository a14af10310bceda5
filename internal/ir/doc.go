// Package ir provides the canonical record types for the tally indexer.
//
// This package contains type definitions and their encodings only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types anywhere; monetary values are Amount (arbitrary precision,
//     uint256 range on input, decimal strings on the wire and on disk)
//   - Addresses are normalized to lower case at the parse boundary
//   - All JSON tags use snake_case
//   - Ordering uses the logical seq assigned by the engine, never timestamps
package ir
