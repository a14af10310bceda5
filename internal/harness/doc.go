// Package harness runs conformance scenarios against the real engine.
//
// A scenario is a YAML file holding contract terms, an ordered event
// delivery, the events the delivery must reject, and assertions over the
// final state. Each scenario runs in a fresh in-memory SQLite store through
// engine.Process, the same path `tally ingest` uses.
//
// # Scenario Format
//
//	name: duplicate_redelivery
//	description: "A re-delivered donation is rejected"
//	duplicates: reject            # or apply
//	contracts:
//	  - address: "0x1111..."
//	    beneficiary: "0x9999..."
//	    goal: 1000
//	    deadline: 1780272000
//	events:
//	  - kind: donation
//	    tx_hash: "0xaa01"
//	    log_index: 0
//	    source: "0x1111..."
//	    donor: "0xdddd..."
//	    amount: 100
//	rejections:
//	  - event: 1
//	    code: DUPLICATE_EVENT
//	assertions:
//	  - type: project
//	    address: "0x1111..."
//	    expect: { raised_amount: 100, state: fundraising }
//	  - type: replay
//
// The contracts and events sections are validated by the source package and
// follow the same rules as standalone files.
//
// # Assertion Types
//
//   - project, donor: subset match on the entity at address
//   - contribution: subset match on a contribution by event_key, or by the
//     key derived from tx_hash and log_index
//   - milestone: subset match on milestone index of project address
//   - event_count: number of logged events
//   - invariants: aggregate.CheckInvariants passes on the final state
//   - replay: engine.Replay reproduces the stored state from the log
//
// Entity assertions compare against the canonical state encoding, so field
// names are the snake_case JSON names and amounts are decimal strings
// (YAML integers are accepted). Set absent: true to assert an entity does
// not exist.
//
// # Deterministic Testing
//
// Every logged event carries the scenario's fixed batch token, seqs start at
// 1 in a fresh store, and the golden document is canonical JSON, so a
// scenario produces byte-identical golden output on every run.
package harness
