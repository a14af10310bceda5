package engine

// # Replay
//
// The stored derived tables are a cache of the event log. Replay checks that
// cache: it folds the log into a fresh MemState with the same aggregator
// policy, then compares the result with the stored tables by StateDigest.
//
// Three things make the fold deterministic:
//
//  1. The log is read ORDER BY seq, the order events were applied.
//  2. Rejected events were never logged (their transaction rolled back), so
//     every logged event applied cleanly the first time.
//  3. Snapshots are compared as canonical JSON, independent of row order.
//
// A mismatch means the derived tables were edited outside the engine, or
// the aggregator changed behaviour since the events were written.

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/tally/internal/aggregate"
	"github.com/roach88/tally/internal/ir"
	"github.com/roach88/tally/internal/store"
)

// ReplayReport is the outcome of Replay.
type ReplayReport struct {
	Events         int    `json:"events"`
	LastSeq        int64  `json:"last_seq"`
	StoredDigest   string `json:"stored_digest"`
	ReplayedDigest string `json:"replayed_digest"`

	// ApplyErrors lists logged events the aggregator now refuses.
	ApplyErrors []string `json:"apply_errors,omitempty"`

	// Invariants is the CheckInvariants result for the stored state.
	Invariants error `json:"-"`
}

// Match reports whether replay reproduced the stored state.
func (r ReplayReport) Match() bool {
	return r.StoredDigest == r.ReplayedDigest && len(r.ApplyErrors) == 0
}

// OK reports whether the state matched and all invariants hold.
func (r ReplayReport) OK() bool {
	return r.Match() && r.Invariants == nil
}

// Replay re-folds the event log of s through agg and verifies the result
// against the stored derived state.
//
// The returned error covers only failures to read; verification failures
// are reported in the ReplayReport.
func Replay(ctx context.Context, s *store.Store, agg *aggregate.Aggregator) (ReplayReport, error) {
	var report ReplayReport

	events, err := s.ReadEvents(ctx)
	if err != nil {
		return report, fmt.Errorf("replay: %w", err)
	}
	report.Events = len(events)

	mem := aggregate.NewMemState()
	for _, ev := range events {
		err := mem.Update(func(st aggregate.State) error {
			return agg.Apply(ctx, st, ev)
		})
		if err != nil {
			report.ApplyErrors = append(report.ApplyErrors, fmt.Sprintf("seq=%d key=%s: %v", ev.Seq, ev.Key, err))
		}
		report.LastSeq = ev.Seq
	}

	stored, err := s.Snapshot(ctx)
	if err != nil {
		return report, fmt.Errorf("replay: %w", err)
	}

	report.StoredDigest, err = ir.StateDigest(stored)
	if err != nil {
		return report, fmt.Errorf("replay: stored digest: %w", err)
	}
	report.ReplayedDigest, err = ir.StateDigest(mem.Snapshot())
	if err != nil {
		return report, fmt.Errorf("replay: replayed digest: %w", err)
	}
	report.Invariants = aggregate.CheckInvariants(stored)

	slog.Debug("replay finished",
		"events", report.Events,
		"match", report.Match(),
		"invariants_ok", report.Invariants == nil)
	return report, nil
}
