package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/tally/internal/aggregate"
	"github.com/roach88/tally/internal/engine"
	"github.com/roach88/tally/internal/ir"
	"github.com/roach88/tally/internal/store"
	"github.com/roach88/tally/internal/testutil"
)

// Harness runs one scenario against a fresh engine.
type Harness struct {
	store  *store.Store
	agg    *aggregate.Aggregator
	engine *engine.Engine
	logger *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation, through
// the same engine and aggregator the ingest command uses.
//
// Execution flow:
// 1. Create fresh in-memory database
// 2. Build the aggregator from the scenario's contracts and policy
// 3. Deliver every event through engine.Process, recording outcomes
// 4. Match outcomes against the expected rejections
// 5. Evaluate assertions against the final state
//
// The returned error covers infrastructure failures only; scenario failures
// are reported through Result.Pass and Result.Errors.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	agg := aggregate.New(scenario.contracts,
		aggregate.WithDuplicatePolicy(scenario.policy),
		aggregate.WithLogger(logger),
	)

	eng, err := engine.New(ctx, st, agg,
		engine.WithLogger(logger),
		engine.WithBatchTokens(testutil.NewFixedBatchGenerator(scenario.BatchToken)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	h := &Harness{store: st, agg: agg, engine: eng, logger: logger}

	result := NewResult()
	if err := h.deliver(ctx, scenario, result); err != nil {
		return nil, err
	}

	result.State, err = st.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read final state: %w", err)
	}
	result.State.Sort()

	actx := &AssertionContext{Ctx: ctx, Store: st, Aggregator: agg, State: result.State}
	for _, msg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// deliver processes the scenario events in order, one batch for the whole
// delivery.
func (h *Harness) deliver(ctx context.Context, scenario *Scenario, result *Result) error {
	expected := make(map[int]string, len(scenario.Rejections))
	for _, r := range scenario.Rejections {
		expected[r.Event] = r.Code
	}

	before, err := h.store.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to read initial state: %w", err)
	}

	batch := h.engine.NewBatch()
	for i, ev := range scenario.events {
		ev.Batch = batch
		outcome := Outcome{Index: i, Key: ev.Key, Kind: ev.Kind}

		seq, err := h.engine.Process(ctx, ev)
		if err != nil {
			code := aggregate.CodeOf(err)
			if code == "" {
				return fmt.Errorf("event %d (%s): %w", i, ev.Key, err)
			}
			outcome.Code = string(code)
		}
		outcome.Seq = seq
		result.AddOutcome(outcome)

		want, wantReject := expected[i]
		switch {
		case wantReject && outcome.Applied():
			result.AddError(fmt.Sprintf("event %d (%s): expected rejection %s, but it was applied at seq %d",
				i, ev.Kind, want, seq))
		case wantReject && outcome.Code != want:
			result.AddError(fmt.Sprintf("event %d (%s): expected rejection %s, got %s",
				i, ev.Kind, want, outcome.Code))
		case !wantReject && !outcome.Applied():
			result.AddError(fmt.Sprintf("event %d (%s): unexpected rejection: %v", i, ev.Kind, err))
		}

		after, err := h.store.Snapshot(ctx)
		if err != nil {
			return fmt.Errorf("event %d (%s): failed to read state: %w", i, ev.Key, err)
		}
		if msg := transitionError(i, ev, before, after); msg != "" {
			result.AddError(msg)
		}
		before = after

		h.logger.Info("scenario event delivered",
			"scenario", scenario.Name,
			"index", i,
			"key", ev.Key,
			"seq", seq,
			"code", outcome.Code,
		)
	}
	return nil
}

// transitionError reports an event that moved the derived state backwards.
func transitionError(index int, ev ir.LedgerEvent, before, after ir.Snapshot) string {
	if err := aggregate.CheckTransition(before, after); err != nil {
		return fmt.Sprintf("event %d (%s): invalid state transition: %v", index, ev.Kind, err)
	}
	return ""
}
