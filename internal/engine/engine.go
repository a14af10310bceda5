package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/tally/internal/aggregate"
	"github.com/roach88/tally/internal/ir"
	"github.com/roach88/tally/internal/store"
)

// Engine is the single-writer event loop.
//
// Thread-safety model:
//   - Enqueue(), Process(), NewBatch(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//
// INVARIANTS:
//   - Each event's store writes and log append share one transaction
//   - Logged seqs are contiguous from 1
type Engine struct {
	store    *store.Store
	agg      *aggregate.Aggregator
	clock    *Clock
	queue    *eventQueue
	batchGen BatchTokenGenerator
	logger   *slog.Logger

	mu sync.Mutex // serializes Process
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithBatchTokens sets the batch token generator. Defaults to UUIDv7Generator.
func WithBatchTokens(gen BatchTokenGenerator) Option {
	return func(e *Engine) {
		e.batchGen = gen
	}
}

// New creates an Engine writing to s through agg.
// The clock resumes after the last logged seq.
func New(ctx context.Context, s *store.Store, agg *aggregate.Aggregator, opts ...Option) (*Engine, error) {
	last, err := s.LastSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	e := &Engine{
		store:    s,
		agg:      agg,
		clock:    NewClockAt(last),
		queue:    newEventQueue(),
		batchGen: UUIDv7Generator{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Enqueue submits an event for processing by the Run loop.
// Returns false if the engine has been stopped.
func (e *Engine) Enqueue(ev ir.LedgerEvent) bool {
	return e.queue.Enqueue(ev)
}

// QueueLen returns the number of events waiting for Run.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// NewBatch generates a token for a group of events ingested together.
func (e *Engine) NewBatch() string {
	return e.batchGen.Generate()
}

// Seq returns the seq of the last applied event.
func (e *Engine) Seq() int64 {
	return e.clock.Current()
}

// Process applies ev and appends it to the event log atomically.
// Returns the seq the event was logged with.
//
// Aggregator errors (duplicate, invalid event, unknown contract) are returned
// unchanged so callers can classify them with the aggregate.IsXxx helpers.
func (e *Engine) Process(ctx context.Context, ev ir.LedgerEvent) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ev.Seq = e.clock.Pending()
	err := e.store.Update(ctx, func(tx *store.Tx) error {
		if err := e.agg.Apply(ctx, tx, ev); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, ev)
	})
	if err != nil {
		return 0, err
	}
	if err := e.clock.Commit(ev.Seq); err != nil {
		return 0, err
	}

	e.logger.Debug("event applied",
		"seq", ev.Seq,
		"key", ev.Key,
		"kind", ev.Kind,
		"source", ev.Source(),
		"batch", ev.Batch,
	)
	return ev.Seq, nil
}

// Run starts the single-writer event loop.
// Blocks until ctx is cancelled or Stop is called and the queue has drained.
//
// ERROR HANDLING: On event processing failure, the error is logged with the
// event's identity and processing continues. Retrying here would reorder
// events relative to the upstream ledger.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting", "seq", e.clock.Current())

	for {
		if ev, ok := e.queue.TryDequeue(); ok {
			if _, err := e.Process(ctx, ev); err != nil {
				e.logEventError(ev, err)
			}
			continue
		}

		if e.queue.Drained() {
			e.logger.Info("engine stopping: queue closed", "seq", e.clock.Current())
			return nil
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled", "seq", e.clock.Current())
			e.queue.Close()
			return ctx.Err()
		case <-e.queue.Wait():
		}
	}
}

// Stop closes the queue. Run applies what is already queued, then returns.
func (e *Engine) Stop() {
	e.queue.Close()
}

func (e *Engine) logEventError(ev ir.LedgerEvent, err error) {
	attrs := []any{
		"key", ev.Key,
		"kind", ev.Kind,
		"source", ev.Source(),
		"error", err,
	}
	if aggregate.IsDuplicateEvent(err) {
		e.logger.Info("event skipped", attrs...)
		return
	}
	e.logger.Error("event processing failed", attrs...)
}
