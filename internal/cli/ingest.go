package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/aggregate"
	"github.com/roach88/tally/internal/engine"
	"github.com/roach88/tally/internal/ir"
	"github.com/roach88/tally/internal/source"
)

// IngestOptions holds flags for the ingest command.
type IngestOptions struct {
	*RootOptions
	Strict bool

	// BatchTokens allows overriding the batch token generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	BatchTokens engine.BatchTokenGenerator
}

// EventOutcome reports what happened to one event.
type EventOutcome struct {
	File  string `json:"file"`
	Index int    `json:"index"`
	Key   string `json:"key"`
	Kind  string `json:"kind"`
	Seq   int64  `json:"seq,omitempty"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}

// IngestResult holds the overall ingest result.
type IngestResult struct {
	Batches  []string       `json:"batches"`
	Applied  int            `json:"applied"`
	Rejected int            `json:"rejected"`
	LastSeq  int64          `json:"last_seq"`
	Events   []EventOutcome `json:"events"`
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IngestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ingest <events-file>...",
		Short: "Apply event batch files to the ledger",
		Long: `Validate event batch files and apply them in order, one batch per file.

Each event is applied and appended to the event log in a single transaction.
Refused events (duplicates, invalid payloads, unknown contracts) are reported
and skipped; they are never retried.

Exit codes:
  0 - All files processed (refused events included, unless --strict)
  1 - --strict and at least one event was refused
  2 - Command error (invalid file, database error, etc.)

Examples:
  tally ingest --db ./tally.db --contracts contracts.yaml events.yaml
  tally ingest --duplicates apply events.yaml --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "exit 1 if any event is refused")

	return cmd
}

func runIngest(ctx context.Context, opts *IngestOptions, files []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	// Validate every file before applying anything.
	parsed, err := loadEventFiles(files)
	if err != nil {
		return err
	}

	agg, err := newAggregator(opts.RootOptions)
	if err != nil {
		return err
	}
	st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			opts.Logger.Error("error closing database", "error", closeErr)
		}
	}()

	gen := opts.BatchTokens
	if gen == nil {
		gen = engine.UUIDv7Generator{}
	}
	eng, err := engine.New(ctx, st, agg, engine.WithLogger(opts.Logger), engine.WithBatchTokens(gen))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start engine", err)
	}

	result := IngestResult{Batches: make([]string, 0, len(files)), Events: []EventOutcome{}}
	for _, pf := range parsed {
		batch := eng.NewBatch()
		result.Batches = append(result.Batches, batch)
		formatter.VerboseLog("%s: %d event(s), batch %s", pf.file, len(pf.events), batch)

		for j, ev := range pf.events {
			ev.Batch = batch
			outcome := EventOutcome{File: pf.file, Index: j, Key: ev.Key, Kind: string(ev.Kind)}

			seq, err := eng.Process(ctx, ev)
			if err != nil {
				code := aggregate.CodeOf(err)
				if code == "" {
					return WrapExitError(ExitCommandError, fmt.Sprintf("%s: event %d (%s)", pf.file, j, ev.Key), err)
				}
				outcome.Code = string(code)
				outcome.Error = err.Error()
				result.Rejected++
				opts.Logger.Info("event refused", "file", pf.file, "index", j, "key", ev.Key, "code", code)
			} else {
				outcome.Seq = seq
				result.Applied++
			}
			result.Events = append(result.Events, outcome)
		}
	}
	result.LastSeq = eng.Seq()

	if opts.Strict && result.Rejected > 0 {
		if opts.Format != "json" {
			outputIngestText(formatter.Writer, result)
		}
		return formatter.Failure(ExitFailure, ErrCodeRejected,
			fmt.Sprintf("%d event(s) refused", result.Rejected), result)
	}
	return formatter.Render(result, func(w io.Writer) {
		outputIngestText(w, result)
	})
}

type eventFile struct {
	file   string
	events []ir.LedgerEvent
}

func loadEventFiles(files []string) ([]eventFile, error) {
	parsed := make([]eventFile, 0, len(files))
	for _, f := range files {
		events, err := source.LoadEvents(f)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid event file "+f, err)
		}
		parsed = append(parsed, eventFile{file: f, events: events})
	}
	return parsed, nil
}

func outputIngestText(w io.Writer, result IngestResult) {
	for _, o := range result.Events {
		if o.Code != "" {
			fmt.Fprintf(w, "✗ %s[%d] %s %s: %s\n", o.File, o.Index, o.Kind, o.Key, o.Code)
			continue
		}
		fmt.Fprintf(w, "✓ %s[%d] %s %s (seq %d)\n", o.File, o.Index, o.Kind, o.Key, o.Seq)
	}
	fmt.Fprintf(w, "\nIngest Summary: %d applied, %d refused, last seq %d\n",
		result.Applied, result.Rejected, result.LastSeq)
}
