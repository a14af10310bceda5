package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/tally/internal/harness"
	"github.com/roach88/tally/internal/source"
)

// Document kinds recognised by validate.
const (
	docEvents    = "events"
	docContracts = "contracts"
	docScenario  = "scenario"
)

// Issue is one validation problem, flattened for output.
type Issue struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// FileValidation is the validation result for one input file.
type FileValidation struct {
	File   string  `json:"file"`
	Kind   string  `json:"kind,omitempty"`
	Count  int     `json:"count"`
	Valid  bool    `json:"valid"`
	Issues []Issue `json:"issues,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid bool             `json:"valid"`
	Files []FileValidation `json:"files"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Validate event, contract or scenario files",
		Long: `Validate event batches, contract terms files and scenarios against the
embedded schema without touching a database.

The document kind is detected from its top-level keys: "events", "contracts",
or both (a scenario).

Exit codes:
  0 - All files valid
  2 - At least one file is invalid or unreadable

Examples:
  tally validate events.yaml contracts.yaml
  tally validate scenarios/*.yaml --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, files []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	result := ValidationResult{Valid: true, Files: make([]FileValidation, 0, len(files))}
	for _, file := range files {
		fv := validateFile(file)
		formatter.VerboseLog("%s: kind=%s valid=%t", file, fv.Kind, fv.Valid)
		if !fv.Valid {
			result.Valid = false
		}
		result.Files = append(result.Files, fv)
	}

	if result.Valid {
		return formatter.Render(result, func(w io.Writer) {
			for _, fv := range result.Files {
				fmt.Fprintf(w, "✓ %s (%s, %d entries)\n", fv.File, fv.Kind, fv.Count)
			}
		})
	}

	if opts.Format != "json" {
		outputValidationText(formatter.Writer, result)
	}
	return formatter.Failure(ExitCommandError, ErrCodeInvalidInput, "validation failed", result)
}

func outputValidationText(w io.Writer, result ValidationResult) {
	for _, fv := range result.Files {
		if fv.Valid {
			fmt.Fprintf(w, "✓ %s (%s, %d entries)\n", fv.File, fv.Kind, fv.Count)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", fv.File)
		for _, is := range fv.Issues {
			if is.Line > 0 {
				fmt.Fprintf(w, "  line %d: [%s] %s: %s\n", is.Line, is.Code, is.Field, is.Message)
			} else {
				fmt.Fprintf(w, "  [%s] %s: %s\n", is.Code, is.Field, is.Message)
			}
		}
	}
}

// validateFile detects the kind of file and parses it with the matching
// loader.
func validateFile(path string) FileValidation {
	fv := FileValidation{File: path}

	data, err := os.ReadFile(path)
	if err != nil {
		fv.Issues = []Issue{{Code: ErrCodeInvalidInput, Message: err.Error()}}
		return fv
	}

	fv.Kind, err = detectKind(data)
	if err != nil {
		fv.Issues = []Issue{{Code: ErrCodeInvalidInput, Message: err.Error()}}
		return fv
	}

	switch fv.Kind {
	case docScenario:
		var s *harness.Scenario
		s, err = harness.ParseScenario(path, data)
		if err == nil {
			fv.Count = len(s.LedgerEvents())
		}
	case docEvents:
		events, perr := source.ParseEvents(path, data)
		fv.Count, err = len(events), perr
	case docContracts:
		contracts, perr := source.ParseContracts(path, data)
		fv.Count, err = len(contracts), perr
	}
	if err != nil {
		fv.Count = 0
		fv.Issues = issuesOf(err)
		return fv
	}
	fv.Valid = true
	return fv
}

// detectKind inspects the top-level mapping keys of a YAML document.
func detectKind(data []byte) (string, error) {
	var top map[string]yaml.Node
	if err := yaml.Unmarshal(data, &top); err != nil {
		return "", fmt.Errorf("not a YAML mapping: %w", err)
	}
	_, hasEvents := top["events"]
	_, hasContracts := top["contracts"]
	switch {
	case hasEvents && hasContracts:
		return docScenario, nil
	case hasEvents:
		return docEvents, nil
	case hasContracts:
		return docContracts, nil
	}
	return "", errors.New(`no "events" or "contracts" key at top level`)
}

// issuesOf flattens the errors returned by the source loaders.
func issuesOf(err error) []Issue {
	// Loaders may wrap the joined error with context.
	for e := err; e != nil; e = errors.Unwrap(e) {
		joined, ok := e.(interface{ Unwrap() []error })
		if !ok {
			continue
		}
		var issues []Issue
		for _, inner := range joined.Unwrap() {
			issues = append(issues, issuesOf(inner)...)
		}
		return issues
	}

	var ve source.ValidationError
	if errors.As(err, &ve) {
		return []Issue{{Code: ve.Code, Field: ve.Field, Message: ve.Message, Line: ve.Line}}
	}
	var se *source.SchemaError
	if errors.As(err, &se) {
		is := Issue{Code: source.ErrSchema, Field: se.Field, Message: se.Message}
		if se.Pos.IsValid() {
			is.Line = se.Pos.Line()
		}
		return []Issue{is}
	}
	return []Issue{{Code: ErrCodeInvalidInput, Message: err.Error()}}
}
