package harness

import "github.com/roach88/tally/internal/ir"

// Outcome records what happened to one scenario event.
type Outcome struct {
	Index int          `json:"index"`
	Key   string       `json:"key"`
	Kind  ir.EventKind `json:"kind"`

	// Seq is the log position of an applied event; 0 when rejected.
	Seq int64 `json:"seq"`

	// Code is the aggregator error code of a rejected event.
	Code string `json:"code,omitempty"`
}

// Applied reports whether the event made it into the log.
func (o Outcome) Applied() bool {
	return o.Seq > 0
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true if every rejection and assertion matched.
	Pass bool `json:"pass"`

	// Outcomes has one entry per scenario event, in delivery order.
	Outcomes []Outcome `json:"outcomes"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is the derived state after the last event.
	State ir.Snapshot `json:"state"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Outcomes: []Outcome{},
		Errors:   []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddOutcome appends the outcome of the next event.
func (r *Result) AddOutcome(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
}
