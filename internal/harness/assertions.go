package harness

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/roach88/tally/internal/aggregate"
	"github.com/roach88/tally/internal/engine"
	"github.com/roach88/tally/internal/ir"
	"github.com/roach88/tally/internal/store"
)

// AssertionContext provides what assertions read from.
type AssertionContext struct {
	Ctx        context.Context
	Store      *store.Store
	Aggregator *aggregate.Aggregator
	State      ir.Snapshot
}

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Target   string // Entity the assertion looked at
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s", e.Type)
	if e.Target != "" {
		fmt.Fprintf(&buf, " %s", e.Target)
	}
	fmt.Fprintf(&buf, "\n  Expected: %s\n  Actual: %s", e.Expected, e.Actual)
	return buf.String()
}

// EvaluateAssertions runs every assertion and returns failure messages.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertProject, AssertDonor, AssertContribution, AssertMilestone:
			err = assertEntity(actx.State, a)
		case AssertEventCount:
			err = assertEventCount(actx, a)
		case AssertInvariants:
			err = assertInvariants(actx.State)
		case AssertReplay:
			err = assertReplay(actx)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

// assertEntity finds the entity named by a in the canonical form of the
// snapshot and compares the expected fields against it.
func assertEntity(state ir.Snapshot, a Assertion) error {
	target, collection, match, err := entitySelector(a)
	if err != nil {
		return err
	}

	canonical := state.CanonicalMap()
	var found map[string]any
	for _, item := range canonical[collection].([]any) {
		entity := item.(map[string]any)
		if match(entity) {
			found = entity
			break
		}
	}

	if a.Absent {
		if found != nil {
			return &AssertionError{Type: a.Type, Target: target, Expected: "absent", Actual: "present"}
		}
		return nil
	}
	if found == nil {
		return &AssertionError{Type: a.Type, Target: target, Expected: "present", Actual: "absent"}
	}

	var mismatches []string
	for _, field := range sortedKeys(a.Expect) {
		actual, ok := found[field]
		if !ok {
			mismatches = append(mismatches, fmt.Sprintf("%s: no such field", field))
			continue
		}
		if !valuesEqual(a.Expect[field], actual) {
			mismatches = append(mismatches, fmt.Sprintf("%s: expected %s, got %s",
				field, render(a.Expect[field]), render(actual)))
		}
	}
	if len(mismatches) > 0 {
		return &AssertionError{
			Type:     a.Type,
			Target:   target,
			Expected: render(a.Expect),
			Actual:   strings.Join(mismatches, "; "),
		}
	}
	return nil
}

func entitySelector(a Assertion) (target, collection string, match func(map[string]any) bool, err error) {
	switch a.Type {
	case AssertProject, AssertDonor:
		addr, err := ir.ParseAddress(a.Address)
		if err != nil {
			return "", "", nil, err
		}
		collection = "projects"
		if a.Type == AssertDonor {
			collection = "donors"
		}
		return string(addr), collection, func(e map[string]any) bool {
			return e["address"] == string(addr)
		}, nil

	case AssertMilestone:
		addr, err := ir.ParseAddress(a.Address)
		if err != nil {
			return "", "", nil, err
		}
		key := ir.MilestoneKey{Project: addr, Index: *a.Index}
		return key.String(), "milestones", func(e map[string]any) bool {
			return e["project"] == string(addr) && e["index"] == int64(*a.Index)
		}, nil

	case AssertContribution:
		key := a.EventKey
		if key == "" {
			key, err = ir.EventKey(a.TxHash, *a.LogIndex)
			if err != nil {
				return "", "", nil, err
			}
		}
		return key, "contributions", func(e map[string]any) bool {
			return e["event_key"] == key
		}, nil
	}
	return "", "", nil, fmt.Errorf("%s is not an entity assertion", a.Type)
}

func assertEventCount(actx *AssertionContext, a Assertion) error {
	n, err := actx.Store.EventCount(actx.Ctx)
	if err != nil {
		return err
	}
	if n != int64(*a.Count) {
		return &AssertionError{
			Type:     a.Type,
			Expected: strconv.Itoa(*a.Count),
			Actual:   strconv.FormatInt(n, 10),
		}
	}
	return nil
}

func assertInvariants(state ir.Snapshot) error {
	if err := aggregate.CheckInvariants(state); err != nil {
		return &AssertionError{Type: AssertInvariants, Expected: "all invariants hold", Actual: err.Error()}
	}
	return nil
}

func assertReplay(actx *AssertionContext) error {
	report, err := engine.Replay(actx.Ctx, actx.Store, actx.Aggregator)
	if err != nil {
		return err
	}
	if !report.Match() {
		actual := fmt.Sprintf("replayed digest %s, stored %s", report.ReplayedDigest, report.StoredDigest)
		if len(report.ApplyErrors) > 0 {
			actual += "; " + strings.Join(report.ApplyErrors, "; ")
		}
		return &AssertionError{Type: AssertReplay, Expected: "replay reproduces stored state", Actual: actual}
	}
	return nil
}

// valuesEqual compares a YAML-decoded expectation with a canonical value.
// Amounts are canonical strings but may be written as YAML integers, and
// addresses compare case-insensitively.
func valuesEqual(expected, actual any) bool {
	switch exp := expected.(type) {
	case []any:
		act, ok := actual.([]any)
		if !ok || len(act) != len(exp) {
			return false
		}
		for i := range exp {
			if !valuesEqual(exp[i], act[i]) {
				return false
			}
		}
		return true
	case nil:
		return actual == nil
	}
	return scalarString(expected) == scalarString(actual)
}

func scalarString(v any) string {
	switch val := v.(type) {
	case string:
		if addr, err := ir.ParseAddress(val); err == nil {
			return string(addr)
		}
		return val
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

func render(v any) string {
	switch val := v.(type) {
	case map[string]any:
		parts := make([]string, 0, len(val))
		for _, k := range sortedKeys(val) {
			parts = append(parts, fmt.Sprintf("%s=%s", k, render(val[k])))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case []any:
		parts := make([]string, len(val))
		for i, e := range val {
			parts[i] = render(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return scalarString(v)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
