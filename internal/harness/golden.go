package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/tally/internal/ir"
)

// GoldenDocument builds the canonical form of a scenario run: the outcome
// of every event and the final derived state.
func GoldenDocument(name string, result *Result) ([]byte, error) {
	outcomes := make([]any, len(result.Outcomes))
	for i, o := range result.Outcomes {
		entry := map[string]any{
			"index": o.Index,
			"key":   o.Key,
			"kind":  string(o.Kind),
			"seq":   o.Seq,
		}
		if o.Code != "" {
			entry["code"] = o.Code
		}
		outcomes[i] = entry
	}

	state := result.State
	state.Sort()
	return ir.MarshalCanonical(map[string]any{
		"scenario": name,
		"outcomes": outcomes,
		"state":    state.CanonicalMap(),
	})
}

// RunWithGolden executes a scenario and compares its outcomes and final
// state against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	doc, err := GoldenDocument(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, doc)
	return nil
}
