package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios(t *testing.T) {
	scenarios, err := LoadScenarios("testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			result, err := Run(context.Background(), s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Len(t, result.Outcomes, len(s.LedgerEvents()))
		})
	}
}

func TestRunWithGolden(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "donation_totals.yaml"))
	require.NoError(t, err)

	result, err := RunWithGolden(t, s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRunDeterministic(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "milestones.yaml"))
	require.NoError(t, err)

	first, err := Run(context.Background(), s)
	require.NoError(t, err)
	second, err := Run(context.Background(), s)
	require.NoError(t, err)

	a, err := GoldenDocument(s.Name, first)
	require.NoError(t, err)
	b, err := GoldenDocument(s.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRunReportsOutcomes(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "duplicate_rejected.yaml"))
	require.NoError(t, err)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 3)

	assert.Equal(t, int64(1), result.Outcomes[0].Seq)
	assert.True(t, result.Outcomes[0].Applied())

	assert.False(t, result.Outcomes[1].Applied())
	assert.Equal(t, "DUPLICATE_EVENT", result.Outcomes[1].Code)

	// Rejected events do not consume a seq.
	assert.Equal(t, int64(2), result.Outcomes[2].Seq)
}

func TestRunFailsOnWrongExpectations(t *testing.T) {
	doc := []byte(`name: wrong
description: "expectations that do not hold"
contracts:
  - {address: "` + projectP + `", beneficiary: "` + beneficiary + `", goal: 10, deadline: 0}
events:
  - {kind: donation, event_key: a, source: "` + projectP + `", donor: "` + donorD + `", amount: 5}
  - {kind: donation, event_key: a, source: "` + projectP + `", donor: "` + donorD + `", amount: 5}
assertions:
  - type: project
    address: "` + projectP + `"
    expect: { raised_amount: 999, state: settled }
  - type: donor
    address: "` + donorD + `"
    absent: true
  - type: event_count
    count: 5
`)
	s, err := ParseScenario("wrong.yaml", doc)
	require.NoError(t, err)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)

	// Unexpected duplicate, project mismatch, donor present, count mismatch.
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "unexpected rejection")
	assert.Contains(t, result.Errors[1], "raised_amount: expected 999, got 5")
	assert.Contains(t, result.Errors[1], "state: expected settled, got fundraising")
	assert.Contains(t, result.Errors[2], "Expected: absent")
	assert.Contains(t, result.Errors[3], "Expected: 5")
}

func TestRunFailsWhenRejectionDoesNotHappen(t *testing.T) {
	doc := []byte(`name: missing_rejection
description: "a rejection that never happens"
contracts:
  - {address: "` + projectP + `", beneficiary: "` + beneficiary + `", goal: 10, deadline: 0}
events:
  - {kind: donation, event_key: a, source: "` + projectP + `", donor: "` + donorD + `", amount: 5}
rejections:
  - {event: 0, code: DUPLICATE_EVENT}
assertions:
  - type: invariants
`)
	s, err := ParseScenario("missing.yaml", doc)
	require.NoError(t, err)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected rejection DUPLICATE_EVENT, but it was applied at seq 1")
}
