package harness

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tally/internal/aggregate"
	"github.com/roach88/tally/internal/ir"
)

const (
	projectP    = "0x1111111111111111111111111111111111111111"
	donorD      = "0xdddddddddddddddddddddddddddddddddddddddd"
	beneficiary = "0x9999999999999999999999999999999999999999"
)

func TestLoadScenario(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/duplicate_applied.yaml")
	require.NoError(t, err)

	assert.Equal(t, "duplicate_applied", s.Name)
	assert.Equal(t, aggregate.PolicyApplyDuplicates, s.policy)
	require.Len(t, s.LedgerEvents(), 2)
	assert.Equal(t, "same", s.LedgerEvents()[0].Key)

	terms, ok := s.contracts[ir.MustAddress(projectP)]
	require.True(t, ok)
	assert.Equal(t, "1000", terms.GoalAmount.String())
}

func TestLoadScenarios(t *testing.T) {
	scenarios, err := LoadScenarios("testdata/scenarios")
	require.NoError(t, err)

	names := make([]string, len(scenarios))
	for i, s := range scenarios {
		names[i] = s.Name
	}
	assert.IsIncreasing(t, names, "scenarios load in file name order")
	assert.Contains(t, names, "donation_totals")
}

func TestLoadScenariosEmptyDir(t *testing.T) {
	_, err := LoadScenarios(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no scenario files")
}

func TestLoadScenarioInvalidRejection(t *testing.T) {
	_, err := LoadScenario("testdata/invalid/bad_rejection.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event 4 out of range")
}

func TestParseScenarioValidation(t *testing.T) {
	event := `  - {kind: milestone_settled, event_key: s, source: "` + projectP + `", milestone_index: 0}` + "\n"

	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "missing name",
			doc:  "description: d\nevents:\n" + event + "assertions:\n  - type: invariants\n",
			want: "name is required",
		},
		{
			name: "missing description",
			doc:  "name: n\nevents:\n" + event + "assertions:\n  - type: invariants\n",
			want: "description is required",
		},
		{
			name: "no events",
			doc:  "name: n\ndescription: d\nevents: []\nassertions:\n  - type: invariants\n",
			want: "events list is required",
		},
		{
			name: "no assertions",
			doc:  "name: n\ndescription: d\nevents:\n" + event,
			want: "assertions list is required",
		},
		{
			name: "unknown top-level field",
			doc:  "name: n\ndescription: d\nflow: []\nevents:\n" + event + "assertions:\n  - type: invariants\n",
			want: "failed to parse YAML",
		},
		{
			name: "unknown assertion type",
			doc:  "name: n\ndescription: d\nevents:\n" + event + "assertions:\n  - type: trace_order\n",
			want: `unknown assertion type "trace_order"`,
		},
		{
			name: "project assertion without expect",
			doc:  "name: n\ndescription: d\nevents:\n" + event + "assertions:\n  - {type: project, address: \"" + projectP + "\"}\n",
			want: "expect or absent is required",
		},
		{
			name: "milestone assertion without index",
			doc:  "name: n\ndescription: d\nevents:\n" + event + "assertions:\n  - {type: milestone, address: \"" + projectP + "\", absent: true}\n",
			want: "index is required",
		},
		{
			name: "event_count without count",
			doc:  "name: n\ndescription: d\nevents:\n" + event + "assertions:\n  - type: event_count\n",
			want: "non-negative count",
		},
		{
			name: "bad duplicate policy",
			doc:  "name: n\ndescription: d\nduplicates: sometimes\nevents:\n" + event + "assertions:\n  - type: invariants\n",
			want: "sometimes",
		},
		{
			name: "rejection listed twice",
			doc: "name: n\ndescription: d\nevents:\n" + event +
				"rejections:\n  - {event: 0, code: X}\n  - {event: 0, code: Y}\nassertions:\n  - type: invariants\n",
			want: "listed twice",
		},
		{
			name: "event fails schema",
			doc:  "name: n\ndescription: d\nevents:\n  - {kind: donation, event_key: k}\nassertions:\n  - type: invariants\n",
			want: "invalid events",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario("s.yaml", []byte(tt.doc))
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.want), "got %v", err)
		})
	}
}
