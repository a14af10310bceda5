package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	projectP = "0x1111111111111111111111111111111111111111"
	donorD   = "0xdddddddddddddddddddddddddddddddddddddddd"
	donorE   = "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"
)

const contractsYAML = `contracts:
  - address: "0x1111111111111111111111111111111111111111"
    beneficiary: "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
    goal: 1000
    deadline: "2030-01-01T00:00:00Z"
`

// eventsYAML applies 4 events and refuses the re-delivered d-1.
const eventsYAML = `events:
  - kind: milestone_provisioned
    event_key: provision-0
    source: "0x1111111111111111111111111111111111111111"
    milestone_index: 0
    description: Land survey
    amount: 400
  - kind: donation
    event_key: d-1
    source: "0x1111111111111111111111111111111111111111"
    donor: "0xDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDD"
    amount: 100
    timestamp: 1700000000
  - kind: donation
    event_key: d-1
    source: "0x1111111111111111111111111111111111111111"
    donor: "0xdddddddddddddddddddddddddddddddddddddddd"
    amount: 100
    timestamp: 1700000000
  - kind: donation
    event_key: e-1
    source: "0x1111111111111111111111111111111111111111"
    donor: "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"
    amount: "50"
    timestamp: "2023-11-14T22:15:00Z"
  - kind: milestone_settled
    event_key: settle-0
    source: "0x1111111111111111111111111111111111111111"
    milestone_index: 0
`

// workspace is a temp dir with a contracts file, an events file and a
// database path.
type workspace struct {
	dir       string
	db        string
	contracts string
	events    string
}

func newWorkspace(t *testing.T) *workspace {
	t.Helper()
	dir := t.TempDir()
	ws := &workspace{
		dir:       dir,
		db:        filepath.Join(dir, "tally.db"),
		contracts: writeFile(t, dir, "contracts.yaml", contractsYAML),
		events:    writeFile(t, dir, "events.yaml", eventsYAML),
	}
	return ws
}

// args prefixes the global flags pointing at the workspace.
func (ws *workspace) args(args ...string) []string {
	return append([]string{"--db", ws.db, "--contracts", ws.contracts}, args...)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return executeContext(t, context.Background(), args...)
}

func executeContext(t *testing.T, ctx context.Context, args ...string) (string, string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}
