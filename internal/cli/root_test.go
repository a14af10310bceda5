package cli

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "tally", cmd.Use)
	assert.Contains(t, cmd.Long, "DID document registry")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"validate"}, {"ingest"}, {"replay"}, {"project"}, {"donor"}, {"milestones"},
		{"did"}, {"did", "set"}, {"did", "get"}, {"did", "list"}, {"serve"}, {"test"},
	}

	for _, path := range commands {
		t.Run(filepath.Join(path...), func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, path[len(path)-1], subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	for _, name := range []string{"config", "db", "contracts", "registry-dir", "duplicates"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestInvalidFormat(t *testing.T) {
	ws := newWorkspace(t)
	_, _, err := execute(t, ws.args("--format", "xml", "replay")...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid format")
}

func TestConfigResolution(t *testing.T) {
	dir := t.TempDir()
	cfgFile := writeFile(t, dir, "tally.yaml", `
databasePath: from-file.db
contractsFile: file-contracts.yaml
duplicatePolicy: apply
logLevel: warn
`)

	t.Run("file values", func(t *testing.T) {
		opts := &RootOptions{Format: "text", ConfigFile: cfgFile}
		cmd := NewRootCommand()
		require.NoError(t, opts.resolve(cmd))
		assert.Equal(t, "from-file.db", opts.Config.DatabasePath)
		assert.Equal(t, "apply", opts.Config.DuplicatePolicy)
		assert.Equal(t, "warn", opts.Config.LogLevel)
		assert.NotNil(t, opts.Logger)
	})

	t.Run("environment beats file", func(t *testing.T) {
		t.Setenv("TALLY_DATABASE_PATH", "from-env.db")
		opts := &RootOptions{Format: "text", ConfigFile: cfgFile}
		require.NoError(t, opts.resolve(NewRootCommand()))
		assert.Equal(t, "from-env.db", opts.Config.DatabasePath)
	})

	t.Run("flags beat environment", func(t *testing.T) {
		t.Setenv("TALLY_DATABASE_PATH", "from-env.db")
		opts := &RootOptions{}
		cmd := newRootCommand(opts)
		require.NoError(t, cmd.ParseFlags([]string{"--db", "from-flag.db", "--duplicates", "reject", "--verbose", "--config", cfgFile}))
		require.NoError(t, opts.resolve(cmd))
		assert.Equal(t, "from-flag.db", opts.Config.DatabasePath)
		assert.Equal(t, "reject", opts.Config.DuplicatePolicy)
		assert.Equal(t, "debug", opts.Config.LogLevel)
	})

	t.Run("invalid policy", func(t *testing.T) {
		opts := &RootOptions{}
		cmd := newRootCommand(opts)
		require.NoError(t, cmd.ParseFlags([]string{"--duplicates", "sometimes"}))
		err := opts.resolve(cmd)
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})

	t.Run("missing file", func(t *testing.T) {
		opts := &RootOptions{Format: "text", ConfigFile: filepath.Join(dir, "nope.yaml")}
		err := opts.resolve(NewRootCommand())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load config")
	})
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad")))

	wrapped := WrapExitError(ExitFailure, "replay failed", errors.New("digest mismatch"))
	assert.Equal(t, "replay failed: digest mismatch", wrapped.Error())
	assert.Equal(t, ExitFailure, GetExitCode(wrapped))
}
