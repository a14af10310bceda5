package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string

	// Flag overrides for config values. Applied only when the flag is set.
	Database   string
	Contracts  string
	Registry   string
	Duplicates string

	// Config is resolved in PersistentPreRunE: defaults, config file,
	// TALLY_* environment, then the flags above.
	Config *config.Config
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the tally CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tally",
		Short: "tally - donation ledger indexer and identity registry",
		Long: `Fold donation and milestone ledger events into project and donor state,
verify it by replay, and serve it over HTTP together with a DID document registry.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.resolve(cmd)
		},
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.ConfigFile, "config", "", "path to YAML config file")
	flags.StringVar(&opts.Database, "db", "", "path to SQLite database (overrides databasePath)")
	flags.StringVar(&opts.Contracts, "contracts", "", "path to contract terms YAML (overrides contractsFile)")
	flags.StringVar(&opts.Registry, "registry-dir", "", "DID registry data directory (overrides registryDir)")
	flags.StringVar(&opts.Duplicates, "duplicates", "", "duplicate event policy: reject|apply (overrides duplicatePolicy)")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewIngestCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewProjectCommand(opts))
	cmd.AddCommand(NewDonorCommand(opts))
	cmd.AddCommand(NewMilestonesCommand(opts))
	cmd.AddCommand(NewDIDCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// resolve validates global flags, loads the configuration and installs the
// logger. Errors are command errors.
func (o *RootOptions) resolve(cmd *cobra.Command) error {
	if !isValidFormat(o.Format) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", o.Format, ValidFormats))
	}

	cfg, err := config.Load(o.ConfigFile)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.DatabasePath = o.Database
	}
	if flags.Changed("contracts") {
		cfg.ContractsFile = o.Contracts
	}
	if flags.Changed("registry-dir") {
		cfg.RegistryDir = o.Registry
	}
	if flags.Changed("duplicates") {
		cfg.DuplicatePolicy = o.Duplicates
	}
	if o.Verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}

	o.Config = cfg
	o.Logger, err = newLogger(cmd.ErrOrStderr(), cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}
	slog.SetDefault(o.Logger)
	return nil
}

// newLogger builds the stderr text handler used by every command.
func newLogger(w io.Writer, cfg *config.Config) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
