package cli

import (
	"github.com/roach88/tally/internal/aggregate"
	"github.com/roach88/tally/internal/registry"
	"github.com/roach88/tally/internal/source"
	"github.com/roach88/tally/internal/store"
)

// openStore opens the configured database, creating it if needed.
func openStore(opts *RootOptions) (*store.Store, error) {
	st, err := store.Open(opts.Config.DatabasePath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	opts.Logger.Debug("database ready", "path", opts.Config.DatabasePath)
	return st, nil
}

// newAggregator loads the contract terms file and builds an aggregator
// with the configured duplicate policy.
func newAggregator(opts *RootOptions, aggOpts ...aggregate.Option) (*aggregate.Aggregator, error) {
	contracts, err := source.LoadContracts(opts.Config.ContractsFile)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load contracts", err)
	}
	policy, err := opts.Config.Policy()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid duplicate policy", err)
	}
	opts.Logger.Debug("contracts loaded",
		"file", opts.Config.ContractsFile,
		"contracts", len(contracts),
		"duplicates", policy)

	all := append([]aggregate.Option{
		aggregate.WithDuplicatePolicy(policy),
		aggregate.WithLogger(opts.Logger),
	}, aggOpts...)
	return aggregate.New(contracts, all...), nil
}

// openRegistry opens the DID registry, on disk when registryDir is set.
func openRegistry(opts *RootOptions) (*registry.Registry, error) {
	regOpts := []registry.Option{registry.WithLogger(opts.Logger)}
	if dir := opts.Config.RegistryDir; dir != "" {
		regOpts = append(regOpts, registry.WithDataDir(dir))
	}
	reg, err := registry.Open(regOpts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open registry", err)
	}
	return reg, nil
}
