package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/registry"
)

// NewDIDCommand creates the did command group.
func NewDIDCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "did",
		Short: "Manage DID document registrations",
		Long: `Read and write the address to DID document URI registry.

The registry is persisted under registryDir (--registry-dir or
TALLY_REGISTRY_DIR); these commands refuse to run against an in-memory
registry since nothing would be kept.`,
	}

	cmd.AddCommand(newDIDSetCommand(rootOpts))
	cmd.AddCommand(newDIDGetCommand(rootOpts))
	cmd.AddCommand(newDIDListCommand(rootOpts))
	return cmd
}

func newDIDSetCommand(rootOpts *RootOptions) *cobra.Command {
	var caller string

	cmd := &cobra.Command{
		Use:   "set <address> <document-uri>",
		Short: "Create or update the document URI of an address",
		Long: `Create or update the document URI of an address.

Only the address itself may write its entry: --caller must equal <address>.

Exit codes:
  0 - Document stored
  1 - Refused (caller is not the owner, empty URI)
  2 - Command error`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddressArg(args[0])
			if err != nil {
				return err
			}
			callerAddr, err := parseAddressArg(caller)
			if err != nil {
				return err
			}
			reg, err := openPersistentRegistry(rootOpts)
			if err != nil {
				return err
			}
			defer reg.Close()

			f := newFormatter(rootOpts, cmd)
			update, err := reg.UpdateDocument(cmd.Context(), callerAddr, addr, args[1])
			if errors.Is(err, registry.ErrUnauthorized) || errors.Is(err, registry.ErrInvalidDocument) {
				if ferr := f.Error(ErrCodeRejected, err.Error(), nil); ferr != nil {
					return ferr
				}
				return WrapExitError(ExitFailure, "document update refused", err)
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to set document", err)
			}

			doc := update.Document()
			return f.Render(doc, func(w io.Writer) {
				fmt.Fprintf(w, "✓ %s -> %s (revision %d)\n", doc.Address, doc.URI, doc.Revision)
			})
		},
	}

	cmd.Flags().StringVar(&caller, "caller", "", "address the update is made on behalf of (required)")
	_ = cmd.MarkFlagRequired("caller")

	return cmd
}

func newDIDGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "get <address>",
		Short:         "Show the document registered for an address",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddressArg(args[0])
			if err != nil {
				return err
			}
			reg, err := openPersistentRegistry(rootOpts)
			if err != nil {
				return err
			}
			defer reg.Close()

			doc, err := reg.Document(cmd.Context(), addr)
			if errors.Is(err, registry.ErrNotFound) {
				return notFound(rootOpts, cmd, "document for", addr)
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read document", err)
			}
			return newFormatter(rootOpts, cmd).Render(doc, func(w io.Writer) {
				fmt.Fprintf(w, "%s -> %s (revision %d, updated %s)\n",
					doc.Address, doc.URI, doc.Revision, doc.UpdatedAt.Format(time.RFC3339))
			})
		},
	}
}

func newDIDListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List every registered document",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := openPersistentRegistry(rootOpts)
			if err != nil {
				return err
			}
			defer reg.Close()

			docs, err := reg.List(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list documents", err)
			}
			return newFormatter(rootOpts, cmd).Render(docs, func(w io.Writer) {
				if len(docs) == 0 {
					fmt.Fprintln(w, "No documents registered.")
					return
				}
				for _, d := range docs {
					fmt.Fprintf(w, "%s -> %s (revision %d)\n", d.Address, d.URI, d.Revision)
				}
			})
		},
	}
}

func openPersistentRegistry(opts *RootOptions) (*registry.Registry, error) {
	if opts.Config.RegistryDir == "" {
		return nil, NewExitError(ExitCommandError, "registryDir is not set: did commands need a persistent registry")
	}
	return openRegistry(opts)
}
