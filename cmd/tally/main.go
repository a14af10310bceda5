// Command tally indexes donation ledger events and serves the derived state
// and the DID document registry.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/tally/internal/cli"
	"github.com/roach88/tally/internal/ir"
)

func main() {
	root := cli.NewRootCommand()
	root.Version = ir.Version

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
