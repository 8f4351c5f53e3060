// Command anchorsync is the CLI for the anchor-record submission queue.
//
// The ledger client is an external collaborator injected by the host
// application; this standalone build manages the queue offline and
// reports a wiring error for commands that would submit.
package main

import (
	"fmt"
	"os"

	"github.com/s4ledger/anchorsync/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand(nil)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
