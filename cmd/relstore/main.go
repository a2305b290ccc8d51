// Command relstore runs SQL against relstore databases, backs them up and
// restores them, and runs store scenarios.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/relstore/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
