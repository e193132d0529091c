// Command tthsd is the CLI front-end for the download engine. See
// internal/cli for the subcommands.
package main

import (
	"fmt"
	"os"

	"tthsd/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
