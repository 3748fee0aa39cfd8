// Command simkernel runs daily-step simulations and manages their result
// files.
package main

import (
	"os"

	"github.com/fatih/color"

	"github.com/roach88/simkernel/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
