// Package main provides the d1lod binary entry point.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/d1lod/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
