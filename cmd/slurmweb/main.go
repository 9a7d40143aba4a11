package main

import (
	"fmt"
	"os"

	"github.com/slurm-web/console/pkg/cli"
)

// Main entry point for `slurmweb` app
func main() {
	// Create a new app
	slurmweb, err := cli.NewSlurmweb()
	if err != nil {
		panic("Failed to create an instance of slurmweb App")
	}

	// Main entrypoint of the app
	if err := slurmweb.Main(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
