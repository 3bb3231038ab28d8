// Package main provides the formflow CLI.
package main

import (
	"os"

	"github.com/leapstack-labs/formflow/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
