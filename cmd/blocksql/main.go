// Package main is the entry point of the blocksql command.
package main

import (
	"os"

	"github.com/leapstack-labs/blocksql/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
