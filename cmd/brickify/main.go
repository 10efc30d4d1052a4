// Package main is the entry point for the brickify application.
package main

import (
	"os"

	"github.com/jmylchreest/brickify/cmd/brickify/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
