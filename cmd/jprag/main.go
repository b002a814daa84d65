// Package main provides the entry point for the jprag CLI.
package main

import (
	"os"

	"github.com/hayakawa-lab/jprag/cmd/jprag/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
