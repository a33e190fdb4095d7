// Package main provides the entry point for the notemesh CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/notemesh/cmd/notemesh/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
