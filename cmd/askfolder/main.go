// Package main provides the entry point for the askfolder CLI.
package main

import (
	"os"

	"github.com/askfolder/askfolder/cmd/askfolder/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
