// Package main provides the entry point for the wsearch CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/wsearch/cmd/wsearch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
