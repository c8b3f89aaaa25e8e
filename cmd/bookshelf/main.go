/*
Package main provides the CLI entry point for bookshelf.
*/
package main

import (
	"os"

	"github.com/oarkflow/bookshelf/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
