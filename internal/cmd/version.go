package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oarkflow/bookshelf"
)

// versionCmd shows version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "bookshelf %s\n", bookshelf.Version)
		if bookshelf.GitCommit != "" {
			fmt.Fprintf(out, "  Commit: %s\n", bookshelf.GitCommit)
		}
		if bookshelf.BuildDate != "" {
			fmt.Fprintf(out, "  Built:  %s\n", bookshelf.BuildDate)
		}
	},
}
