/*
Package cmd provides the CLI commands for bookshelf.
*/
package cmd

import (
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	verbose bool
	debug   bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bookshelf",
	Short: "Book catalogue service and its development stack",
	Long: `bookshelf runs the book catalogue API and manages the compose
stack it is developed in: the application container and its PostgreSQL
database.

Example:
  bookshelf stack init          # Write docker-compose.yml
  bookshelf stack check         # Validate the compose document
  bookshelf stack up            # Start the stack with docker compose
  bookshelf wait-for-db         # Block until PostgreSQL accepts connections
  bookshelf migrate             # Apply database migrations
  bookshelf serve               # Start the HTTP API`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug output")

	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if debug {
		log.SetLevel(log.DebugLevel)
	} else if verbose {
		log.SetLevel(log.InfoLevel)
	} else {
		log.SetLevel(log.WarnLevel)
	}
}
