package cmd

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/oarkflow/bookshelf/internal/schema"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "JSON Schema utilities",
	Long: `Generate and validate the JSON Schema of the compose document.

The schema covers the subset of the compose format the stack uses:
services with build, image, ports, volumes, command, environment,
depends_on, restart and healthcheck, and top-level named volumes.`,
}

var schemaGenerateCmd = &cobra.Command{
	Use:   "generate [output]",
	Short: "Generate JSON Schema",
	Long: `Generate the JSON Schema of the compose document.

If no output file is specified, the schema is written to stdout.

Examples:
  bookshelf stack schema generate
  bookshelf stack schema generate compose.schema.json
`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			if err := schema.WriteSchema(args[0]); err != nil {
				return fmt.Errorf("failed to write schema: %w", err)
			}
			log.Info("Schema written", "path", args[0])
			return nil
		}

		data, err := schema.MarshalSchema()
		if err != nil {
			return fmt.Errorf("failed to marshal schema: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var schemaValidateCmd = &cobra.Command{
	Use:   "validate [file...]",
	Short: "Validate compose files against the schema",
	Long: `Validate compose files against the JSON Schema only. Use
"bookshelf stack check" to also check references and settings.

Files are taken in merge order: the first must be a complete document, the
rest are overrides and may omit services.

Examples:
  bookshelf stack schema validate
  bookshelf stack schema validate docker-compose.yml docker-compose.override.yml
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		files := args
		if len(files) == 0 {
			files = composeFiles()
		}

		out := cmd.OutOrStdout()
		invalid := 0
		for i, result := range schema.ValidateComposeFiles(files) {
			file := files[i]
			if result.Valid {
				log.Info("Compose file is valid", "path", file)
				continue
			}
			invalid++
			fmt.Fprintf(out, "\n%s: validation failed with %d error(s):\n\n", file, len(result.Errors))
			for i, err := range result.Errors {
				fmt.Fprintf(out, "  %d. %s\n", i+1, err.Error())
			}
		}
		if invalid > 0 {
			return fmt.Errorf("%d of %d compose file(s) are invalid", invalid, len(files))
		}

		fmt.Fprintf(out, "✓ %d compose file(s) match the schema\n", len(files))
		return nil
	},
}

func init() {
	schemaCmd.AddCommand(schemaGenerateCmd)
	schemaCmd.AddCommand(schemaValidateCmd)
	stackCmd.AddCommand(schemaCmd)
}
