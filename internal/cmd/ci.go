package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/oarkflow/bookshelf/internal/cicd"
)

var ciOpts = cicd.DefaultOptions()

var (
	ciPlatform string
	ciOutput   string
)

var stackCICmd = &cobra.Command{
	Use:     "ci",
	Aliases: []string{"cicd"},
	Short:   "Generate a CI pipeline for the stack",
	Long: `Generate a CI pipeline that starts a database service matching the
compose stack, checks the compose document, applies migrations and runs the
tests.

Supported platforms:
  - github    GitHub Actions
  - gitlab    GitLab CI

Examples:
  bookshelf stack ci
  bookshelf stack ci --platform gitlab --docker
  bookshelf stack ci --go-version 1.24 -o .
`,
	Args: cobra.NoArgs,
	RunE: runStackCI,
}

func init() {
	f := stackCICmd.Flags()
	f.StringVar(&ciPlatform, "platform", string(cicd.PlatformGitHubActions), "CI platform (github, gitlab)")
	f.StringVarP(&ciOutput, "output", "o", ".", "output directory")
	f.StringVar(&ciOpts.GoVersion, "go-version", ciOpts.GoVersion, "Go version")
	f.StringVar(&ciOpts.Branch, "branch", ciOpts.Branch, "main branch name")
	f.StringVar(&ciOpts.CheckCommand, "check-command", ciOpts.CheckCommand, "compose check command")
	f.StringVar(&ciOpts.TestCommand, "test-command", ciOpts.TestCommand, "test command")
	f.BoolVar(&ciOpts.DockerEnabled, "docker", false, "build the application image")
	f.StringVar(&ciOpts.DockerImage, "docker-image", ciOpts.DockerImage, "application image name")

	stackCmd.AddCommand(stackCICmd)
}

func runStackCI(cmd *cobra.Command, args []string) error {
	opts := ciOpts
	opts.Platform = cicd.Platform(strings.ToLower(ciPlatform))

	// The database service is taken from the compose file when there is one.
	if files := composeFiles(); fileExists(files[0]) {
		p, err := loadProject()
		if err != nil {
			return err
		}
		opts = cicd.FromProject(p, opts)
	} else {
		log.Warn("No compose file found, using default database settings", "path", files[0])
	}

	path, err := cicd.NewGenerator(opts, afero.NewOsFs()).Generate(ciOutput)
	if err != nil {
		return fmt.Errorf("failed to generate %s pipeline: %w", opts.Platform, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Generated %s\n", path)
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
