package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/ryanuber/columnize"
	"github.com/spf13/cobra"

	"github.com/oarkflow/bookshelf/internal/schema"
	"github.com/oarkflow/bookshelf/internal/stack"
)

var (
	stackDir   string
	stackFiles []string

	initOpts  = stack.DefaultStackOptions()
	initForce bool

	checkRequire    []string
	checkSkipSchema bool

	orderLevels bool

	exportFormat string
	exportOutput string
	exportOpts   stack.KubernetesOptions

	upBuild     bool
	upDetach    bool
	upWait      bool
	downVolumes bool
)

var stackCmd = &cobra.Command{
	Use:   "stack",
	Short: "Work with the compose development stack",
	Long: `Generate, validate, order, export and run the compose document that
declares the application and its database.

By default docker-compose.yml in the project directory is used, merged with
docker-compose.override.yml when that file exists.`,
}

var stackInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default compose document",
	Long: `Write the two-service development stack: the application built from
the repository on port 8000 and a PostgreSQL database with a named data
volume.

Examples:
  bookshelf stack init
  bookshelf stack init --db-image postgres:16-alpine --healthcheck
  bookshelf stack init --host-port 8080 --force`,
	Args: cobra.NoArgs,
	RunE: runStackInit,
}

var stackCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the compose document",
	Long: `Validate the compose document against the JSON schema, then check that
every dependency and volume reference resolves, host ports are unique and the
database settings are present and consistent.

Examples:
  bookshelf stack check
  bookshelf stack check -f docker-compose.yml -f docker-compose.ci.yml
  bookshelf stack check --require app=SECRET_KEY`,
	Args: cobra.NoArgs,
	RunE: runStackCheck,
}

var stackOrderCmd = &cobra.Command{
	Use:   "order",
	Short: "Print the service start order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if orderLevels {
			levels, err := stack.StartLevels(p)
			if err != nil {
				return err
			}
			for i, level := range levels {
				fmt.Fprintf(out, "%d: %s\n", i+1, strings.Join(level, " "))
			}
			return nil
		}

		order, err := stack.StartOrder(p)
		if err != nil {
			return err
		}
		for _, name := range order {
			fmt.Fprintln(out, name)
		}
		return nil
	},
}

var stackLsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"services"},
	Short:   "List the services of the stack",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject()
		if err != nil {
			return err
		}
		order, err := stack.StartOrder(p)
		if err != nil {
			return err
		}

		rows := []string{"SERVICE | IMAGE | PORTS | DEPENDS ON"}
		for _, name := range order {
			svc := p.Services[name]
			ports := make([]string, len(svc.Ports))
			for i, port := range svc.Ports {
				ports[i] = port.String()
			}
			rows = append(rows, strings.Join([]string{
				name,
				orDash(svc.Image),
				orDash(strings.Join(ports, ",")),
				orDash(strings.Join(svc.DependsOn.Names(), ",")),
			}, " | "))
		}
		fmt.Fprintln(cmd.OutOrStdout(), columnize.SimpleFormat(rows))
		return nil
	},
}

var stackRenderCmd = &cobra.Command{
	Use:   "render",
	Short: "Print the merged and interpolated compose document",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject()
		if err != nil {
			return err
		}
		data, err := stack.Marshal(p)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var stackExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Convert the stack to another orchestrator",
	Long: `Convert the compose document to Kubernetes manifests: a
PersistentVolumeClaim per named volume and a Deployment plus Service per
compose service.

Examples:
  bookshelf stack export
  bookshelf stack export --namespace dev --storage-size 5Gi -o k8s.yaml`,
	Args: cobra.NoArgs,
	RunE: runStackExport,
}

var stackUpCmd = &cobra.Command{
	Use:   "up [service...]",
	Short: "Start the stack with docker compose",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newRunner(cmd)
		if err != nil {
			return err
		}
		return r.Up(cmd.Context(), stack.UpOptions{
			Build:    upBuild,
			Detach:   upDetach,
			Wait:     upWait,
			Services: args,
		})
	},
}

var stackDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Stop the stack",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newRunner(cmd)
		if err != nil {
			return err
		}
		return r.Down(cmd.Context(), downVolumes)
	},
}

var stackPsCmd = &cobra.Command{
	Use:   "ps",
	Short: "List the stack containers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newRunner(cmd)
		if err != nil {
			return err
		}
		return r.Ps(cmd.Context())
	},
}

func init() {
	stackCmd.PersistentFlags().StringVarP(&stackDir, "dir", "d", ".", "project directory")
	stackCmd.PersistentFlags().StringSliceVarP(&stackFiles, "file", "f", nil, "compose files, later files override earlier ones")

	f := stackInitCmd.Flags()
	f.StringVar(&initOpts.ProjectName, "name", initOpts.ProjectName, "compose project name")
	f.StringVar(&initOpts.AppService, "app-service", initOpts.AppService, "application service name")
	f.StringVar(&initOpts.DBService, "db-service", initOpts.DBService, "database service name")
	f.StringVar(&initOpts.AppImage, "app-image", initOpts.AppImage, "application image tag")
	f.StringVar(&initOpts.DBImage, "db-image", initOpts.DBImage, "database image")
	f.StringVar(&initOpts.BuildDir, "build", initOpts.BuildDir, "application build context")
	f.StringVar(&initOpts.SourceDir, "source", initOpts.SourceDir, "source directory bind-mounted into the application")
	f.Uint32Var(&initOpts.HostPort, "host-port", initOpts.HostPort, "published host port")
	f.Uint32Var(&initOpts.AppPort, "app-port", initOpts.AppPort, "application container port")
	f.StringVar(&initOpts.DBName, "db-name", initOpts.DBName, "database name")
	f.StringVar(&initOpts.DBUser, "db-user", initOpts.DBUser, "database user")
	f.StringVar(&initOpts.DBPassword, "db-password", initOpts.DBPassword, "database password")
	f.StringVar(&initOpts.DataVolume, "data-volume", initOpts.DataVolume, "named volume for database data")
	f.StringVar(&initOpts.StaticVol, "static-volume", initOpts.StaticVol, "named volume for static and media files")
	f.StringVar(&initOpts.StaticDir, "static-dir", initOpts.StaticDir, "mount point of the static volume")
	f.BoolVar(&initOpts.Debug, "app-debug", initOpts.Debug, "run the application in debug mode")
	f.BoolVar(&initOpts.Healthcheck, "healthcheck", initOpts.Healthcheck, "add healthchecks and wait for a healthy database")
	f.BoolVar(&initForce, "force", false, "overwrite an existing compose file")

	stackCheckCmd.Flags().StringArrayVar(&checkRequire, "require", nil, "required environment variable as service=KEY")
	stackCheckCmd.Flags().BoolVar(&checkSkipSchema, "skip-schema", false, "skip JSON schema validation")

	stackOrderCmd.Flags().BoolVar(&orderLevels, "levels", false, "group services that can start together")

	stackExportCmd.Flags().StringVar(&exportFormat, "format", "kubernetes", "output format (kubernetes)")
	stackExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default stdout)")
	stackExportCmd.Flags().StringVarP(&exportOpts.Namespace, "namespace", "n", "", "Kubernetes namespace")
	stackExportCmd.Flags().StringVar(&exportOpts.StorageSize, "storage-size", "1Gi", "requested size of each volume claim")
	stackExportCmd.Flags().StringVar(&exportOpts.StorageClass, "storage-class", "", "storage class of the volume claims")
	stackExportCmd.Flags().IntVar(&exportOpts.Replicas, "replicas", 1, "replicas per deployment")

	stackUpCmd.Flags().BoolVar(&upBuild, "build", false, "build images before starting")
	stackUpCmd.Flags().BoolVar(&upDetach, "detach", true, "run containers in the background")
	stackUpCmd.Flags().BoolVar(&upWait, "wait", false, "wait for services to be running or healthy")
	stackDownCmd.Flags().BoolVar(&downVolumes, "volumes", false, "remove named volumes")

	stackCmd.AddCommand(stackInitCmd)
	stackCmd.AddCommand(stackCheckCmd)
	stackCmd.AddCommand(stackOrderCmd)
	stackCmd.AddCommand(stackLsCmd)
	stackCmd.AddCommand(stackRenderCmd)
	stackCmd.AddCommand(stackExportCmd)
	stackCmd.AddCommand(stackUpCmd)
	stackCmd.AddCommand(stackDownCmd)
	stackCmd.AddCommand(stackPsCmd)
	rootCmd.AddCommand(stackCmd)
}

func composeFiles() []string {
	if len(stackFiles) > 0 {
		return stackFiles
	}
	return stack.DefaultFiles(stackDir)
}

func loadProject() (*stack.Project, error) {
	p, err := stack.Load(composeFiles()...)
	if err != nil {
		return nil, fmt.Errorf("failed to load compose file: %w", err)
	}
	log.Debug("Loaded compose project", "files", p.Files, "services", len(p.Services))
	return p, nil
}

func newRunner(cmd *cobra.Command) (*stack.Runner, error) {
	p, err := loadProject()
	if err != nil {
		return nil, err
	}
	r := stack.NewRunner(p)
	r.Stdout = cmd.OutOrStdout()
	r.Stderr = cmd.ErrOrStderr()
	return r, nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func runStackInit(cmd *cobra.Command, args []string) error {
	path := filepath.Join(stackDir, stack.DefaultFile)
	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("%s already exists, use --force to overwrite", path)
	}

	p := stack.DefaultProject(initOpts)
	if err := stack.Validate(p, stack.WithDefaultRequirements()); err != nil {
		return fmt.Errorf("invalid stack options: %w", err)
	}

	data, err := stack.Marshal(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(stackDir, 0755); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s\n", path)
	return nil
}

func runStackCheck(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	files := composeFiles()

	if !checkSkipSchema {
		failed := false
		for i, result := range schema.ValidateComposeFiles(files) {
			file := files[i]
			if result.Valid {
				log.Info("Schema check passed", "file", file)
				continue
			}
			failed = true
			fmt.Fprintf(out, "\n%s failed schema validation with %d error(s):\n\n", file, len(result.Errors))
			for i, e := range result.Errors {
				fmt.Fprintf(out, "  %d. %s\n", i+1, e.Error())
			}
		}
		if failed {
			return fmt.Errorf("compose document does not match the schema")
		}
	}

	p, err := loadProject()
	if err != nil {
		return err
	}

	opts := []stack.ValidateOption{stack.WithDefaultRequirements()}
	for _, req := range checkRequire {
		service, key, ok := strings.Cut(req, "=")
		if !ok || service == "" || key == "" {
			return fmt.Errorf("invalid --require %q, expected service=KEY", req)
		}
		opts = append(opts, stack.WithRequiredEnv(service, key))
	}

	if err := stack.Validate(p, opts...); err != nil {
		var verr *stack.ValidationError
		if errors.As(err, &verr) {
			fmt.Fprintf(out, "\nValidation failed with %d error(s):\n\n", len(verr.Issues))
			for i, issue := range verr.Issues {
				fmt.Fprintf(out, "  %d. %s\n", i+1, issue)
			}
			return fmt.Errorf("compose document is invalid")
		}
		return err
	}

	fmt.Fprintf(out, "✓ %s is valid (%d services, %d volumes)\n",
		strings.Join(p.Files, ", "), len(p.Services), len(p.Volumes))
	return nil
}

func runStackExport(cmd *cobra.Command, args []string) error {
	switch exportFormat {
	case "kubernetes", "k8s":
	default:
		return fmt.Errorf("unsupported export format: %s", exportFormat)
	}

	p, err := loadProject()
	if err != nil {
		return err
	}
	data, err := stack.ExportKubernetes(p, exportOpts)
	if err != nil {
		return err
	}

	if exportOutput == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(exportOutput, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", exportOutput, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s\n", exportOutput)
	return nil
}
