package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/gofiber/fiber/v2"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/oarkflow/bookshelf"
	"github.com/oarkflow/bookshelf/internal/auth"
	"github.com/oarkflow/bookshelf/internal/config"
	"github.com/oarkflow/bookshelf/internal/database"
	"github.com/oarkflow/bookshelf/internal/server"
	"github.com/oarkflow/bookshelf/internal/store"
)

var (
	waitRetries     uint64
	waitInterval    time.Duration
	waitExponential bool

	serveAddr   string
	serveMemory bool

	superuserEmail    string
	superuserPassword string

	healthAddr    string
	healthTimeout time.Duration
)

var waitForDBCmd = &cobra.Command{
	Use:   "wait-for-db",
	Short: "Wait until the database accepts connections",
	Long: `Ping PostgreSQL until it answers, waiting between attempts.

Connection settings come from DB_HOST, DB_PORT, DB_NAME, DB_USER and DB_PASS.
The number of attempts and the delay default to DB_WAIT_RETRIES and
DB_WAIT_INTERVAL.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()

		opts := database.DefaultWaitOptions(cfg.Database)
		if cmd.Flags().Changed("retries") {
			opts.Retries = waitRetries
		}
		if cmd.Flags().Changed("interval") {
			opts.Interval = waitInterval
		}
		opts.Exponential = waitExponential

		return database.WaitForDB(ctx, pool, opts)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := database.Migrate(ctx, cfg.Database.DSN()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Migrations applied")
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the book catalogue API.

Static files are served from STATIC_ROOT under /static/ and uploaded images
from MEDIA_ROOT under /media/. The server stops gracefully on SIGINT or
SIGTERM.

Examples:
  bookshelf serve
  bookshelf serve --addr 0.0.0.0:8000
  bookshelf serve --memory      # No database, data is lost on exit`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var createSuperuserCmd = &cobra.Command{
	Use:   "create-superuser",
	Short: "Create a staff account with superuser rights",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return err
		}
		s := store.NewPostgresStore(pool)
		defer s.Close()

		user, err := auth.NewService(s).CreateSuperuser(ctx, superuserEmail, superuserPassword)
		if err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return fmt.Errorf("user %s already exists", superuserEmail)
			}
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Superuser %s created (id %d)\n", user.Email, user.ID)
		return nil
	},
}

var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check that a running server is healthy",
	Long: `Request the health endpoint and exit non-zero unless it answers 200.
The compose healthcheck of the application service runs this command.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		code, body, errs := fiber.Get(healthAddr).Timeout(healthTimeout).Bytes()
		if len(errs) > 0 {
			return fmt.Errorf("health check failed: %w", errors.Join(errs...))
		}
		if code != http.StatusOK {
			return fmt.Errorf("health check failed: status %d: %s", code, body)
		}
		log.Info("Server is healthy", "url", healthAddr)
		return nil
	},
}

func init() {
	waitForDBCmd.Flags().Uint64Var(&waitRetries, "retries", 0, "attempts after the first (default DB_WAIT_RETRIES)")
	waitForDBCmd.Flags().DurationVar(&waitInterval, "interval", 0, "delay between attempts (default DB_WAIT_INTERVAL)")
	waitForDBCmd.Flags().BoolVar(&waitExponential, "exponential", false, "double the delay after each attempt")

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from SERVER_HOST and PORT)")
	serveCmd.Flags().BoolVar(&serveMemory, "memory", false, "keep data in memory instead of PostgreSQL")

	createSuperuserCmd.Flags().StringVar(&superuserEmail, "email", "", "superuser email")
	createSuperuserCmd.Flags().StringVar(&superuserPassword, "password", "", "superuser password")
	_ = createSuperuserCmd.MarkFlagRequired("email")
	_ = createSuperuserCmd.MarkFlagRequired("password")

	healthcheckCmd.Flags().StringVar(&healthAddr, "addr", "http://127.0.0.1:8000/health", "health endpoint URL")
	healthcheckCmd.Flags().DurationVar(&healthTimeout, "timeout", 3*time.Second, "request timeout")

	rootCmd.AddCommand(waitForDBCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(createSuperuserCmd)
	rootCmd.AddCommand(healthcheckCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if !debug && !verbose {
		log.SetLevel(log.InfoLevel)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log.Info("Serving files",
		"static", cfg.Media.StaticRoot,
		"media", cfg.Media.MediaRoot,
		"max_upload", humanize.IBytes(uint64(cfg.Media.MaxUploadSize)))
	for _, dir := range []string{cfg.Media.StaticRoot, cfg.Media.MediaRoot} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr()
	}
	return server.New(cfg, s, afero.NewOsFs(), bookshelf.Version).Run(ctx, addr)
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if serveMemory {
		log.Warn("Using the in-memory store, data is lost on exit")
		return store.NewMemoryStore(), nil
	}
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return store.NewPostgresStore(pool), nil
}
