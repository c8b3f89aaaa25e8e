// Package database connects to PostgreSQL, waits for it to accept
// connections and applies the embedded schema migrations.
package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oarkflow/bookshelf/internal/config"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	// Register the pgx driver for database/sql, which goose requires.
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var gooseMu sync.Mutex

const (
	lockNamespace = "bookshelf"
	lockName      = "migrations"
	lockTimeout   = 45 * time.Second
)

// Connect opens a connection pool for the configured database.
// The pool connects lazily; use WaitForDB to block until the server is up.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	log.Debug("Created connection pool", "host", cfg.Host, "database", cfg.Name, "max_conns", poolCfg.MaxConns)
	return pool, nil
}

// Pinger is anything that can check a database connection
type Pinger interface {
	Ping(ctx context.Context) error
}

// WaitOptions controls how long WaitForDB keeps trying
type WaitOptions struct {
	// Retries is the number of attempts after the first one
	Retries uint64
	// Interval is the delay between attempts, or the base delay when Exponential is set
	Interval time.Duration
	// Exponential doubles the delay after each failed attempt
	Exponential bool
	// MaxInterval caps the delay when Exponential is set
	MaxInterval time.Duration
}

// DefaultWaitOptions returns the options derived from the database config
func DefaultWaitOptions(cfg config.DatabaseConfig) WaitOptions {
	return WaitOptions{
		Retries:     cfg.WaitRetries,
		Interval:    cfg.WaitInterval,
		MaxInterval: 10 * time.Second,
	}
}

func (o WaitOptions) backoff() retry.Backoff {
	interval := o.Interval
	if interval <= 0 {
		interval = time.Second
	}

	var b retry.Backoff
	if o.Exponential {
		b = retry.NewExponential(interval)
		if o.MaxInterval > 0 {
			b = retry.WithCappedDuration(o.MaxInterval, b)
		}
	} else {
		b = retry.NewConstant(interval)
	}
	return retry.WithMaxRetries(o.Retries, b)
}

// WaitForDB pings the database until it answers or the attempts run out
func WaitForDB(ctx context.Context, db Pinger, opts WaitOptions) error {
	log.Info("Waiting for database...")

	attempt := 0
	err := retry.Do(ctx, opts.backoff(), func(ctx context.Context) error {
		attempt++
		if err := db.Ping(ctx); err != nil {
			log.Warn("Database unavailable, waiting...", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("database not available after %d attempts: %w", attempt, err)
	}

	log.Info("Database available!", "attempts", attempt)
	return nil
}

// Migrate applies all pending migrations while holding a Postgres advisory
// lock, so concurrent replicas apply them once.
func Migrate(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()
	if _, err := conn.ExecContext(lockCtx,
		"SELECT pg_advisory_lock(hashtext($1), hashtext($2))", lockNamespace, lockName); err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	defer func() {
		if _, err := conn.ExecContext(context.WithoutCancel(ctx),
			"SELECT pg_advisory_unlock(hashtext($1), hashtext($2))", lockNamespace, lockName); err != nil {
			log.Warn("Failed to release migration lock", "error", err)
		}
	}()

	return RunMigrations(ctx, db)
}

// RunMigrations applies the embedded migrations on an open database
func RunMigrations(ctx context.Context, db *sql.DB) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(gooseLogger{})

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	log.Info("Migrations applied", "version", version)
	return nil
}

// gooseLogger routes goose output through the application logger
type gooseLogger struct{}

func (gooseLogger) Fatalf(format string, v ...interface{}) {
	log.Fatalf(format, v...)
}

func (gooseLogger) Printf(format string, v ...interface{}) {
	log.Debugf(format, v...)
}
