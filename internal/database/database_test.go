package database

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oarkflow/bookshelf/internal/config"
	"github.com/oarkflow/bookshelf/internal/models"
	"github.com/oarkflow/bookshelf/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

type flakyDB struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyDB) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return errors.New("connection refused")
	}
	return nil
}

func TestWaitForDB(t *testing.T) {
	t.Run("Should retry until the database answers", func(t *testing.T) {
		db := &flakyDB{failures: 3}
		err := WaitForDB(context.Background(), db, WaitOptions{Retries: 5, Interval: time.Millisecond})
		require.NoError(t, err)
		assert.Equal(t, 4, db.calls)
	})

	t.Run("Should give up after the configured retries", func(t *testing.T) {
		db := &flakyDB{failures: 100}
		err := WaitForDB(context.Background(), db, WaitOptions{Retries: 2, Interval: time.Millisecond})
		assert.ErrorContains(t, err, "database not available after 3 attempts")
		assert.ErrorContains(t, err, "connection refused")
		assert.Equal(t, 3, db.calls)
	})

	t.Run("Should back off exponentially", func(t *testing.T) {
		db := &flakyDB{failures: 2}
		opts := WaitOptions{Retries: 3, Interval: time.Millisecond, Exponential: true, MaxInterval: 2 * time.Millisecond}
		require.NoError(t, WaitForDB(context.Background(), db, opts))
		assert.Equal(t, 3, db.calls)
	})

	t.Run("Should stop when the context is canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := WaitForDB(ctx, &flakyDB{failures: 100}, WaitOptions{Retries: 10, Interval: time.Second})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestDefaultWaitOptions(t *testing.T) {
	t.Run("Should take retries and interval from config", func(t *testing.T) {
		cfg := config.Default().Database
		opts := DefaultWaitOptions(cfg)
		assert.Equal(t, cfg.WaitRetries, opts.Retries)
		assert.Equal(t, cfg.WaitInterval, opts.Interval)
		assert.False(t, opts.Exponential)
	})
}

func TestConnect(t *testing.T) {
	t.Run("Should apply the pool size", func(t *testing.T) {
		cfg := config.Default().Database
		cfg.MaxConns = 3
		pool, err := Connect(context.Background(), cfg)
		require.NoError(t, err)
		defer pool.Close()
		assert.Equal(t, int32(3), pool.Config().MaxConns)
	})
}

func startPostgres(ctx context.Context, t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctr, err := postgres.Run(ctx,
		"postgres:13-alpine",
		postgres.WithDatabase("devdb"),
		postgres.WithUsername("devuser"),
		postgres.WithPassword("changeme"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestMigrate(t *testing.T) {
	ctx := context.Background()
	dsn := startPostgres(ctx, t)

	t.Run("Should apply migrations once from concurrent runners", func(t *testing.T) {
		const runners = 3
		errs := make([]error, runners)
		var wg sync.WaitGroup
		for i := range runners {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				errs[idx] = Migrate(ctx, dsn)
			}(i)
		}
		wg.Wait()
		for i, err := range errs {
			assert.NoError(t, err, "runner %d", i)
		}

		pool, err := pgxpool.New(ctx, dsn)
		require.NoError(t, err)
		defer pool.Close()

		for _, table := range []string{"users", "tokens", "books"} {
			var exists bool
			err := pool.QueryRow(ctx,
				"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)", table).Scan(&exists)
			require.NoError(t, err)
			assert.True(t, exists, "table %s should exist", table)
		}
	})

	t.Run("Should serve the store against the migrated schema", func(t *testing.T) {
		require.NoError(t, Migrate(ctx, dsn))
		pool, err := pgxpool.New(ctx, dsn)
		require.NoError(t, err)
		s := store.NewPostgresStore(pool)
		defer s.Close()

		owner := &models.User{Email: "owner@example.com", Name: "Owner", IsActive: true}
		require.NoError(t, s.CreateUser(ctx, owner))
		assert.ErrorIs(t, s.CreateUser(ctx, &models.User{Email: "OWNER@example.com"}), store.ErrAlreadyExists)

		token, err := s.GetOrCreateToken(ctx, owner.ID, func() (string, error) {
			return "0123456789abcdef0123456789abcdef01234567", nil
		})
		require.NoError(t, err)
		byToken, err := s.GetUserByToken(ctx, token.Key)
		require.NoError(t, err)
		assert.Equal(t, owner.ID, byToken.ID)

		first := &models.Book{UserID: owner.ID, Title: "First", Author: "A", ReleaseDate: models.NewDate(2020, 1, 2), Genre: "G", Description: "D"}
		second := &models.Book{UserID: owner.ID, Title: "Second", Author: "A", ReleaseDate: models.NewDate(2021, 3, 4), Genre: "G", Description: "D"}
		require.NoError(t, s.CreateBook(ctx, first))
		require.NoError(t, s.CreateBook(ctx, second))

		books, err := s.ListBooks(ctx, owner.ID)
		require.NoError(t, err)
		require.Len(t, books, 2)
		assert.Equal(t, second.ID, books[0].ID)
		assert.Equal(t, "2021-03-04", books[0].ReleaseDate.String())

		_, err = s.GetBook(ctx, owner.ID+1, first.ID)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}
