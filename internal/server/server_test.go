package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/oarkflow/bookshelf/internal/config"
	"github.com/oarkflow/bookshelf/internal/store"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type downStore struct {
	*store.MemoryStore
}

func (downStore) Ping(context.Context) error {
	return errors.New("connection refused")
}

func get(t *testing.T, srv *Server, path string) (*http.Response, string) {
	t.Helper()
	resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, path, nil), -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestHealth(t *testing.T) {
	t.Run("Should report healthy with the version", func(t *testing.T) {
		srv := New(config.Default(), store.NewMemoryStore(), afero.NewMemMapFs(), "1.2.3")
		resp, body := get(t, srv, "/health")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `{"status":"healthy","version":"1.2.3"}`, body)
		assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	})

	t.Run("Should report unhealthy when the database is down", func(t *testing.T) {
		srv := New(config.Default(), downStore{store.NewMemoryStore()}, afero.NewMemMapFs(), "dev")
		resp, body := get(t, srv, "/health")
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Contains(t, body, "unhealthy")
	})
}

func TestFiles(t *testing.T) {
	cfg := config.Default()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/vol/web/static/css/site.css", []byte("body{}"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/vol/web/media/uploads/book/cover.png", []byte("png"), 0o644))
	srv := New(cfg, store.NewMemoryStore(), fs, "dev")

	t.Run("Should serve static files", func(t *testing.T) {
		resp, body := get(t, srv, "/static/css/site.css")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "body{}", body)
	})

	t.Run("Should serve uploaded media", func(t *testing.T) {
		resp, body := get(t, srv, "/media/uploads/book/cover.png")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "png", body)
	})

	t.Run("Should not find missing files", func(t *testing.T) {
		resp, _ := get(t, srv, "/media/uploads/book/missing.png")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestAPIMounted(t *testing.T) {
	t.Run("Should protect the book API", func(t *testing.T) {
		srv := New(config.Default(), store.NewMemoryStore(), afero.NewMemMapFs(), "dev")
		resp, body := get(t, srv, "/api/book/books/")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Contains(t, body, "Authentication credentials were not provided.")
	})
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestRun(t *testing.T) {
	t.Run("Should serve until the context is canceled", func(t *testing.T) {
		srv := New(config.Default(), store.NewMemoryStore(), afero.NewMemMapFs(), "dev")
		addr := freeAddr(t)
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan error, 1)
		go func() { done <- srv.Run(ctx, addr) }()

		require.Eventually(t, func() bool {
			resp, err := http.Get("http://" + addr + "/health")
			if err != nil {
				return false
			}
			resp.Body.Close()
			return resp.StatusCode == http.StatusOK
		}, 5*time.Second, 20*time.Millisecond)

		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Fatal("server did not shut down")
		}
	})
}
