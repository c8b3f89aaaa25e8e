package stack

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunner(t *testing.T) {
	t.Run("Should pass every compose file and the project name", func(t *testing.T) {
		p := &Project{Name: "shelf", Files: []string{"docker-compose.yml", "docker-compose.override.yml"}}
		r := NewRunner(p)
		assert.Equal(t,
			[]string{"compose", "-f", "docker-compose.yml", "-f", "docker-compose.override.yml", "-p", "shelf", "down", "-v"},
			r.Command("down", "-v"))
	})

	t.Run("Should refuse projects without files", func(t *testing.T) {
		r := NewRunner(DefaultProject(DefaultStackOptions()))
		assert.ErrorContains(t, r.Ps(context.Background()), "not loaded from a file")
	})

	t.Run("Should report a failing binary", func(t *testing.T) {
		r := NewRunner(&Project{Name: "shelf", Files: []string{"docker-compose.yml"}, WorkingDir: t.TempDir()})
		r.Binary = "bookshelf-no-such-docker-binary"
		err := r.Up(context.Background(), UpOptions{Detach: true})
		assert.ErrorContains(t, err, "docker compose up -d failed")
	})
}
