package stack

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("Should interpolate variables from the environment and .env", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("BOOKSHELF_TEST_TAG", "13-alpine")
		writeFile(t, dir, ".env", "BOOKSHELF_TEST_PASSWORD=fromdotenv\n")
		path := writeFile(t, dir, DefaultFile, `
services:
  db:
    image: postgres:${BOOKSHELF_TEST_TAG}
    environment:
      POSTGRES_PASSWORD: ${BOOKSHELF_TEST_PASSWORD}
      POSTGRES_DB: ${BOOKSHELF_TEST_UNSET:-devdb}
      COST: $$5
`)

		p, err := Load(path)
		require.NoError(t, err)
		db := p.Services["db"]
		assert.Equal(t, "postgres:13-alpine", db.Image)
		assert.Equal(t, "fromdotenv", db.Environment["POSTGRES_PASSWORD"])
		assert.Equal(t, "devdb", db.Environment["POSTGRES_DB"])
		assert.Equal(t, "$5", db.Environment["COST"])
		assert.Equal(t, []string{path}, p.Files)
		assert.NotEmpty(t, p.Name)

		abs, err := filepath.Abs(dir)
		require.NoError(t, err)
		assert.Equal(t, abs, p.WorkingDir)
	})

	t.Run("Should merge override files", func(t *testing.T) {
		dir := t.TempDir()
		base := writeFile(t, dir, DefaultFile, `
name: shelf
services:
  app:
    image: app:1
    command: ["serve"]
    ports: ["8000:8000"]
    volumes:
      - ./app:/app
    environment:
      DEBUG: "1"
      DB_HOST: db
`)
		override := writeFile(t, dir, OverrideFile, `
services:
  app:
    image: app:2
    command: serve --debug
    ports: ["9000:9000", "8000:8000"]
    volumes:
      - ./src:/app
      - cache:/cache
    environment:
      DEBUG: "0"
  worker:
    image: app:2
volumes:
  cache:
`)

		p, err := Load(base, override)
		require.NoError(t, err)
		assert.Equal(t, "shelf", p.Name)
		assert.Equal(t, []string{base, override}, p.Files)
		assert.Equal(t, []string{"app", "worker"}, p.ServiceNames())

		app := p.Services["app"]
		assert.Equal(t, "app:2", app.Image)
		assert.Equal(t, Command{"serve", "--debug"}, app.Command)
		assert.Equal(t, Environment{"DEBUG": "0", "DB_HOST": "db"}, app.Environment)
		assert.Equal(t, []Port{{Published: "8000", Target: 8000}, {Published: "9000", Target: 9000}}, app.Ports)
		assert.Equal(t, []Mount{
			{Type: MountBind, Source: "./src", Target: "/app"},
			{Type: MountVolume, Source: "cache", Target: "/cache"},
		}, app.Volumes)
		assert.Contains(t, p.Volumes, "cache")
	})

	t.Run("Should fail on a missing required variable", func(t *testing.T) {
		dir := t.TempDir()
		path := writeFile(t, dir, DefaultFile, "services:\n  app:\n    image: ${BOOKSHELF_TEST_MISSING:?set the image}\n")
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "set the image")
	})

	t.Run("Should find the override file next to the main file", func(t *testing.T) {
		dir := t.TempDir()
		assert.Equal(t, []string{filepath.Join(dir, DefaultFile)}, DefaultFiles(dir))
		writeFile(t, dir, OverrideFile, "services: {}\n")
		assert.Len(t, DefaultFiles(dir), 2)
	})
}

func TestMarshal(t *testing.T) {
	t.Run("Should render the default project deterministically", func(t *testing.T) {
		p := DefaultProject(DefaultStackOptions())
		first, err := Marshal(p)
		require.NoError(t, err)
		second, err := Marshal(p)
		require.NoError(t, err)
		assert.Equal(t, string(first), string(second))

		out := string(first)
		assert.Contains(t, out, "8000:8000")
		assert.Contains(t, out, "./app:/app")
		assert.Contains(t, out, "dev-db-data:/var/lib/postgresql/data")
		assert.Contains(t, out, "POSTGRES_DB=devdb")
		assert.Contains(t, out, "build: .")
	})

	t.Run("Should parse its own output back", func(t *testing.T) {
		p := DefaultProject(DefaultStackOptions())
		data, err := Marshal(p)
		require.NoError(t, err)

		parsed, err := Parse(data)
		require.NoError(t, err)
		assert.Equal(t, p.Services["app"].Command, parsed.Services["app"].Command)
		assert.Equal(t, p.Services["app"].Environment, parsed.Services["app"].Environment)
		assert.Equal(t, p.Services["app"].Ports, parsed.Services["app"].Ports)
		assert.Equal(t, p.Services["app"].Volumes, parsed.Services["app"].Volumes)
		assert.Equal(t, p.Services["db"].Volumes, parsed.Services["db"].Volumes)
		assert.Equal(t, p.VolumeNames(), parsed.VolumeNames())
	})
}
