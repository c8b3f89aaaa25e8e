package cicd

import (
	"testing"

	"github.com/oarkflow/bookshelf/internal/stack"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestFromProject(t *testing.T) {
	t.Run("Should take credentials from the service named by DB_HOST", func(t *testing.T) {
		opts := stack.DefaultStackOptions()
		opts.DBService = "postgres"
		opts.DBImage = "postgres:16"
		opts.DBPassword = "hunter2"
		p := stack.DefaultProject(opts)
		p.Name = "shelf"

		got := FromProject(p, DefaultOptions())
		assert.Equal(t, "postgres", got.DBService)
		assert.Equal(t, "postgres:16", got.PostgresImage)
		assert.Equal(t, "hunter2", got.DBPassword)
		assert.Equal(t, "shelf", got.ProjectName)
	})

	t.Run("Should keep defaults without a database", func(t *testing.T) {
		p := &stack.Project{Services: map[string]*stack.Service{"web": {Name: "web", Image: "nginx"}}}
		assert.Equal(t, DefaultOptions(), FromProject(p, DefaultOptions()))
	})
}

func TestGenerator(t *testing.T) {
	for _, platform := range GetSupportedPlatforms() {
		platform := platform
		t.Run("Should render valid YAML for "+string(platform), func(t *testing.T) {
			fs := afero.NewMemMapFs()
			opts := DefaultOptions()
			opts.Platform = platform
			opts.DockerEnabled = true

			path, err := NewGenerator(opts, fs).Generate("/repo")
			require.NoError(t, err)

			data, err := afero.ReadFile(fs, path)
			require.NoError(t, err)

			var doc map[string]interface{}
			require.NoError(t, yaml.Unmarshal(data, &doc))
			assert.Contains(t, string(data), "postgres:13-alpine")
			assert.Contains(t, string(data), "DB_PASS: changeme")
			assert.Contains(t, string(data), "go run ./cmd/bookshelf migrate")
			assert.Contains(t, string(data), "docker build -t bookshelf-app:dev .")
		})
	}

	t.Run("Should place workflows where the platform expects them", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		opts := DefaultOptions()

		path, err := NewGenerator(opts, fs).Generate("/repo")
		require.NoError(t, err)
		assert.Equal(t, "/repo/.github/workflows/ci.yml", path)

		opts.Platform = PlatformGitLabCI
		path, err = NewGenerator(opts, fs).Generate("/repo")
		require.NoError(t, err)
		assert.Equal(t, "/repo/.gitlab-ci.yml", path)
	})

	t.Run("Should reject unknown platforms", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Platform = "travis"
		_, err := NewGenerator(opts, afero.NewMemMapFs()).Generate(".")
		assert.ErrorContains(t, err, "unsupported platform")
	})
}
