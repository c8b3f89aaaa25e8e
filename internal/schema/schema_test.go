package schema

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/oarkflow/bookshelf/internal/stack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validate(t *testing.T, doc string) *ValidationResult {
	t.Helper()
	return NewValidator(GenerateSchema()).ValidateBytes([]byte(doc), "docker-compose.yml")
}

func errorPaths(result *ValidationResult) []string {
	paths := make([]string, len(result.Errors))
	for i, err := range result.Errors {
		paths[i] = err.Path
	}
	return paths
}

func TestComposeSchema(t *testing.T) {
	t.Run("Should accept the default stack", func(t *testing.T) {
		opts := stack.DefaultStackOptions()
		opts.Healthcheck = true
		data, err := stack.Marshal(stack.DefaultProject(opts))
		require.NoError(t, err)

		result := NewValidator(GenerateSchema()).ValidateBytes(data, "docker-compose.yml")
		assert.True(t, result.Valid, "%v", result.Errors)
	})

	t.Run("Should accept long syntax and extensions", func(t *testing.T) {
		result := validate(t, `
x-common: &common
  restart: unless-stopped
services:
  web:
    image: nginx
    restart: on-failure:3
    x-notes: anything
    ports:
      - 80
      - target: 443
        published: "8443"
        protocol: tcp
    volumes:
      - type: bind
        source: ./site
        target: /usr/share/nginx/html
    depends_on:
      db:
        condition: service_healthy
    environment:
      COUNT: 3
      ENABLED: true
      EMPTY:
  db:
    image: postgres
volumes:
  data:
  logs:
    driver: local
`)
		assert.True(t, result.Valid, "%v", result.Errors)
	})

	t.Run("Should require services", func(t *testing.T) {
		result := validate(t, "volumes: {}\n")
		assert.False(t, result.Valid)
		assert.Equal(t, []string{"services"}, errorPaths(result))

		result = validate(t, "services: {}\n")
		assert.Equal(t, []string{"services"}, errorPaths(result))
	})

	t.Run("Should report unknown fields with their path", func(t *testing.T) {
		result := validate(t, "services:\n  app:\n    image: x\n    imgae: y\n")
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "services.app.imgae", result.Errors[0].Path)
		assert.Equal(t, "unknown field", result.Errors[0].Message)
	})

	t.Run("Should report invalid values", func(t *testing.T) {
		result := validate(t, `
services:
  app:
    image: x
    restart: sometimes
    ports: ["80:80:80:80"]
    depends_on:
      db:
        condition: service_ready
    healthcheck:
      retries: many
  db:
    image: postgres
`)
		assert.ElementsMatch(t, []string{
			"services.app.depends_on.db.condition",
			"services.app.healthcheck.retries",
			"services.app.ports[0]",
			"services.app.restart",
		}, errorPaths(result))
	})

	t.Run("Should reject invalid service names", func(t *testing.T) {
		result := validate(t, "services:\n  -app:\n    image: x\n")
		assert.Equal(t, []string{"services.-app"}, errorPaths(result))
	})

	t.Run("Should report malformed YAML", func(t *testing.T) {
		result := validate(t, "services: [\n")
		assert.False(t, result.Valid)
		assert.Contains(t, result.Errors[0].Message, "invalid YAML")
	})
}

func TestValidateCompose(t *testing.T) {
	t.Run("Should validate files on disk", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "docker-compose.yml")
		require.NoError(t, os.WriteFile(path, []byte("services:\n  app:\n    image: x\n"), 0o644))
		assert.True(t, ValidateCompose(path).Valid)
	})

	t.Run("Should report unreadable files", func(t *testing.T) {
		result := ValidateCompose(filepath.Join(t.TempDir(), "missing.yml"))
		assert.False(t, result.Valid)
	})
}

func TestValidateComposeFiles(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "docker-compose.yml")
	override := filepath.Join(dir, "docker-compose.override.yml")
	require.NoError(t, os.WriteFile(base, []byte("services:\n  app:\n    image: x\n"), 0o644))
	require.NoError(t, os.WriteFile(override, []byte("volumes:\n  cache: {}\n"), 0o644))

	t.Run("Should accept overrides without services", func(t *testing.T) {
		results := ValidateComposeFiles([]string{base, override})
		require.Len(t, results, 2)
		assert.True(t, results[0].Valid)
		assert.True(t, results[1].Valid, results[1].Errors)
	})

	t.Run("Should accept overrides with an empty services map", func(t *testing.T) {
		empty := filepath.Join(dir, "empty.override.yml")
		require.NoError(t, os.WriteFile(empty, []byte("services: {}\n"), 0o644))
		assert.True(t, ValidateComposeOverride(empty).Valid)
	})

	t.Run("Should still require services in the first file", func(t *testing.T) {
		results := ValidateComposeFiles([]string{override, base})
		assert.False(t, results[0].Valid)
		assert.True(t, results[1].Valid)
	})

	t.Run("Should still check override fields", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.override.yml")
		require.NoError(t, os.WriteFile(bad, []byte("services:\n  app:\n    restart: sometimes\n"), 0o644))
		assert.False(t, ValidateComposeOverride(bad).Valid)
	})

	t.Run("Should not change the full schema", func(t *testing.T) {
		full := GenerateSchema()
		assert.Equal(t, []string{"services"}, full.Required)
		assert.NotNil(t, full.Properties["services"].MinProperties)
	})
}

func TestMarshalSchema(t *testing.T) {
	t.Run("Should render false as a not schema", func(t *testing.T) {
		data, err := MarshalSchema()
		require.NoError(t, err)

		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, map[string]interface{}{"not": map[string]interface{}{}}, decoded["additionalProperties"])
		assert.Equal(t, []interface{}{"services"}, decoded["required"])
	})

	t.Run("Should write the schema to a file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "compose.schema.json")
		require.NoError(t, WriteSchema(path))
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.True(t, json.Valid(data))
	})
}
