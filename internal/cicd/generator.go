// Package cicd provides CI pipeline generation for the stack.
package cicd

import (
	"bytes"
	"fmt"
	"path/filepath"
	"text/template"

	"github.com/oarkflow/bookshelf/internal/stack"
	"github.com/spf13/afero"
)

// Platform represents a CI/CD platform
type Platform string

const (
	PlatformGitHubActions Platform = "github"
	PlatformGitLabCI      Platform = "gitlab"
)

// Options for CI pipeline generation
type Options struct {
	Platform      Platform
	ProjectName   string
	GoVersion     string
	Branch        string
	DBService     string
	PostgresImage string
	DBName        string
	DBUser        string
	DBPassword    string
	CheckCommand  string
	TestCommand   string
	DockerEnabled bool
	DockerImage   string
}

// DefaultOptions returns default options
func DefaultOptions() Options {
	defaults := stack.DefaultStackOptions()
	return Options{
		Platform:      PlatformGitHubActions,
		ProjectName:   "bookshelf",
		GoVersion:     "1.24",
		Branch:        "main",
		DBService:     defaults.DBService,
		PostgresImage: defaults.DBImage,
		DBName:        defaults.DBName,
		DBUser:        defaults.DBUser,
		DBPassword:    defaults.DBPassword,
		CheckCommand:  "go run ./cmd/bookshelf stack check",
		TestCommand:   "go test ./...",
		DockerImage:   defaults.AppImage,
	}
}

// FromProject takes the database service settings from a compose project.
// The database is the service named by DB_HOST, or else the first postgres service.
func FromProject(p *stack.Project, opts Options) Options {
	db := findDatabase(p)
	if db == nil {
		return opts
	}

	opts.DBService = db.Name
	opts.PostgresImage = db.Image
	if v := db.Environment["POSTGRES_DB"]; v != "" {
		opts.DBName = v
	}
	if v := db.Environment["POSTGRES_USER"]; v != "" {
		opts.DBUser = v
	}
	if v := db.Environment["POSTGRES_PASSWORD"]; v != "" {
		opts.DBPassword = v
	}
	if p.Name != "" {
		opts.ProjectName = p.Name
	}
	return opts
}

func findDatabase(p *stack.Project) *stack.Service {
	for _, name := range p.ServiceNames() {
		host := p.Services[name].Environment["DB_HOST"]
		if db := p.Service(host); db != nil && stack.IsPostgresImage(db.Image) {
			return db
		}
	}
	for _, name := range p.ServiceNames() {
		if stack.IsPostgresImage(p.Services[name].Image) {
			return p.Services[name]
		}
	}
	return nil
}

// Generator generates CI pipeline configurations
type Generator struct {
	opts Options
	fs   afero.Fs
}

// NewGenerator creates a new CI generator writing to fs
func NewGenerator(opts Options, fs afero.Fs) *Generator {
	return &Generator{opts: opts, fs: fs}
}

// Generate writes the pipeline file under outputDir and returns its path
func (g *Generator) Generate(outputDir string) (string, error) {
	var (
		path string
		tmpl string
	)
	switch g.opts.Platform {
	case PlatformGitHubActions:
		path = filepath.Join(outputDir, ".github", "workflows", "ci.yml")
		tmpl = githubTemplate
	case PlatformGitLabCI:
		path = filepath.Join(outputDir, ".gitlab-ci.yml")
		tmpl = gitlabTemplate
	default:
		return "", fmt.Errorf("unsupported platform: %s", g.opts.Platform)
	}

	if err := g.fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}
	if err := g.writeTemplate(path, tmpl); err != nil {
		return "", err
	}
	return path, nil
}

// writeTemplate renders and writes a template
func (g *Generator) writeTemplate(path string, tmplStr string) error {
	tmpl, err := template.New("ci").Parse(tmplStr)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, g.opts); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	if err := afero.WriteFile(g.fs, path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// GetSupportedPlatforms returns all supported CI platforms
func GetSupportedPlatforms() []Platform {
	return []Platform{PlatformGitHubActions, PlatformGitLabCI}
}

const githubTemplate = `name: CI

on:
  push:
    branches: [{{ .Branch }}]
  pull_request:

jobs:
  test:
    runs-on: ubuntu-latest
    services:
      {{ .DBService }}:
        image: {{ .PostgresImage }}
        env:
          POSTGRES_DB: {{ .DBName }}
          POSTGRES_USER: {{ .DBUser }}
          POSTGRES_PASSWORD: {{ .DBPassword }}
        ports:
          - 5432:5432
        options: >-
          --health-cmd pg_isready
          --health-interval 10s
          --health-timeout 5s
          --health-retries 5
    env:
      DB_HOST: localhost
      DB_NAME: {{ .DBName }}
      DB_USER: {{ .DBUser }}
      DB_PASS: {{ .DBPassword }}
    steps:
      - uses: actions/checkout@v4

      - name: Set up Go
        uses: actions/setup-go@v5
        with:
          go-version: '{{ .GoVersion }}'
          cache: true

      - name: Check compose file
        run: {{ .CheckCommand }}

      - name: Wait for database
        run: go run ./cmd/bookshelf wait-for-db

      - name: Apply migrations
        run: go run ./cmd/bookshelf migrate

      - name: Run tests
        run: {{ .TestCommand }}
{{ if .DockerEnabled }}
  image:
    needs: test
    runs-on: ubuntu-latest
    steps:
      - uses: actions/checkout@v4

      - name: Set up Docker Buildx
        uses: docker/setup-buildx-action@v3

      - name: Build image
        run: docker build -t {{ .DockerImage }} .
{{ end }}`

const gitlabTemplate = `stages:
  - check
  - test
{{- if .DockerEnabled }}
  - build
{{- end }}

variables:
  GO_VERSION: "{{ .GoVersion }}"
  POSTGRES_DB: {{ .DBName }}
  POSTGRES_USER: {{ .DBUser }}
  POSTGRES_PASSWORD: {{ .DBPassword }}
  DB_HOST: {{ .DBService }}
  DB_NAME: {{ .DBName }}
  DB_USER: {{ .DBUser }}
  DB_PASS: {{ .DBPassword }}

.go-cache:
  variables:
    GOPATH: $CI_PROJECT_DIR/.go
  cache:
    paths:
      - .go/pkg/mod/

check:
  stage: check
  image: golang:${GO_VERSION}
  extends: .go-cache
  script:
    - {{ .CheckCommand }}

test:
  stage: test
  image: golang:${GO_VERSION}
  extends: .go-cache
  services:
    - name: {{ .PostgresImage }}
      alias: {{ .DBService }}
  script:
    - go run ./cmd/bookshelf wait-for-db
    - go run ./cmd/bookshelf migrate
    - {{ .TestCommand }}
  rules:
    - if: $CI_PIPELINE_SOURCE == "merge_request_event"
    - if: $CI_COMMIT_BRANCH == "{{ .Branch }}"
{{ if .DockerEnabled }}
build:image:
  stage: build
  image: docker:latest
  services:
    - docker:dind
  script:
    - docker build -t {{ .DockerImage }} .
  rules:
    - if: $CI_COMMIT_BRANCH == "{{ .Branch }}"
{{ end }}`
