package stack

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/log"
)

// Runner drives the docker compose CLI for a loaded project
type Runner struct {
	project *Project

	// Binary is the docker executable, "docker" by default
	Binary string

	Stdout io.Writer
	Stderr io.Writer
}

// UpOptions controls Runner.Up
type UpOptions struct {
	Build    bool
	Detach   bool
	Wait     bool
	Services []string
}

// NewRunner creates a runner for the project
func NewRunner(p *Project) *Runner {
	return &Runner{
		project: p,
		Binary:  "docker",
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
}

// Up creates and starts the stack
func (r *Runner) Up(ctx context.Context, opts UpOptions) error {
	args := []string{"up"}
	if opts.Detach {
		args = append(args, "-d")
	}
	if opts.Build {
		args = append(args, "--build")
	}
	if opts.Wait {
		args = append(args, "--wait")
	}
	args = append(args, opts.Services...)
	return r.run(ctx, args...)
}

// Down stops the stack and optionally removes its named volumes
func (r *Runner) Down(ctx context.Context, removeVolumes bool) error {
	args := []string{"down"}
	if removeVolumes {
		args = append(args, "-v")
	}
	return r.run(ctx, args...)
}

// Ps lists the stack containers
func (r *Runner) Ps(ctx context.Context) error {
	return r.run(ctx, "ps")
}

// Command returns the full argument list for a compose subcommand
func (r *Runner) Command(args ...string) []string {
	full := []string{"compose"}
	for _, f := range r.project.Files {
		full = append(full, "-f", f)
	}
	if r.project.Name != "" {
		full = append(full, "-p", r.project.Name)
	}
	return append(full, args...)
}

func (r *Runner) run(ctx context.Context, args ...string) error {
	if len(r.project.Files) == 0 {
		return fmt.Errorf("project %s was not loaded from a file", r.project.Name)
	}

	full := r.Command(args...)
	log.Debug("Running docker command", "args", full)

	cmd := exec.CommandContext(ctx, r.Binary, full...)
	cmd.Dir = r.project.WorkingDir
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("docker compose %s failed: %w", strings.Join(args, " "), err)
	}
	return nil
}
