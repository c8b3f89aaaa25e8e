/*
Package bookshelf is a book catalogue web service together with the tooling
for its two-service development stack.

The stack is declared in a compose document: the application container,
built from this repository, and a PostgreSQL container it depends on. The
bookshelf binary works on that document and is also what the application
container runs.

# Usage

Stack tooling:

	bookshelf stack init          # Write the default docker-compose.yml
	bookshelf stack check         # Schema and reference checks
	bookshelf stack order         # Start order derived from depends_on
	bookshelf stack export        # Kubernetes manifests
	bookshelf stack up            # docker compose up

Application runtime:

	bookshelf wait-for-db && bookshelf migrate && bookshelf serve
*/
package bookshelf

// Build information, overridden with -ldflags "-X" at build time
var (
	// Version is the current version of bookshelf
	Version = "1.0.0"

	// BuildDate is set at build time
	BuildDate string

	// GitCommit is set at build time
	GitCommit string
)
