// Package server assembles the HTTP application: middleware, API routes,
// the health endpoint and static and uploaded file serving.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/oarkflow/bookshelf/internal/auth"
	"github.com/oarkflow/bookshelf/internal/config"
	"github.com/oarkflow/bookshelf/internal/handlers"
	"github.com/oarkflow/bookshelf/internal/media"
	"github.com/oarkflow/bookshelf/internal/store"
	"github.com/spf13/afero"
)

// Server is the bookshelf HTTP server
type Server struct {
	app     *fiber.App
	cfg     *config.Config
	store   store.Store
	logger  *log.Logger
	version string
}

// New builds the application. Files are read from and written to fs.
func New(cfg *config.Config, s store.Store, fs afero.Fs, version string) *Server {
	srv := &Server{
		cfg:     cfg,
		store:   s,
		logger:  log.WithPrefix("serve"),
		version: version,
	}

	app := fiber.New(fiber.Config{
		AppName:               fmt.Sprintf("bookshelf %s", version),
		ErrorHandler:          handlers.ErrorHandler,
		BodyLimit:             cfg.Media.MaxUploadSize,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		DisableStartupMessage: true,
	})

	app.Use(recover.New(recover.Config{EnableStackTrace: cfg.Debug}))
	app.Use(requestid.New())
	app.Use(logger.New(logger.Config{
		Format: "${status} ${method} ${path} ${latency} id=${locals:requestid}\n",
		Output: srv.logger.StandardLog(log.StandardLogOptions{ForceLevel: log.InfoLevel}).Writer(),
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.CORSOrigins,
		AllowMethods: "GET,POST,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Request-ID",
	}))

	app.Get("/health", srv.health)

	httpFs := afero.NewHttpFs(fs)
	app.Use(cfg.Media.StaticURL, filesystem.New(filesystem.Config{
		Root:   httpFs.Dir(cfg.Media.StaticRoot),
		MaxAge: 3600,
	}))
	app.Use(cfg.Media.MediaURL, filesystem.New(filesystem.Config{
		Root: httpFs.Dir(cfg.Media.MediaRoot),
	}))

	h := handlers.New(
		s,
		auth.NewService(s),
		media.NewStorage(fs, cfg.Media.MediaRoot),
		handlers.Options{MediaURL: cfg.Media.MediaURL},
	)
	h.Register(app)

	srv.app = app
	return srv
}

// App returns the underlying fiber application
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("Health check failed", "error", err)
		return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{
			"status":  "unhealthy",
			"version": s.version,
		})
	}
	return c.JSON(fiber.Map{
		"status":  "healthy",
		"version": s.version,
	})
}

// Run serves on addr until ctx is canceled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", "addr", addr, "version", s.version)
		errCh <- s.app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	if err := <-errCh; err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	s.logger.Info("Server exited gracefully")
	return nil
}
