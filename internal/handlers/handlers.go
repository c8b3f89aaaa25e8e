// Package handlers provides HTTP request handlers for the API
package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/oarkflow/bookshelf/internal/auth"
	"github.com/oarkflow/bookshelf/internal/media"
	"github.com/oarkflow/bookshelf/internal/models"
	"github.com/oarkflow/bookshelf/internal/store"
)

// Authentication failure messages
const (
	MsgNotAuthenticated = "Authentication credentials were not provided."
	MsgInvalidToken     = "Invalid token."
)

const userKey = "user"

// Options configures a Handler
type Options struct {
	// MediaURL is the URL prefix uploaded files are served under
	MediaURL string
}

// Handler holds the dependencies for HTTP handlers
type Handler struct {
	store    store.Store
	auth     *auth.Service
	media    *media.Storage
	opts     Options
	validate *validator.Validate
}

// New creates a new Handler
func New(s store.Store, a *auth.Service, m *media.Storage, opts Options) *Handler {
	if opts.MediaURL == "" {
		opts.MediaURL = "/media"
	}
	return &Handler{
		store:    s,
		auth:     a,
		media:    m,
		opts:     opts,
		validate: newValidator(),
	}
}

// Register mounts the API routes on router
func (h *Handler) Register(router fiber.Router) {
	api := router.Group("/api")

	users := api.Group("/user")
	users.Post("/create/", h.CreateUser)
	users.Post("/token/", h.CreateToken)

	me := users.Group("/me", h.RequireToken)
	me.Get("/", h.GetMe)
	me.Put("/", h.ReplaceMe)
	me.Patch("/", h.UpdateMe)

	books := api.Group("/book/books", h.RequireToken)
	books.Get("/", h.ListBooks)
	books.Post("/", h.CreateBook)
	books.Get("/:id/", h.GetBook)
	books.Put("/:id/", h.ReplaceBook)
	books.Patch("/:id/", h.UpdateBook)
	books.Delete("/:id/", h.DeleteBook)
	books.Post("/:id/upload-image/", h.UploadBookImage)
}

// ErrorHandler is the custom error handler for Fiber
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	} else {
		log.Error("Request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}

	return c.Status(code).JSON(models.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// RequireToken authenticates requests with an "Authorization: Token <key>" header
func (h *Handler) RequireToken(c *fiber.Ctx) error {
	header := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	scheme, key, _ := strings.Cut(header, " ")
	if header == "" || !strings.EqualFold(scheme, "Token") {
		return unauthorized(c, MsgNotAuthenticated)
	}

	key = strings.TrimSpace(key)
	if key == "" || strings.Contains(key, " ") {
		return unauthorized(c, MsgInvalidToken)
	}

	user, err := h.auth.UserForToken(c.UserContext(), key)
	if err != nil {
		if errors.Is(err, store.ErrInvalidCredentials) {
			return unauthorized(c, MsgInvalidToken)
		}
		return err
	}

	c.Locals(userKey, user)
	return c.Next()
}

func unauthorized(c *fiber.Ctx, detail string) error {
	c.Set(fiber.HeaderWWWAuthenticate, "Token")
	return c.Status(fiber.StatusUnauthorized).JSON(models.DetailResponse{Detail: detail})
}

// currentUser returns the user stored by RequireToken
func currentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals(userKey).(*models.User)
	return user
}

// fieldErrors maps request fields to their validation messages
type fieldErrors map[string][]string

func (f fieldErrors) add(field, message string) {
	f[field] = append(f[field], message)
}

func badRequest(c *fiber.Ctx, errs fieldErrors) error {
	return c.Status(fiber.StatusBadRequest).JSON(errs)
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// parse decodes the request body into req and validates it.
// It returns nil when req is valid.
func (h *Handler) parse(c *fiber.Ctx, req interface{}) fieldErrors {
	errs := fieldErrors{}
	if err := c.BodyParser(req); err != nil {
		// release_date is the only date field in request bodies
		if errors.Is(err, models.ErrDateFormat) {
			errs.add("release_date", err.Error())
			return errs
		}
		errs.add("non_field_errors", fmt.Sprintf("Invalid request body: %s", err))
		return errs
	}

	err := h.validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		errs.add("non_field_errors", err.Error())
		return errs
	}
	for _, fe := range verrs {
		errs.add(fe.Field(), validationMessage(fe))
	}
	return errs
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "min":
		return fmt.Sprintf("Ensure this field has at least %s characters.", fe.Param())
	case "max":
		return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
	default:
		return fmt.Sprintf("Failed on the %q rule.", fe.Tag())
	}
}

// storeError converts store errors to HTTP errors
func storeError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "Not found.")
	}
	return err
}
