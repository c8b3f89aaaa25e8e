package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/oarkflow/bookshelf/internal/auth"
	"github.com/oarkflow/bookshelf/internal/models"
	"github.com/oarkflow/bookshelf/internal/store"
)

// CreateUser registers a new user
// @Summary Create user
// @Tags user
// @Accept json
// @Produce json
// @Param user body models.CreateUserRequest true "User data"
// @Success 201 {object} models.User
// @Failure 400 {object} map[string][]string
// @Router /api/user/create/ [post]
func (h *Handler) CreateUser(c *fiber.Ctx) error {
	var req models.CreateUserRequest
	if errs := h.parse(c, &req); errs != nil {
		return badRequest(c, errs)
	}

	user, err := h.auth.CreateUser(c.UserContext(), req.Email, req.Password, req.Name)
	if err != nil {
		return h.userError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(user)
}

// CreateToken exchanges credentials for an API token
// @Summary Create token
// @Tags user
// @Accept json
// @Produce json
// @Param credentials body models.TokenRequest true "Credentials"
// @Success 200 {object} models.Token
// @Failure 400 {object} map[string][]string
// @Router /api/user/token/ [post]
func (h *Handler) CreateToken(c *fiber.Ctx) error {
	var req models.TokenRequest
	if errs := h.parse(c, &req); errs != nil {
		return badRequest(c, errs)
	}

	user, err := h.auth.Authenticate(c.UserContext(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, store.ErrInvalidCredentials) {
			return badRequest(c, fieldErrors{"non_field_errors": {"Unable to authenticate with provided credentials."}})
		}
		return err
	}

	token, err := h.auth.IssueToken(c.UserContext(), user)
	if err != nil {
		return err
	}
	return c.JSON(token)
}

// GetMe returns the authenticated user
func (h *Handler) GetMe(c *fiber.Ctx) error {
	return c.JSON(currentUser(c))
}

// ReplaceMe replaces the authenticated user's email, name and password
func (h *Handler) ReplaceMe(c *fiber.Ctx) error {
	var req models.CreateUserRequest
	if errs := h.parse(c, &req); errs != nil {
		return badRequest(c, errs)
	}
	return h.saveMe(c, models.UpdateUserRequest{
		Email:    &req.Email,
		Password: &req.Password,
		Name:     &req.Name,
	})
}

// UpdateMe partially updates the authenticated user
func (h *Handler) UpdateMe(c *fiber.Ctx) error {
	var req models.UpdateUserRequest
	if errs := h.parse(c, &req); errs != nil {
		return badRequest(c, errs)
	}
	return h.saveMe(c, req)
}

func (h *Handler) saveMe(c *fiber.Ctx, req models.UpdateUserRequest) error {
	user := currentUser(c)
	if err := h.auth.UpdateUser(c.UserContext(), user, req); err != nil {
		return h.userError(c, err)
	}
	return c.JSON(user)
}

func (h *Handler) userError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, store.ErrAlreadyExists):
		return badRequest(c, fieldErrors{"email": {"user with this email already exists."}})
	case errors.Is(err, auth.ErrEmailRequired):
		return badRequest(c, fieldErrors{"email": {err.Error()}})
	default:
		return storeError(err)
	}
}
