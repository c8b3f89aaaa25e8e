package handlers

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v2"
	"github.com/oarkflow/bookshelf/internal/media"
	"github.com/oarkflow/bookshelf/internal/models"
)

// bookResponse is a book with its image as a URL
type bookResponse struct {
	models.Book
	Image *string `json:"image"`
}

func (h *Handler) imageURL(c *fiber.Ctx, path string) string {
	return c.BaseURL() + strings.TrimRight(h.opts.MediaURL, "/") + "/" + path
}

func (h *Handler) toResponse(c *fiber.Ctx, b models.Book) bookResponse {
	resp := bookResponse{Book: b}
	if b.Image != nil {
		url := h.imageURL(c, *b.Image)
		resp.Image = &url
	}
	return resp
}

func bookID(c *fiber.Ctx) (int64, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusNotFound, "Not found.")
	}
	return int64(id), nil
}

// ListBooks returns the caller's books, newest first
// @Summary List books
// @Tags books
// @Produce json
// @Success 200 {array} models.Book
// @Failure 401 {object} models.DetailResponse
// @Router /api/book/books/ [get]
func (h *Handler) ListBooks(c *fiber.Ctx) error {
	books, err := h.store.ListBooks(c.UserContext(), currentUser(c).ID)
	if err != nil {
		return err
	}

	resp := make([]bookResponse, len(books))
	for i := range books {
		resp[i] = h.toResponse(c, books[i])
	}
	return c.JSON(resp)
}

// GetBook returns one of the caller's books
// @Summary Get book
// @Tags books
// @Produce json
// @Param id path int true "Book ID"
// @Success 200 {object} models.Book
// @Failure 404 {object} models.ErrorResponse
// @Router /api/book/books/{id}/ [get]
func (h *Handler) GetBook(c *fiber.Ctx) error {
	id, err := bookID(c)
	if err != nil {
		return err
	}

	book, err := h.store.GetBook(c.UserContext(), currentUser(c).ID, id)
	if err != nil {
		return storeError(err)
	}
	return c.JSON(h.toResponse(c, *book))
}

// CreateBook adds a book owned by the caller
// @Summary Create book
// @Tags books
// @Accept json
// @Produce json
// @Param book body models.BookRequest true "Book data"
// @Success 201 {object} models.Book
// @Failure 400 {object} map[string][]string
// @Router /api/book/books/ [post]
func (h *Handler) CreateBook(c *fiber.Ctx) error {
	var req models.BookRequest
	if errs := h.parse(c, &req); errs != nil {
		return badRequest(c, errs)
	}

	book := &models.Book{
		UserID:      currentUser(c).ID,
		Title:       req.Title,
		Author:      req.Author,
		ReleaseDate: *req.ReleaseDate,
		Genre:       req.Genre,
		Description: req.Description,
	}
	if err := h.store.CreateBook(c.UserContext(), book); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(h.toResponse(c, *book))
}

// ReplaceBook replaces every writable field of a book
func (h *Handler) ReplaceBook(c *fiber.Ctx) error {
	var req models.BookRequest
	if errs := h.parse(c, &req); errs != nil {
		return badRequest(c, errs)
	}
	return h.saveBook(c, models.UpdateBookRequest{
		Title:       &req.Title,
		Author:      &req.Author,
		ReleaseDate: req.ReleaseDate,
		Genre:       &req.Genre,
		Description: &req.Description,
	})
}

// UpdateBook changes the fields present in the request
func (h *Handler) UpdateBook(c *fiber.Ctx) error {
	var req models.UpdateBookRequest
	if errs := h.parse(c, &req); errs != nil {
		return badRequest(c, errs)
	}
	return h.saveBook(c, req)
}

func (h *Handler) saveBook(c *fiber.Ctx, req models.UpdateBookRequest) error {
	id, err := bookID(c)
	if err != nil {
		return err
	}

	book, err := h.store.GetBook(c.UserContext(), currentUser(c).ID, id)
	if err != nil {
		return storeError(err)
	}

	req.Apply(book)
	if err := h.store.UpdateBook(c.UserContext(), book); err != nil {
		return storeError(err)
	}
	return c.JSON(h.toResponse(c, *book))
}

// DeleteBook removes a book and its image
// @Summary Delete book
// @Tags books
// @Param id path int true "Book ID"
// @Success 204 "No Content"
// @Failure 404 {object} models.ErrorResponse
// @Router /api/book/books/{id}/ [delete]
func (h *Handler) DeleteBook(c *fiber.Ctx) error {
	id, err := bookID(c)
	if err != nil {
		return err
	}

	user := currentUser(c)
	book, err := h.store.GetBook(c.UserContext(), user.ID, id)
	if err != nil {
		return storeError(err)
	}
	if err := h.store.DeleteBook(c.UserContext(), user.ID, id); err != nil {
		return storeError(err)
	}
	if book.Image != nil {
		h.removeFile(*book.Image)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// UploadBookImage stores the multipart field "image" as the book cover
// @Summary Upload book image
// @Tags books
// @Accept multipart/form-data
// @Produce json
// @Param id path int true "Book ID"
// @Param image formData file true "Cover image"
// @Success 200 {object} models.ImageResponse
// @Failure 400 {object} map[string][]string
// @Router /api/book/books/{id}/upload-image/ [post]
func (h *Handler) UploadBookImage(c *fiber.Ctx) error {
	id, err := bookID(c)
	if err != nil {
		return err
	}

	user := currentUser(c)
	book, err := h.store.GetBook(c.UserContext(), user.ID, id)
	if err != nil {
		return storeError(err)
	}

	header, err := c.FormFile("image")
	if err != nil {
		return badRequest(c, fieldErrors{"image": {"No file was submitted."}})
	}
	if err := media.CheckExtension(header.Filename); err != nil {
		return badRequest(c, fieldErrors{"image": {err.Error()}})
	}
	file, err := header.Open()
	if err != nil {
		return err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}
	img, err := media.DetectImage(data)
	if err != nil {
		if errors.Is(err, media.ErrNotAnImage) {
			return badRequest(c, fieldErrors{"image": {err.Error()}})
		}
		return err
	}

	// Stored under the detected type, never the client's extension.
	path := media.BookImagePath(img.Extension)
	if err := h.media.Save(path, bytes.NewReader(data)); err != nil {
		return err
	}

	if err := h.store.SetBookImage(c.UserContext(), user.ID, id, &path); err != nil {
		h.removeFile(path)
		return storeError(err)
	}
	if book.Image != nil {
		h.removeFile(*book.Image)
	}

	log.Debug("Stored book image", "book", id, "path", path, "type", img.MIME)
	return c.JSON(models.ImageResponse{ID: id, Image: h.imageURL(c, path)})
}

func (h *Handler) removeFile(path string) {
	if err := h.media.Delete(path); err != nil {
		log.Warn("Failed to remove media file", "path", path, "error", err)
	}
}
