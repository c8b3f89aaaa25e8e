// Package store provides data storage implementations
package store

import (
	"context"
	"errors"

	"github.com/oarkflow/bookshelf/internal/models"
)

// Common errors
var (
	ErrNotFound           = errors.New("resource not found")
	ErrAlreadyExists      = errors.New("resource already exists")
	ErrInvalidCredentials = errors.New("unable to authenticate with provided credentials")
)

// Store defines the interface for data storage.
// Book lookups are scoped to the owning user; books of other users are ErrNotFound.
type Store interface {
	// Users
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error

	// Tokens
	GetOrCreateToken(ctx context.Context, userID int64, newKey func() (string, error)) (*models.Token, error)
	GetUserByToken(ctx context.Context, key string) (*models.User, error)

	// Books
	ListBooks(ctx context.Context, userID int64) ([]models.Book, error)
	GetBook(ctx context.Context, userID, id int64) (*models.Book, error)
	CreateBook(ctx context.Context, book *models.Book) error
	UpdateBook(ctx context.Context, book *models.Book) error
	DeleteBook(ctx context.Context, userID, id int64) error
	SetBookImage(ctx context.Context, userID, id int64, image *string) error

	Ping(ctx context.Context) error
	Close()
}
