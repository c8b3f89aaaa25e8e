package store

import (
	"context"
	"testing"

	"github.com/oarkflow/bookshelf/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUser(t *testing.T, s Store, email string) *models.User {
	t.Helper()
	u := &models.User{Email: email, Name: "Test", IsActive: true}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func newBook(t *testing.T, s Store, userID int64, title string) *models.Book {
	t.Helper()
	b := &models.Book{
		UserID:      userID,
		Title:       title,
		Author:      "Author",
		ReleaseDate: models.NewDate(2020, 1, 2),
		Genre:       "Fiction",
		Description: "Description",
	}
	require.NoError(t, s.CreateBook(context.Background(), b))
	return b
}

func staticKey(key string) func() (string, error) {
	return func() (string, error) { return key, nil }
}

func TestMemoryStore_Users(t *testing.T) {
	ctx := context.Background()

	t.Run("Should assign ids and reject duplicate emails", func(t *testing.T) {
		s := NewMemoryStore()
		u := newUser(t, s, "reader@example.com")
		assert.Equal(t, int64(1), u.ID)
		assert.False(t, u.CreatedAt.IsZero())

		err := s.CreateUser(ctx, &models.User{Email: "READER@example.com"})
		assert.ErrorIs(t, err, ErrAlreadyExists)
	})

	t.Run("Should look users up by email and id", func(t *testing.T) {
		s := NewMemoryStore()
		u := newUser(t, s, "reader@example.com")

		got, err := s.GetUserByEmail(ctx, "reader@example.com")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)

		_, err = s.GetUserByID(ctx, 99)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Should update users", func(t *testing.T) {
		s := NewMemoryStore()
		u := newUser(t, s, "reader@example.com")
		other := newUser(t, s, "other@example.com")

		u.Name = "Renamed"
		require.NoError(t, s.UpdateUser(ctx, u))
		got, err := s.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.Name)

		other.Email = "reader@example.com"
		assert.ErrorIs(t, s.UpdateUser(ctx, other), ErrAlreadyExists)
		assert.ErrorIs(t, s.UpdateUser(ctx, &models.User{ID: 42}), ErrNotFound)
	})
}

func TestMemoryStore_Tokens(t *testing.T) {
	ctx := context.Background()

	t.Run("Should issue one token per user", func(t *testing.T) {
		s := NewMemoryStore()
		u := newUser(t, s, "reader@example.com")

		first, err := s.GetOrCreateToken(ctx, u.ID, staticKey("first"))
		require.NoError(t, err)
		second, err := s.GetOrCreateToken(ctx, u.ID, staticKey("second"))
		require.NoError(t, err)
		assert.Equal(t, "first", first.Key)
		assert.Equal(t, "first", second.Key)

		got, err := s.GetUserByToken(ctx, "first")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
	})

	t.Run("Should reject unknown users and keys", func(t *testing.T) {
		s := NewMemoryStore()
		_, err := s.GetOrCreateToken(ctx, 7, staticKey("key"))
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = s.GetUserByToken(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMemoryStore_Books(t *testing.T) {
	ctx := context.Background()

	t.Run("Should list only the owner's books newest first", func(t *testing.T) {
		s := NewMemoryStore()
		owner := newUser(t, s, "owner@example.com")
		other := newUser(t, s, "other@example.com")
		first := newBook(t, s, owner.ID, "First")
		newBook(t, s, other.ID, "Foreign")
		second := newBook(t, s, owner.ID, "Second")

		books, err := s.ListBooks(ctx, owner.ID)
		require.NoError(t, err)
		require.Len(t, books, 2)
		assert.Equal(t, second.ID, books[0].ID)
		assert.Equal(t, first.ID, books[1].ID)

		books, err = s.ListBooks(ctx, 99)
		require.NoError(t, err)
		assert.Empty(t, books)
		assert.NotNil(t, books)
	})

	t.Run("Should hide books of other users", func(t *testing.T) {
		s := NewMemoryStore()
		owner := newUser(t, s, "owner@example.com")
		other := newUser(t, s, "other@example.com")
		b := newBook(t, s, owner.ID, "Mine")

		_, err := s.GetBook(ctx, other.ID, b.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.DeleteBook(ctx, other.ID, b.ID), ErrNotFound)

		stolen := *b
		stolen.UserID = other.ID
		assert.ErrorIs(t, s.UpdateBook(ctx, &stolen), ErrNotFound)
	})

	t.Run("Should update, set images and delete", func(t *testing.T) {
		s := NewMemoryStore()
		owner := newUser(t, s, "owner@example.com")
		b := newBook(t, s, owner.ID, "Draft")

		image := "uploads/book/cover.png"
		require.NoError(t, s.SetBookImage(ctx, owner.ID, b.ID, &image))

		b.Title = "Final"
		require.NoError(t, s.UpdateBook(ctx, b))

		got, err := s.GetBook(ctx, owner.ID, b.ID)
		require.NoError(t, err)
		assert.Equal(t, "Final", got.Title)
		require.NotNil(t, got.Image)
		assert.Equal(t, image, *got.Image)

		require.NoError(t, s.DeleteBook(ctx, owner.ID, b.ID))
		_, err = s.GetBook(ctx, owner.ID, b.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Should require an existing owner", func(t *testing.T) {
		s := NewMemoryStore()
		err := s.CreateBook(ctx, &models.Book{UserID: 5, Title: "Orphan"})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
