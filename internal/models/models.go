// Package models defines data structures for the API
package models

import (
	"errors"
	"strings"
	"time"
)

// DateLayout is the wire format of calendar dates
const DateLayout = "2006-01-02"

// Date is a calendar date encoded as YYYY-MM-DD
type Date struct {
	time.Time
}

// NewDate returns the date for the given day
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ErrDateFormat is returned for dates that are not YYYY-MM-DD
var ErrDateFormat = errors.New("Date has wrong format. Use one of these formats instead: YYYY-MM-DD.")

// ParseDate parses a YYYY-MM-DD string
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, ErrDateFormat
	}
	return Date{t}, nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

// MarshalJSON encodes the date as a quoted YYYY-MM-DD string
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON decodes a quoted YYYY-MM-DD string.
// Only null leaves the date unset; an empty string is a format error.
func (d *Date) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// User represents an account; the email address is the login name
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"-"`
	IsStaff      bool      `json:"-"`
	IsSuperuser  bool      `json:"-"`
	CreatedAt    time.Time `json:"-"`
}

// Token is the API key issued to a user
type Token struct {
	Key       string    `json:"token"`
	UserID    int64     `json:"-"`
	CreatedAt time.Time `json:"-"`
}

// Book is a book in a user's collection
type Book struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"-"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	ReleaseDate Date      `json:"release_date"`
	Genre       string    `json:"genre"`
	Description string    `json:"description"`
	Image       *string   `json:"image"`
	CreatedAt   time.Time `json:"-"`
	UpdatedAt   time.Time `json:"-"`
}

// CreateUserRequest represents the request body for creating a user
type CreateUserRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=5"`
	Name     string `json:"name" validate:"required,max=255"`
}

// UpdateUserRequest represents the request body for updating the current user
type UpdateUserRequest struct {
	Email    *string `json:"email,omitempty" validate:"omitempty,email,max=255"`
	Password *string `json:"password,omitempty" validate:"omitempty,min=5"`
	Name     *string `json:"name,omitempty" validate:"omitempty,max=255"`
}

// TokenRequest represents the credentials exchanged for a token
type TokenRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// BookRequest represents the request body for creating or replacing a book
type BookRequest struct {
	Title       string `json:"title" validate:"required,max=255"`
	Author      string `json:"author" validate:"required,max=255"`
	ReleaseDate *Date  `json:"release_date" validate:"required"`
	Genre       string `json:"genre" validate:"required,max=255"`
	Description string `json:"description" validate:"required"`
}

// UpdateBookRequest represents the request body for partially updating a book
type UpdateBookRequest struct {
	Title       *string `json:"title,omitempty" validate:"omitempty,min=1,max=255"`
	Author      *string `json:"author,omitempty" validate:"omitempty,min=1,max=255"`
	ReleaseDate *Date   `json:"release_date,omitempty"`
	Genre       *string `json:"genre,omitempty" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description,omitempty" validate:"omitempty,min=1"`
}

// Apply copies the fields set in the request onto b
func (r UpdateBookRequest) Apply(b *Book) {
	if r.Title != nil {
		b.Title = *r.Title
	}
	if r.Author != nil {
		b.Author = *r.Author
	}
	if r.ReleaseDate != nil {
		b.ReleaseDate = *r.ReleaseDate
	}
	if r.Genre != nil {
		b.Genre = *r.Genre
	}
	if r.Description != nil {
		b.Description = *r.Description
	}
}

// ImageResponse is returned after an image upload
type ImageResponse struct {
	ID    int64  `json:"id"`
	Image string `json:"image"`
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// DetailResponse carries authentication and permission failures
type DetailResponse struct {
	Detail string `json:"detail"`
}
