// Package auth handles passwords, API tokens and user accounts.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/oarkflow/bookshelf/internal/models"
	"github.com/oarkflow/bookshelf/internal/store"
	"golang.org/x/crypto/bcrypt"
)

// ErrEmailRequired is returned when a user is created without an email address
var ErrEmailRequired = errors.New("User must have an email address")

// tokenBytes is the number of random bytes in a token key
const tokenBytes = 20

// dummyHash is compared against when the user does not exist so that
// unknown emails take as long as wrong passwords.
var dummyHash = []byte("$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z3mqyt.cYfNqTjJ0Fz4oE7Yi")

// HashPassword returns the bcrypt hash of password
func HashPassword(password string) (string, error) {
	return hashPassword(password, bcrypt.DefaultCost)
}

func hashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the bcrypt hash
func CheckPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// NewTokenKey returns a random 40 character hex key
func NewTokenKey() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// NormalizeEmail trims the address and lower-cases its domain part
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	return email[:at] + "@" + strings.ToLower(email[at+1:])
}

// Service manages user accounts on top of a store
type Service struct {
	store store.Store
	cost  int
}

// Option configures a Service
type Option func(*Service)

// WithCost sets the bcrypt cost used for new passwords
func WithCost(cost int) Option {
	return func(s *Service) {
		s.cost = cost
	}
}

// NewService creates an account service
func NewService(s store.Store, opts ...Option) *Service {
	svc := &Service{store: s, cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// CreateUser creates an active user with a hashed password
func (s *Service) CreateUser(ctx context.Context, email, password, name string) (*models.User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, ErrEmailRequired
	}

	user := &models.User{Email: email, Name: name, IsActive: true}
	if password != "" {
		hash, err := hashPassword(password, s.cost)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	log.Debug("Created user", "id", user.ID, "email", user.Email)
	return user, nil
}

// CreateSuperuser creates a user with staff and superuser rights
func (s *Service) CreateSuperuser(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.CreateUser(ctx, email, password, "")
	if err != nil {
		return nil, err
	}
	user.IsStaff = true
	user.IsSuperuser = true
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to grant superuser: %w", err)
	}
	return user, nil
}

// Authenticate returns the active user with the given credentials
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.store.GetUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return nil, store.ErrInvalidCredentials
		}
		return nil, err
	}
	if !CheckPassword(user.PasswordHash, password) || !user.IsActive {
		return nil, store.ErrInvalidCredentials
	}
	return user, nil
}

// IssueToken returns the user's token, creating it on first use
func (s *Service) IssueToken(ctx context.Context, user *models.User) (*models.Token, error) {
	token, err := s.store.GetOrCreateToken(ctx, user.ID, NewTokenKey)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return token, nil
}

// UserForToken returns the active user owning the token key
func (s *Service) UserForToken(ctx context.Context, key string) (*models.User, error) {
	user, err := s.store.GetUserByToken(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, store.ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, store.ErrInvalidCredentials
	}
	return user, nil
}

// UpdateUser applies a profile update; a new password is hashed before saving
func (s *Service) UpdateUser(ctx context.Context, user *models.User, req models.UpdateUserRequest) error {
	if req.Email != nil {
		user.Email = NormalizeEmail(*req.Email)
	}
	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.Password != nil {
		hash, err := hashPassword(*req.Password, s.cost)
		if err != nil {
			return err
		}
		user.PasswordHash = hash
	}
	return s.store.UpdateUser(ctx, user)
}
