package auth

import (
	"context"
	"testing"

	"github.com/oarkflow/bookshelf/internal/models"
	"github.com/oarkflow/bookshelf/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newService() *Service {
	return NewService(store.NewMemoryStore(), WithCost(bcrypt.MinCost))
}

func TestPasswords(t *testing.T) {
	t.Run("Should verify hashed passwords", func(t *testing.T) {
		hash, err := hashPassword("testpass123", bcrypt.MinCost)
		require.NoError(t, err)
		assert.NotEqual(t, "testpass123", hash)
		assert.True(t, CheckPassword(hash, "testpass123"))
		assert.False(t, CheckPassword(hash, "wrong"))
		assert.False(t, CheckPassword("", ""))
	})
}

func TestNewTokenKey(t *testing.T) {
	t.Run("Should return distinct 40 character hex keys", func(t *testing.T) {
		a, err := NewTokenKey()
		require.NoError(t, err)
		b, err := NewTokenKey()
		require.NoError(t, err)
		assert.Len(t, a, 40)
		assert.Regexp(t, "^[0-9a-f]{40}$", a)
		assert.NotEqual(t, a, b)
	})
}

func TestNormalizeEmail(t *testing.T) {
	cases := map[string]string{
		"test1@EXAMPLE.com":   "test1@example.com",
		"Test2@Example.com":   "Test2@example.com",
		"TEST3@EXAMPLE.COM":   "TEST3@example.com",
		"test4@example.COM":   "test4@example.com",
		" spaced@Example.ORG": "spaced@example.org",
		"no-at-sign":          "no-at-sign",
	}
	for in, want := range cases {
		t.Run("Should normalize "+in, func(t *testing.T) {
			assert.Equal(t, want, NormalizeEmail(in))
		})
	}
}

func TestService_CreateUser(t *testing.T) {
	ctx := context.Background()

	t.Run("Should create an active user with a normalized email", func(t *testing.T) {
		svc := newService()
		u, err := svc.CreateUser(ctx, "reader@EXAMPLE.com", "testpass123", "Reader")
		require.NoError(t, err)
		assert.Equal(t, "reader@example.com", u.Email)
		assert.True(t, u.IsActive)
		assert.False(t, u.IsStaff)
		assert.True(t, CheckPassword(u.PasswordHash, "testpass123"))
	})

	t.Run("Should require an email address", func(t *testing.T) {
		_, err := newService().CreateUser(ctx, "", "test123", "")
		assert.ErrorIs(t, err, ErrEmailRequired)
		assert.EqualError(t, err, "User must have an email address")
	})

	t.Run("Should reject duplicate emails", func(t *testing.T) {
		svc := newService()
		_, err := svc.CreateUser(ctx, "reader@example.com", "pass1", "")
		require.NoError(t, err)
		_, err = svc.CreateUser(ctx, "reader@example.com", "pass2", "")
		assert.ErrorIs(t, err, store.ErrAlreadyExists)
	})

	t.Run("Should create superusers", func(t *testing.T) {
		svc := newService()
		u, err := svc.CreateSuperuser(ctx, "admin@example.com", "test123")
		require.NoError(t, err)
		assert.True(t, u.IsStaff)
		assert.True(t, u.IsSuperuser)

		stored, err := svc.store.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.True(t, stored.IsSuperuser)
	})
}

func TestService_Authenticate(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	user, err := svc.CreateUser(ctx, "reader@example.com", "testpass123", "Reader")
	require.NoError(t, err)

	t.Run("Should accept valid credentials", func(t *testing.T) {
		got, err := svc.Authenticate(ctx, "reader@EXAMPLE.com", "testpass123")
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
	})

	t.Run("Should reject bad credentials", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "reader@example.com", "badpass")
		assert.ErrorIs(t, err, store.ErrInvalidCredentials)

		_, err = svc.Authenticate(ctx, "nobody@example.com", "testpass123")
		assert.ErrorIs(t, err, store.ErrInvalidCredentials)
	})

	t.Run("Should reject inactive users", func(t *testing.T) {
		inactive, err := svc.CreateUser(ctx, "gone@example.com", "testpass123", "")
		require.NoError(t, err)
		inactive.IsActive = false
		require.NoError(t, svc.store.UpdateUser(ctx, inactive))

		_, err = svc.Authenticate(ctx, "gone@example.com", "testpass123")
		assert.ErrorIs(t, err, store.ErrInvalidCredentials)
	})
}

func TestService_Tokens(t *testing.T) {
	ctx := context.Background()

	t.Run("Should issue a stable token that resolves to its user", func(t *testing.T) {
		svc := newService()
		user, err := svc.CreateUser(ctx, "reader@example.com", "testpass123", "")
		require.NoError(t, err)

		first, err := svc.IssueToken(ctx, user)
		require.NoError(t, err)
		second, err := svc.IssueToken(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, first.Key, second.Key)

		got, err := svc.UserForToken(ctx, first.Key)
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)

		_, err = svc.UserForToken(ctx, "unknown")
		assert.ErrorIs(t, err, store.ErrInvalidCredentials)
	})
}

func TestService_UpdateUser(t *testing.T) {
	t.Run("Should update the name and password", func(t *testing.T) {
		ctx := context.Background()
		svc := newService()
		user, err := svc.CreateUser(ctx, "reader@example.com", "testpass123", "Old")
		require.NoError(t, err)

		name, password := "New", "newpassword123"
		require.NoError(t, svc.UpdateUser(ctx, user, models.UpdateUserRequest{Name: &name, Password: &password}))

		got, err := svc.Authenticate(ctx, "reader@example.com", password)
		require.NoError(t, err)
		assert.Equal(t, "New", got.Name)
	})
}
