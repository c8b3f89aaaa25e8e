package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oarkflow/bookshelf/internal/models"
)

// MemoryStore implements Store with in-memory storage
type MemoryStore struct {
	mu     sync.RWMutex
	users  map[int64]*models.User
	tokens map[string]*models.Token
	books  map[int64]*models.Book
	userID int64
	bookID int64
	now    func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:  make(map[int64]*models.User),
		tokens: make(map[string]*models.Token),
		books:  make(map[int64]*models.Book),
		now:    time.Now,
	}
}

// User operations

func (s *MemoryStore) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findByEmail(user.Email) != nil {
		return ErrAlreadyExists
	}

	s.userID++
	user.ID = s.userID
	user.CreatedAt = s.now()
	stored := *user
	s.users[user.ID] = &stored
	return nil
}

func (s *MemoryStore) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u := s.findByEmail(email)
	if u == nil {
		return nil, ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *MemoryStore) findByEmail(email string) *models.User {
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u
		}
	}
	return nil
}

func (s *MemoryStore) UpdateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; !ok {
		return ErrNotFound
	}
	if other := s.findByEmail(user.Email); other != nil && other.ID != user.ID {
		return ErrAlreadyExists
	}
	stored := *user
	s.users[user.ID] = &stored
	return nil
}

// Token operations

func (s *MemoryStore) GetOrCreateToken(_ context.Context, userID int64, newKey func() (string, error)) (*models.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return nil, ErrNotFound
	}
	for _, t := range s.tokens {
		if t.UserID == userID {
			copied := *t
			return &copied, nil
		}
	}

	key, err := newKey()
	if err != nil {
		return nil, err
	}
	t := &models.Token{Key: key, UserID: userID, CreatedAt: s.now()}
	s.tokens[key] = t
	copied := *t
	return &copied, nil
}

func (s *MemoryStore) GetUserByToken(_ context.Context, key string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tokens[key]
	if !ok {
		return nil, ErrNotFound
	}
	u, ok := s.users[t.UserID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *u
	return &copied, nil
}

// Book operations

func (s *MemoryStore) ListBooks(_ context.Context, userID int64) ([]models.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	books := make([]models.Book, 0)
	for _, b := range s.books {
		if b.UserID == userID {
			books = append(books, *b)
		}
	}
	sort.Slice(books, func(i, j int) bool { return books[i].ID > books[j].ID })
	return books, nil
}

func (s *MemoryStore) GetBook(_ context.Context, userID, id int64) (*models.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, err := s.ownedBook(userID, id)
	if err != nil {
		return nil, err
	}
	copied := *b
	return &copied, nil
}

func (s *MemoryStore) ownedBook(userID, id int64) (*models.Book, error) {
	b, ok := s.books[id]
	if !ok || b.UserID != userID {
		return nil, ErrNotFound
	}
	return b, nil
}

func (s *MemoryStore) CreateBook(_ context.Context, book *models.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[book.UserID]; !ok {
		return ErrNotFound
	}
	s.bookID++
	now := s.now()
	book.ID = s.bookID
	book.CreatedAt = now
	book.UpdatedAt = now
	stored := *book
	s.books[book.ID] = &stored
	return nil
}

func (s *MemoryStore) UpdateBook(_ context.Context, book *models.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.ownedBook(book.UserID, book.ID)
	if err != nil {
		return err
	}
	book.CreatedAt = existing.CreatedAt
	book.Image = existing.Image
	book.UpdatedAt = s.now()
	stored := *book
	s.books[book.ID] = &stored
	return nil
}

func (s *MemoryStore) DeleteBook(_ context.Context, userID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.ownedBook(userID, id); err != nil {
		return err
	}
	delete(s.books, id)
	return nil
}

func (s *MemoryStore) SetBookImage(_ context.Context, userID, id int64, image *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.ownedBook(userID, id)
	if err != nil {
		return err
	}
	if image != nil {
		path := *image
		image = &path
	}
	b.Image = image
	b.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() {}
