package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oarkflow/bookshelf/internal/models"
)

// DB is the subset of pgxpool.Pool used by PostgresStore
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

var userColumns = []string{
	"users.id",
	"users.email",
	"users.name",
	"users.password_hash",
	"users.is_active",
	"users.is_staff",
	"users.is_superuser",
	"users.created_at",
}

var bookColumns = []string{
	"id",
	"user_id",
	"title",
	"author",
	"release_date",
	"genre",
	"description",
	"image",
	"created_at",
	"updated_at",
}

type bookRow struct {
	ID          int64
	UserID      int64
	Title       string
	Author      string
	ReleaseDate time.Time
	Genre       string
	Description string
	Image       *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (r *bookRow) toModel() models.Book {
	return models.Book{
		ID:          r.ID,
		UserID:      r.UserID,
		Title:       r.Title,
		Author:      r.Author,
		ReleaseDate: models.Date{Time: r.ReleaseDate},
		Genre:       r.Genre,
		Description: r.Description,
		Image:       r.Image,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// PostgresStore implements Store backed by PostgreSQL
type PostgresStore struct {
	db DB
}

// NewPostgresStore creates a store using the provided pool
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func selectUsers() squirrel.SelectBuilder {
	return squirrel.Select(userColumns...).
		From("users").
		PlaceholderFormat(squirrel.Dollar)
}

func selectBooks() squirrel.SelectBuilder {
	return squirrel.Select(bookColumns...).
		From("books").
		PlaceholderFormat(squirrel.Dollar)
}

func isViolation(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

func (s *PostgresStore) getUser(ctx context.Context, builder squirrel.SelectBuilder) (*models.User, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}
	var user models.User
	if err := pgxscan.Get(ctx, s.db, &user, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	return &user, nil
}

// User operations

func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	query, args, err := squirrel.Insert("users").
		Columns("email", "name", "password_hash", "is_active", "is_staff", "is_superuser").
		Values(user.Email, user.Name, user.PasswordHash, user.IsActive, user.IsStaff, user.IsSuperuser).
		Suffix("RETURNING id, created_at").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert query: %w", err)
	}
	if err := s.db.QueryRow(ctx, query, args...).Scan(&user.ID, &user.CreatedAt); err != nil {
		if isViolation(err, pgerrcode.UniqueViolation) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return s.getUser(ctx, selectUsers().Where(squirrel.Eq{"users.id": id}))
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, selectUsers().Where("lower(users.email) = lower(?)", email))
}

func (s *PostgresStore) UpdateUser(ctx context.Context, user *models.User) error {
	query, args, err := squirrel.Update("users").
		Set("email", user.Email).
		Set("name", user.Name).
		Set("password_hash", user.PasswordHash).
		Set("is_active", user.IsActive).
		Set("is_staff", user.IsStaff).
		Set("is_superuser", user.IsSuperuser).
		Where(squirrel.Eq{"id": user.ID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building update query: %w", err)
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		if isViolation(err, pgerrcode.UniqueViolation) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("updating user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Token operations

func (s *PostgresStore) getToken(ctx context.Context, userID int64) (*models.Token, error) {
	query, args, err := squirrel.Select("key", "user_id", "created_at").
		From("tokens").
		Where(squirrel.Eq{"user_id": userID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}
	var token models.Token
	if err := pgxscan.Get(ctx, s.db, &token, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning token: %w", err)
	}
	return &token, nil
}

func (s *PostgresStore) GetOrCreateToken(ctx context.Context, userID int64, newKey func() (string, error)) (*models.Token, error) {
	token, err := s.getToken(ctx, userID)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return token, err
	}

	key, err := newKey()
	if err != nil {
		return nil, err
	}
	query, args, err := squirrel.Insert("tokens").
		Columns("key", "user_id").
		Values(key, userID).
		Suffix("ON CONFLICT (user_id) DO NOTHING").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building insert query: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		if isViolation(err, pgerrcode.ForeignKeyViolation) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("inserting token: %w", err)
	}
	return s.getToken(ctx, userID)
}

func (s *PostgresStore) GetUserByToken(ctx context.Context, key string) (*models.User, error) {
	return s.getUser(ctx, selectUsers().
		Join("tokens ON tokens.user_id = users.id").
		Where(squirrel.Eq{"tokens.key": key}))
}

// Book operations

func (s *PostgresStore) ListBooks(ctx context.Context, userID int64) ([]models.Book, error) {
	query, args, err := selectBooks().
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}
	var rows []bookRow
	if err := pgxscan.Select(ctx, s.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("scanning books: %w", err)
	}
	books := make([]models.Book, len(rows))
	for i := range rows {
		books[i] = rows[i].toModel()
	}
	return books, nil
}

func (s *PostgresStore) GetBook(ctx context.Context, userID, id int64) (*models.Book, error) {
	query, args, err := selectBooks().
		Where(squirrel.Eq{"id": id}).
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}
	var row bookRow
	if err := pgxscan.Get(ctx, s.db, &row, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning book: %w", err)
	}
	book := row.toModel()
	return &book, nil
}

func (s *PostgresStore) CreateBook(ctx context.Context, book *models.Book) error {
	query, args, err := squirrel.Insert("books").
		Columns("user_id", "title", "author", "release_date", "genre", "description", "image").
		Values(book.UserID, book.Title, book.Author, book.ReleaseDate.Time, book.Genre, book.Description, book.Image).
		Suffix("RETURNING id, created_at, updated_at").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert query: %w", err)
	}
	if err := s.db.QueryRow(ctx, query, args...).Scan(&book.ID, &book.CreatedAt, &book.UpdatedAt); err != nil {
		if isViolation(err, pgerrcode.ForeignKeyViolation) {
			return ErrNotFound
		}
		return fmt.Errorf("inserting book: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateBook(ctx context.Context, book *models.Book) error {
	query, args, err := squirrel.Update("books").
		Set("title", book.Title).
		Set("author", book.Author).
		Set("release_date", book.ReleaseDate.Time).
		Set("genre", book.Genre).
		Set("description", book.Description).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": book.ID}).
		Where(squirrel.Eq{"user_id": book.UserID}).
		Suffix("RETURNING image, created_at, updated_at").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building update query: %w", err)
	}
	if err := s.db.QueryRow(ctx, query, args...).Scan(&book.Image, &book.CreatedAt, &book.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("updating book: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteBook(ctx context.Context, userID, id int64) error {
	query, args, err := squirrel.Delete("books").
		Where(squirrel.Eq{"id": id}).
		Where(squirrel.Eq{"user_id": userID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building delete query: %w", err)
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deleting book: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetBookImage(ctx context.Context, userID, id int64, image *string) error {
	query, args, err := squirrel.Update("books").
		Set("image", image).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id}).
		Where(squirrel.Eq{"user_id": userID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building update query: %w", err)
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating book image: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.db.Close()
}
