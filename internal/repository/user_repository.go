package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateEmail = errors.New("email already registered")
)

// isUniqueViolation reports whether err is a Postgres unique-constraint
// failure (the enforcement point for email uniqueness).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

type UserRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

func NewUserRepository(db *pgxpool.Pool, log zerolog.Logger) *UserRepository {
	return &UserRepository{db: db, log: log}
}

const userColumns = `id, email, email_verified, password_hash, display_name,
	avatar_url, provider, status, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	user := &User{}
	err := row.Scan(
		&user.ID, &user.Email, &user.EmailVerified, &user.PasswordHash,
		&user.DisplayName, &user.AvatarURL, &user.Provider, &user.Status,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return user, nil
}

// Create inserts a new user. The email is lowercase-normalized before
// insertion; a duplicate returns ErrDuplicateEmail.
func (r *UserRepository) Create(ctx context.Context, user *User) error {
	user.ID = uuid.New().String()
	user.Email = NormalizeEmail(user.Email)
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	query := `
		INSERT INTO users (
			id, email, email_verified, password_hash, display_name,
			avatar_url, provider, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.Exec(ctx, query,
		user.ID, user.Email, user.EmailVerified, user.PasswordHash,
		user.DisplayName, user.AvatarURL, user.Provider, user.Status,
		user.CreatedAt, user.UpdatedAt,
	)

	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by id.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRow(ctx, query, id))
}

// GetByEmail retrieves a user by lowercase-normalized email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.db.QueryRow(ctx, query, NormalizeEmail(email)))
}

// UpdateFederatedProfile refreshes the mutable fields carried by an external
// identity assertion and marks the email verified.
func (r *UserRepository) UpdateFederatedProfile(ctx context.Context, id, displayName string, avatarURL *string) error {
	query := `
		UPDATE users
		SET display_name = $2, avatar_url = $3, email_verified = true, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query, id, displayName, avatarURL)
	if err != nil {
		return fmt.Errorf("failed to update federated profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus changes a user's status.
func (r *UserRepository) UpdateStatus(ctx context.Context, id, status string) error {
	query := `UPDATE users SET status = $2, updated_at = NOW() WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to update user status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
