package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

type AdminRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

func NewAdminRepository(db *pgxpool.Pool, log zerolog.Logger) *AdminRepository {
	return &AdminRepository{db: db, log: log}
}

const adminColumns = `id, email, password_hash, full_name, role, permissions,
	status, failed_login_attempts, locked_until, password_changed_at,
	created_at, updated_at`

func scanAdmin(row pgx.Row) (*Admin, error) {
	admin := &Admin{}
	err := row.Scan(
		&admin.ID, &admin.Email, &admin.PasswordHash, &admin.FullName,
		&admin.Role, &admin.Permissions, &admin.Status,
		&admin.FailedLoginAttempts, &admin.LockedUntil, &admin.PasswordChangedAt,
		&admin.CreatedAt, &admin.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan admin: %w", err)
	}
	return admin, nil
}

// Create inserts a new admin. A duplicate email returns ErrDuplicateEmail.
func (r *AdminRepository) Create(ctx context.Context, admin *Admin) error {
	admin.ID = uuid.New().String()
	admin.Email = NormalizeEmail(admin.Email)
	now := time.Now()
	admin.CreatedAt = now
	admin.UpdatedAt = now
	if admin.Permissions == nil {
		admin.Permissions = []string{}
	}

	query := `
		INSERT INTO admins (
			id, email, password_hash, full_name, role, permissions,
			status, failed_login_attempts, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9)
	`

	_, err := r.db.Exec(ctx, query,
		admin.ID, admin.Email, admin.PasswordHash, admin.FullName,
		admin.Role, admin.Permissions, admin.Status,
		admin.CreatedAt, admin.UpdatedAt,
	)

	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("failed to create admin: %w", err)
	}
	return nil
}

// GetByID retrieves an admin by id.
func (r *AdminRepository) GetByID(ctx context.Context, id string) (*Admin, error) {
	query := `SELECT ` + adminColumns + ` FROM admins WHERE id = $1`
	return scanAdmin(r.db.QueryRow(ctx, query, id))
}

// GetByEmail retrieves an admin by lowercase-normalized email.
func (r *AdminRepository) GetByEmail(ctx context.Context, email string) (*Admin, error) {
	query := `SELECT ` + adminColumns + ` FROM admins WHERE email = $1`
	return scanAdmin(r.db.QueryRow(ctx, query, NormalizeEmail(email)))
}

// RecordFailedLogin increments the failed-attempt counter and, when the
// incremented value reaches the threshold, sets locked_until in the same
// statement. The increment-and-check is a single conditional update so two
// concurrent failures cannot both observe a pre-increment counter.
func (r *AdminRepository) RecordFailedLogin(ctx context.Context, id string, threshold int, lockWindow time.Duration) (attempts int, lockedUntil *time.Time, err error) {
	query := `
		UPDATE admins
		SET failed_login_attempts = failed_login_attempts + 1,
		    locked_until = CASE
		        WHEN failed_login_attempts + 1 >= $2 THEN NOW() + $3::interval
		        ELSE locked_until
		    END,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING failed_login_attempts, locked_until
	`

	interval := fmt.Sprintf("%d seconds", int64(lockWindow.Seconds()))
	err = r.db.QueryRow(ctx, query, id, threshold, interval).Scan(&attempts, &lockedUntil)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil, ErrNotFound
	}
	if err != nil {
		return 0, nil, fmt.Errorf("failed to record failed login: %w", err)
	}

	if lockedUntil != nil {
		r.log.Warn().Str("admin_id", id).Int("attempts", attempts).
			Time("locked_until", *lockedUntil).Msg("Admin account locked")
	}
	return attempts, lockedUntil, nil
}

// ResetLoginAttempts clears the failed-attempt counter and any lock after a
// successful verification.
func (r *AdminRepository) ResetLoginAttempts(ctx context.Context, id string) error {
	query := `
		UPDATE admins
		SET failed_login_attempts = 0, locked_until = NULL, updated_at = NOW()
		WHERE id = $1
	`

	_, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to reset login attempts: %w", err)
	}
	return nil
}

// ClearExpiredLock lazily transitions a lapsed lock back to the unlocked
// state; the counter restarts from zero for the attempt in flight. A no-op
// when the lock is still active or was never set.
func (r *AdminRepository) ClearExpiredLock(ctx context.Context, id string) error {
	query := `
		UPDATE admins
		SET failed_login_attempts = 0, locked_until = NULL, updated_at = NOW()
		WHERE id = $1 AND locked_until IS NOT NULL AND locked_until <= NOW()
	`

	_, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to clear expired lock: %w", err)
	}
	return nil
}

// UpdatePassword replaces the password hash and stamps password_changed_at.
func (r *AdminRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	query := `
		UPDATE admins
		SET password_hash = $2, password_changed_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query, id, passwordHash)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdatePermissions replaces the admin's permission set.
func (r *AdminRepository) UpdatePermissions(ctx context.Context, id string, permissions []string) error {
	if permissions == nil {
		permissions = []string{}
	}
	query := `UPDATE admins SET permissions = $2, updated_at = NOW() WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, permissions)
	if err != nil {
		return fmt.Errorf("failed to update permissions: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
