package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// SessionRepository is the per-admin session registry: the bounded list of
// currently-valid, revocable token records behind multi-device tracking and
// remote logout.
type SessionRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

func NewSessionRepository(db *pgxpool.Pool, log zerolog.Logger) *SessionRepository {
	return &SessionRepository{db: db, log: log}
}

// HashToken derives the stored form of a bearer token. Raw tokens never
// touch the database.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Add appends a session record for the admin and evicts the oldest-created
// entries beyond maxSessions. The insert and the eviction are separate
// statements: a transient count of maxSessions+1 under concurrent logins is
// acceptable and corrected on the next mutation.
func (r *SessionRepository) Add(ctx context.Context, session *AdminSession, maxSessions int) error {
	session.ID = uuid.New().String()
	now := time.Now()
	session.CreatedAt = now
	session.LastUsedAt = now

	insert := `
		INSERT INTO admin_sessions (
			id, admin_id, token_hash, device, ip_address,
			created_at, expires_at, last_used_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Exec(ctx, insert,
		session.ID, session.AdminID, session.TokenHash, session.Device,
		session.IPAddress, session.CreatedAt, session.ExpiresAt, session.LastUsedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add session: %w", err)
	}

	evict := `
		DELETE FROM admin_sessions
		WHERE admin_id = $1 AND id NOT IN (
			SELECT id FROM admin_sessions
			WHERE admin_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		)
	`

	tag, err := r.db.Exec(ctx, evict, session.AdminID, maxSessions)
	if err != nil {
		return fmt.Errorf("failed to evict oldest sessions: %w", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		r.log.Debug().Str("admin_id", session.AdminID).Int64("evicted", n).
			Msg("Evicted oldest sessions beyond cap")
	}
	return nil
}

// Contains reports whether the token is a live entry in the admin's
// registry. An expired-but-present entry counts as absent. A hit refreshes
// last_used_at.
func (r *SessionRepository) Contains(ctx context.Context, adminID, tokenHash string) (bool, error) {
	query := `
		UPDATE admin_sessions
		SET last_used_at = NOW()
		WHERE admin_id = $1 AND token_hash = $2 AND expires_at > NOW()
	`

	tag, err := r.db.Exec(ctx, query, adminID, tokenHash)
	if err != nil {
		return false, fmt.Errorf("failed to check session: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Remove deletes the registry entry holding the given token.
func (r *SessionRepository) Remove(ctx context.Context, adminID, tokenHash string) error {
	query := `DELETE FROM admin_sessions WHERE admin_id = $1 AND token_hash = $2`

	_, err := r.db.Exec(ctx, query, adminID, tokenHash)
	if err != nil {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}

// RemoveByID deletes one registry entry by its record id.
func (r *SessionRepository) RemoveByID(ctx context.Context, adminID, sessionID string) error {
	query := `DELETE FROM admin_sessions WHERE admin_id = $1 AND id = $2`

	tag, err := r.db.Exec(ctx, query, adminID, sessionID)
	if err != nil {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RemoveAllExcept drops every session for the admin other than the one
// holding keepTokenHash ("terminate all other sessions").
func (r *SessionRepository) RemoveAllExcept(ctx context.Context, adminID, keepTokenHash string) error {
	query := `DELETE FROM admin_sessions WHERE admin_id = $1 AND token_hash <> $2`

	_, err := r.db.Exec(ctx, query, adminID, keepTokenHash)
	if err != nil {
		return fmt.Errorf("failed to remove other sessions: %w", err)
	}
	return nil
}

// PruneExpired drops lapsed entries for the admin. Invoked opportunistically
// during authorization checks; there is no background sweep.
func (r *SessionRepository) PruneExpired(ctx context.Context, adminID string) error {
	query := `DELETE FROM admin_sessions WHERE admin_id = $1 AND expires_at <= NOW()`

	_, err := r.db.Exec(ctx, query, adminID)
	if err != nil {
		return fmt.Errorf("failed to prune expired sessions: %w", err)
	}
	return nil
}

// ListForAdmin returns the admin's live sessions, newest first.
func (r *SessionRepository) ListForAdmin(ctx context.Context, adminID string) ([]*AdminSession, error) {
	query := `
		SELECT id, admin_id, token_hash, device, ip_address,
		       created_at, expires_at, last_used_at
		FROM admin_sessions
		WHERE admin_id = $1 AND expires_at > NOW()
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, query, adminID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*AdminSession, 0)
	for rows.Next() {
		s := &AdminSession{}
		err := rows.Scan(
			&s.ID, &s.AdminID, &s.TokenHash, &s.Device, &s.IPAddress,
			&s.CreatedAt, &s.ExpiresAt, &s.LastUsedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
