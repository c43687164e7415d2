package service

import (
	"context"
	"time"

	"github.com/flagwise/auth-service/internal/repository"
)

// Store interfaces the services depend on. internal/repository implements
// them against Postgres; tests implement them in memory. State transitions
// with atomicity requirements (the failed-login increment-and-check) live
// behind these interfaces so domain code never does read-then-write on
// shared records.

type UserStore interface {
	Create(ctx context.Context, user *repository.User) error
	GetByID(ctx context.Context, id string) (*repository.User, error)
	GetByEmail(ctx context.Context, email string) (*repository.User, error)
	UpdateFederatedProfile(ctx context.Context, id, displayName string, avatarURL *string) error
	UpdateStatus(ctx context.Context, id, status string) error
}

type AdminStore interface {
	GetByID(ctx context.Context, id string) (*repository.Admin, error)
	GetByEmail(ctx context.Context, email string) (*repository.Admin, error)
	RecordFailedLogin(ctx context.Context, id string, threshold int, lockWindow time.Duration) (attempts int, lockedUntil *time.Time, err error)
	ResetLoginAttempts(ctx context.Context, id string) error
	ClearExpiredLock(ctx context.Context, id string) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	UpdatePermissions(ctx context.Context, id string, permissions []string) error
}

type SessionStore interface {
	Add(ctx context.Context, session *repository.AdminSession, maxSessions int) error
	Contains(ctx context.Context, adminID, tokenHash string) (bool, error)
	Remove(ctx context.Context, adminID, tokenHash string) error
	RemoveByID(ctx context.Context, adminID, sessionID string) error
	RemoveAllExcept(ctx context.Context, adminID, keepTokenHash string) error
	PruneExpired(ctx context.Context, adminID string) error
	ListForAdmin(ctx context.Context, adminID string) ([]*repository.AdminSession, error)
}
