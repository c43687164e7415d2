package repository

import (
	"strings"
	"time"
)

// User statuses.
const (
	UserStatusActive    = "active"
	UserStatusPending   = "pending"
	UserStatusSuspended = "suspended"
	UserStatusRevoked   = "revoked"
)

// Admin statuses.
const (
	AdminStatusActive    = "active"
	AdminStatusInactive  = "inactive"
	AdminStatusSuspended = "suspended"
)

// Admin roles.
const (
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

// User is an end-user principal. PasswordHash is nil for federation-only
// accounts; that is a distinct state, not an empty hash.
type User struct {
	ID            string
	Email         string
	EmailVerified bool
	PasswordHash  *string
	DisplayName   string
	AvatarURL     *string
	Provider      *string // federated identity provider name, nil for password accounts
	Status        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Admin is an administrator principal with role/permission gating, a
// failed-login counter and a bounded session registry.
type Admin struct {
	ID                  string
	Email               string
	PasswordHash        *string
	FullName            string
	Role                string
	Permissions         []string
	Status              string
	FailedLoginAttempts int
	LockedUntil         *time.Time
	PasswordChangedAt   *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsLocked is derived from LockedUntil, never stored.
func (a *Admin) IsLocked(now time.Time) bool {
	return a.LockedUntil != nil && a.LockedUntil.After(now)
}

// AdminSession is one entry in an admin's session registry. The raw bearer
// token is never persisted; only its SHA-256 hash is stored.
type AdminSession struct {
	ID         string
	AdminID    string
	TokenHash  string
	Device     string
	IPAddress  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	LastUsedAt time.Time
}

// NormalizeEmail lowercases and trims an email for unique storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
