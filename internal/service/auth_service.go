package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/flagwise/auth-service/internal/repository"
	"github.com/flagwise/auth-service/pkg/password"
	"github.com/flagwise/auth-service/pkg/token"
)

// AuthConfig carries the admin authentication contract values.
type AuthConfig struct {
	TokenTTL         time.Duration
	LockoutThreshold int
	LockoutWindow    time.Duration
	MaxSessions      int
}

// AuthService implements admin password login with brute-force lockout and
// the multi-device session registry around it.
type AuthService struct {
	adminStore   AdminStore
	sessionStore SessionStore
	codec        *token.Codec
	hasher       *password.Hasher
	cfg          AuthConfig
	log          zerolog.Logger
}

func NewAuthService(
	adminStore AdminStore,
	sessionStore SessionStore,
	codec *token.Codec,
	hasher *password.Hasher,
	cfg AuthConfig,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		adminStore:   adminStore,
		sessionStore: sessionStore,
		codec:        codec,
		hasher:       hasher,
		cfg:          cfg,
		log:          log,
	}
}

type AdminLoginRequest struct {
	Email     string
	Password  string
	Device    string
	IPAddress string
}

type AdminLoginResponse struct {
	Admin *repository.Admin
	Token string
}

// Login authenticates an admin and registers a session for the device.
//
// The lockout state machine is evaluated here: a lapsed lock is cleared
// lazily before the attempt is processed, an active lock rejects without
// touching the counter, and a failed verification runs the store's atomic
// increment-and-check so the threshold decision never uses a stale counter.
func (s *AuthService) Login(ctx context.Context, req *AdminLoginRequest) (*AdminLoginResponse, error) {
	admin, err := s.adminStore.GetByEmail(ctx, req.Email)
	if errors.Is(err, repository.ErrNotFound) {
		s.log.Warn().Str("email", repository.NormalizeEmail(req.Email)).Msg("Admin login for unknown email")
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load admin: %w", err)
	}

	now := time.Now()
	if admin.LockedUntil != nil && !admin.LockedUntil.After(now) {
		if err := s.adminStore.ClearExpiredLock(ctx, admin.ID); err != nil {
			return nil, err
		}
		admin.LockedUntil = nil
		admin.FailedLoginAttempts = 0
	}

	if admin.IsLocked(now) {
		s.log.Warn().Str("admin_id", admin.ID).Msg("Login rejected: account locked")
		return nil, ErrAccountLocked
	}

	if admin.Status != repository.AdminStatusActive {
		s.log.Warn().Str("admin_id", admin.ID).Str("status", admin.Status).Msg("Login rejected: account not active")
		return nil, ErrAccountInactive
	}

	if admin.PasswordHash == nil {
		// Federation-only account; never attempt a comparison.
		return nil, ErrNoPasswordSet
	}

	ok, err := password.Verify(req.Password, *admin.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("password verification error: %w", err)
	}
	if !ok {
		attempts, lockedUntil, err := s.adminStore.RecordFailedLogin(ctx, admin.ID, s.cfg.LockoutThreshold, s.cfg.LockoutWindow)
		if err != nil {
			return nil, err
		}
		if lockedUntil != nil && lockedUntil.After(now) {
			return nil, ErrAccountLocked
		}
		s.log.Warn().Str("admin_id", admin.ID).Int("attempts", attempts).Msg("Invalid admin password")
		return nil, ErrInvalidCredentials
	}

	if err := s.adminStore.ResetLoginAttempts(ctx, admin.ID); err != nil {
		return nil, err
	}
	admin.FailedLoginAttempts = 0
	admin.LockedUntil = nil

	signed, err := s.codec.Issue(admin.ID, token.KindAdmin, s.cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("token issuance failed: %w", err)
	}

	session := &repository.AdminSession{
		AdminID:   admin.ID,
		TokenHash: repository.HashToken(signed),
		Device:    req.Device,
		IPAddress: req.IPAddress,
		ExpiresAt: now.Add(s.cfg.TokenTTL),
	}
	if err := s.sessionStore.Add(ctx, session, s.cfg.MaxSessions); err != nil {
		return nil, fmt.Errorf("session registration failed: %w", err)
	}

	s.log.Info().Str("admin_id", admin.ID).Str("device", req.Device).Msg("Admin login successful")

	return &AdminLoginResponse{Admin: admin, Token: signed}, nil
}

// Logout removes the session holding the presented token.
func (s *AuthService) Logout(ctx context.Context, adminID, tokenHash string) error {
	if err := s.sessionStore.Remove(ctx, adminID, tokenHash); err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}
	s.log.Info().Str("admin_id", adminID).Msg("Admin logout")
	return nil
}

// SessionInfo is the sanitized projection of a registry entry returned to
// callers. It never carries the token or its hash.
type SessionInfo struct {
	ID         string    `json:"id"`
	Device     string    `json:"device"`
	IPAddress  string    `json:"ipAddress"`
	CreatedAt  time.Time `json:"createdAt"`
	LastUsedAt time.Time `json:"lastUsedAt"`
	Current    bool      `json:"current"`
}

// ListSessions returns the caller's live sessions with the entry holding the
// current request's token flagged.
func (s *AuthService) ListSessions(ctx context.Context, adminID, currentTokenHash string) ([]SessionInfo, error) {
	sessions, err := s.sessionStore.ListForAdmin(ctx, adminID)
	if err != nil {
		return nil, err
	}

	infos := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, SessionInfo{
			ID:         sess.ID,
			Device:     sess.Device,
			IPAddress:  maskAddress(sess.IPAddress),
			CreatedAt:  sess.CreatedAt,
			LastUsedAt: sess.LastUsedAt,
			Current:    sess.TokenHash == currentTokenHash,
		})
	}
	return infos, nil
}

// TerminateSession removes exactly one session by its record id.
func (s *AuthService) TerminateSession(ctx context.Context, adminID, sessionID string) error {
	err := s.sessionStore.RemoveByID(ctx, adminID, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrSessionNotFound
	}
	return err
}

// TerminateOtherSessions removes every session except the caller's current one.
func (s *AuthService) TerminateOtherSessions(ctx context.Context, adminID, currentTokenHash string) error {
	return s.sessionStore.RemoveAllExcept(ctx, adminID, currentTokenHash)
}

// ChangePassword verifies the current password, stores the new hash and
// drops every other device's session so they must log in again.
func (s *AuthService) ChangePassword(ctx context.Context, adminID, currentPassword, newPassword, currentTokenHash string) error {
	admin, err := s.adminStore.GetByID(ctx, adminID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrPrincipalNotFound
	}
	if err != nil {
		return err
	}

	if admin.PasswordHash == nil {
		return ErrNoPasswordSet
	}
	ok, err := password.Verify(currentPassword, *admin.PasswordHash)
	if err != nil || !ok {
		return ErrInvalidCredentials
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.adminStore.UpdatePassword(ctx, adminID, newHash); err != nil {
		return err
	}

	if err := s.sessionStore.RemoveAllExcept(ctx, adminID, currentTokenHash); err != nil {
		return err
	}

	s.log.Info().Str("admin_id", adminID).Msg("Admin password changed")
	return nil
}

// UpdateAdminPermissions replaces an admin's permission set. Role gating is
// the caller's concern; the change takes effect on the target's next request
// since permissions are loaded per request, not baked into tokens.
func (s *AuthService) UpdateAdminPermissions(ctx context.Context, adminID string, permissions []string) error {
	err := s.adminStore.UpdatePermissions(ctx, adminID, permissions)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrAccountNotFound
	}
	if err != nil {
		return err
	}

	s.log.Info().Str("admin_id", adminID).Strs("permissions", permissions).Msg("Admin permissions updated")
	return nil
}

// maskAddress hides the host portion of a caller address in session
// listings. IPv4 keeps the first two octets; anything else keeps a short
// prefix.
func maskAddress(addr string) string {
	if addr == "" {
		return ""
	}
	if parts := strings.Split(addr, "."); len(parts) == 4 {
		return parts[0] + "." + parts[1] + ".x.x"
	}
	if len(addr) > 8 {
		return addr[:8] + "…"
	}
	return addr
}
