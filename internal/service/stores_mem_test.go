package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flagwise/auth-service/internal/repository"
)

// In-memory store implementations with the same atomicity semantics as the
// Postgres repositories.

type memUserStore struct {
	mu    sync.Mutex
	users map[string]*repository.User // by id
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: make(map[string]*repository.User)}
}

func copyUser(u *repository.User) *repository.User {
	cp := *u
	return &cp
}

func (s *memUserStore) Create(_ context.Context, user *repository.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := repository.NormalizeEmail(user.Email)
	for _, existing := range s.users {
		if existing.Email == email {
			return repository.ErrDuplicateEmail
		}
	}

	user.ID = uuid.New().String()
	user.Email = email
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	s.users[user.ID] = copyUser(user)
	return nil
}

func (s *memUserStore) GetByID(_ context.Context, id string) (*repository.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.users[id]; ok {
		return copyUser(u), nil
	}
	return nil, repository.ErrNotFound
}

func (s *memUserStore) GetByEmail(_ context.Context, email string) (*repository.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email = repository.NormalizeEmail(email)
	for _, u := range s.users {
		if u.Email == email {
			return copyUser(u), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *memUserStore) UpdateFederatedProfile(_ context.Context, id, displayName string, avatarURL *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.DisplayName = displayName
	u.AvatarURL = avatarURL
	u.EmailVerified = true
	u.UpdatedAt = time.Now()
	return nil
}

func (s *memUserStore) UpdateStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.Status = status
	u.UpdatedAt = time.Now()
	return nil
}

type memAdminStore struct {
	mu     sync.Mutex
	admins map[string]*repository.Admin
}

func newMemAdminStore() *memAdminStore {
	return &memAdminStore{admins: make(map[string]*repository.Admin)}
}

func copyAdmin(a *repository.Admin) *repository.Admin {
	cp := *a
	if a.Permissions != nil {
		cp.Permissions = append([]string(nil), a.Permissions...)
	}
	return &cp
}

func (s *memAdminStore) put(a *repository.Admin) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.Email = repository.NormalizeEmail(a.Email)
	s.admins[a.ID] = copyAdmin(a)
}

func (s *memAdminStore) GetByID(_ context.Context, id string) (*repository.Admin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.admins[id]; ok {
		return copyAdmin(a), nil
	}
	return nil, repository.ErrNotFound
}

func (s *memAdminStore) GetByEmail(_ context.Context, email string) (*repository.Admin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email = repository.NormalizeEmail(email)
	for _, a := range s.admins {
		if a.Email == email {
			return copyAdmin(a), nil
		}
	}
	return nil, repository.ErrNotFound
}

// RecordFailedLogin performs the increment-and-check under one lock, like
// the single conditional UPDATE in the real store.
func (s *memAdminStore) RecordFailedLogin(_ context.Context, id string, threshold int, lockWindow time.Duration) (int, *time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.admins[id]
	if !ok {
		return 0, nil, repository.ErrNotFound
	}

	a.FailedLoginAttempts++
	if a.FailedLoginAttempts >= threshold {
		until := time.Now().Add(lockWindow)
		a.LockedUntil = &until
	}
	return a.FailedLoginAttempts, a.LockedUntil, nil
}

func (s *memAdminStore) ResetLoginAttempts(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.admins[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.FailedLoginAttempts = 0
	a.LockedUntil = nil
	return nil
}

func (s *memAdminStore) ClearExpiredLock(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.admins[id]
	if !ok {
		return repository.ErrNotFound
	}
	if a.LockedUntil != nil && !a.LockedUntil.After(time.Now()) {
		a.LockedUntil = nil
		a.FailedLoginAttempts = 0
	}
	return nil
}

func (s *memAdminStore) UpdatePassword(_ context.Context, id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.admins[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.PasswordHash = &passwordHash
	now := time.Now()
	a.PasswordChangedAt = &now
	return nil
}

func (s *memAdminStore) UpdatePermissions(_ context.Context, id string, permissions []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.admins[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.Permissions = append([]string(nil), permissions...)
	return nil
}

type memSessionStore struct {
	mu       sync.Mutex
	sessions map[string][]*repository.AdminSession // adminID -> entries, oldest first
	seq      int
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: make(map[string][]*repository.AdminSession)}
}

func (s *memSessionStore) Add(_ context.Context, session *repository.AdminSession, maxSessions int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	session.ID = fmt.Sprintf("session-%d", s.seq)
	now := time.Now()
	session.CreatedAt = now
	session.LastUsedAt = now

	cp := *session
	entries := append(s.sessions[session.AdminID], &cp)
	for len(entries) > maxSessions {
		entries = entries[1:] // oldest-created first
	}
	s.sessions[session.AdminID] = entries
	return nil
}

func (s *memSessionStore) Contains(_ context.Context, adminID, tokenHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, e := range s.sessions[adminID] {
		if e.TokenHash == tokenHash && e.ExpiresAt.After(now) {
			e.LastUsedAt = now
			return true, nil
		}
	}
	return false, nil
}

func (s *memSessionStore) Remove(_ context.Context, adminID, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.sessions[adminID]
	for i, e := range entries {
		if e.TokenHash == tokenHash {
			s.sessions[adminID] = append(entries[:i], entries[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *memSessionStore) RemoveByID(_ context.Context, adminID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.sessions[adminID]
	for i, e := range entries {
		if e.ID == sessionID {
			s.sessions[adminID] = append(entries[:i], entries[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (s *memSessionStore) RemoveAllExcept(_ context.Context, adminID, keepTokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.sessions[adminID][:0]
	for _, e := range s.sessions[adminID] {
		if e.TokenHash == keepTokenHash {
			kept = append(kept, e)
		}
	}
	s.sessions[adminID] = kept
	return nil
}

func (s *memSessionStore) PruneExpired(_ context.Context, adminID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	kept := s.sessions[adminID][:0]
	for _, e := range s.sessions[adminID] {
		if e.ExpiresAt.After(now) {
			kept = append(kept, e)
		}
	}
	s.sessions[adminID] = kept
	return nil
}

func (s *memSessionStore) ListForAdmin(_ context.Context, adminID string) ([]*repository.AdminSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	out := make([]*repository.AdminSession, 0)
	entries := s.sessions[adminID]
	// Newest first, like the real store.
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].ExpiresAt.After(now) {
			cp := *entries[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memSessionStore) count(adminID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions[adminID])
}
