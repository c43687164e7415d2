package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/flagwise/auth-service/internal/repository"
	"github.com/flagwise/auth-service/pkg/password"
	"github.com/flagwise/auth-service/pkg/token"
)

type authzFixture struct {
	authz    *Authorizer
	auth     *AuthService
	users    *memUserStore
	admins   *memAdminStore
	sessions *memSessionStore
	codec    *token.Codec
	hasher   *password.Hasher
}

func newAuthzFixture(t *testing.T) *authzFixture {
	t.Helper()

	codec, err := token.NewCodec("test-secret-for-authorizer", "flagwise-auth-test", time.Hour)
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}

	users := newMemUserStore()
	admins := newMemAdminStore()
	sessions := newMemSessionStore()
	hasher := password.NewHasher(&testHashParams)

	return &authzFixture{
		authz:    NewAuthorizer(users, admins, sessions, codec, zerolog.Nop()),
		auth:     NewAuthService(admins, sessions, codec, hasher, testAuthConfig, zerolog.Nop()),
		users:    users,
		admins:   admins,
		sessions: sessions,
		codec:    codec,
		hasher:   hasher,
	}
}

func (f *authzFixture) seedUser(t *testing.T, email string) *repository.User {
	t.Helper()
	user := &repository.User{
		Email:  email,
		Status: repository.UserStatusActive,
	}
	if err := f.users.Create(context.Background(), user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return user
}

func (f *authzFixture) adminLogin(t *testing.T, email, pass string) (admin *repository.Admin, bearer string) {
	t.Helper()

	hash, err := f.hasher.Hash(pass)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	admin = &repository.Admin{
		Email:        email,
		PasswordHash: &hash,
		Role:         repository.RoleAdmin,
		Permissions:  []string{"reports:read"},
		Status:       repository.AdminStatusActive,
	}
	f.admins.put(admin)

	resp, err := f.auth.Login(context.Background(), &AdminLoginRequest{Email: email, Password: pass})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	return admin, resp.Token
}

func TestAuthenticateUser(t *testing.T) {
	f := newAuthzFixture(t)
	user := f.seedUser(t, "reader@example.com")

	bearer, err := f.codec.Issue(user.ID, token.KindUser, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	principal, err := f.authz.Authenticate(context.Background(), bearer)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if principal.ID != user.ID || principal.Kind != token.KindUser {
		t.Errorf("principal = %+v, want user %s", principal, user.ID)
	}
	if principal.IsAdmin() {
		t.Error("user principal should not be admin")
	}
}

func TestAuthenticateTokenFailures(t *testing.T) {
	f := newAuthzFixture(t)
	user := f.seedUser(t, "reader@example.com")

	expired, err := f.codec.Issue(user.ID, token.KindUser, time.Millisecond)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	tests := []struct {
		name    string
		bearer  string
		wantErr error
	}{
		{"missing", "", ErrMissingToken},
		{"garbage", "not-a-token", ErrInvalidToken},
		{"expired", expired, ErrTokenExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.authz.Authenticate(context.Background(), tt.bearer); !errors.Is(err, tt.wantErr) {
				t.Errorf("Authenticate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAuthenticatePrincipalGone(t *testing.T) {
	f := newAuthzFixture(t)

	bearer, err := f.codec.Issue("deleted-user-id", token.KindUser, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if _, err := f.authz.Authenticate(context.Background(), bearer); !errors.Is(err, ErrPrincipalNotFound) {
		t.Errorf("Authenticate() error = %v, want ErrPrincipalNotFound", err)
	}
}

func TestAuthenticateInactiveUser(t *testing.T) {
	f := newAuthzFixture(t)
	user := f.seedUser(t, "reader@example.com")

	f.users.mu.Lock()
	f.users.users[user.ID].Status = repository.UserStatusSuspended
	f.users.mu.Unlock()

	bearer, _ := f.codec.Issue(user.ID, token.KindUser, time.Hour)
	if _, err := f.authz.Authenticate(context.Background(), bearer); !errors.Is(err, ErrAccountInactive) {
		t.Errorf("Authenticate() error = %v, want ErrAccountInactive", err)
	}
}

func TestAuthenticateAdminWithLiveSession(t *testing.T) {
	f := newAuthzFixture(t)
	admin, bearer := f.adminLogin(t, "ops@flagwise.dev", "pw")

	principal, err := f.authz.Authenticate(context.Background(), bearer)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if principal.ID != admin.ID || !principal.IsAdmin() {
		t.Errorf("principal = %+v, want admin %s", principal, admin.ID)
	}
	if principal.Role != repository.RoleAdmin {
		t.Errorf("Role = %q, want admin", principal.Role)
	}
	if principal.TokenHash != repository.HashToken(bearer) {
		t.Error("TokenHash should match the presented token")
	}
}

func TestAuthenticateAdminRevokedSession(t *testing.T) {
	f := newAuthzFixture(t)
	admin, bearer := f.adminLogin(t, "ops@flagwise.dev", "pw")

	// Server-side revocation of a cryptographically valid token.
	if err := f.sessions.Remove(context.Background(), admin.ID, repository.HashToken(bearer)); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	if _, err := f.authz.Authenticate(context.Background(), bearer); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Authenticate() error = %v, want ErrSessionNotFound", err)
	}
}

func TestAuthenticateAdminExpiredSessionEntry(t *testing.T) {
	f := newAuthzFixture(t)
	admin, bearer := f.adminLogin(t, "ops@flagwise.dev", "pw")

	// Age the registry entry past its expiry; the token itself is still valid.
	f.sessions.mu.Lock()
	for _, e := range f.sessions.sessions[admin.ID] {
		e.ExpiresAt = time.Now().Add(-time.Minute)
	}
	f.sessions.mu.Unlock()

	if _, err := f.authz.Authenticate(context.Background(), bearer); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Authenticate() error = %v, want ErrSessionNotFound", err)
	}

	// The opportunistic prune swept the lapsed entry.
	if got := f.sessions.count(admin.ID); got != 0 {
		t.Errorf("session count after prune = %d, want 0", got)
	}
}

func TestAuthenticateLockedAdmin(t *testing.T) {
	f := newAuthzFixture(t)
	admin, bearer := f.adminLogin(t, "ops@flagwise.dev", "pw")

	until := time.Now().Add(time.Hour)
	f.admins.mu.Lock()
	f.admins.admins[admin.ID].LockedUntil = &until
	f.admins.mu.Unlock()

	if _, err := f.authz.Authenticate(context.Background(), bearer); !errors.Is(err, ErrAccountLocked) {
		t.Errorf("Authenticate() error = %v, want ErrAccountLocked", err)
	}
}

func TestAuthenticateInactiveAdmin(t *testing.T) {
	f := newAuthzFixture(t)
	admin, bearer := f.adminLogin(t, "ops@flagwise.dev", "pw")

	f.admins.mu.Lock()
	f.admins.admins[admin.ID].Status = repository.AdminStatusInactive
	f.admins.mu.Unlock()

	if _, err := f.authz.Authenticate(context.Background(), bearer); !errors.Is(err, ErrAccountInactive) {
		t.Errorf("Authenticate() error = %v, want ErrAccountInactive", err)
	}
}

func TestPrincipalPermissionChecks(t *testing.T) {
	admin := &Principal{
		Kind:        token.KindAdmin,
		Role:        repository.RoleAdmin,
		Permissions: []string{"reports:read", "dictionary:read"},
	}
	super := &Principal{
		Kind: token.KindAdmin,
		Role: repository.RoleSuperAdmin,
	}

	if !admin.HasPermission("reports:read") {
		t.Error("admin should hold granted permission")
	}
	if admin.HasPermission("reports:delete") {
		t.Error("admin should not hold ungranted permission")
	}
	if !super.HasPermission("reports:delete") {
		t.Error("super_admin passes every permission check")
	}

	if !admin.HasRole(repository.RoleAdmin, repository.RoleSuperAdmin) {
		t.Error("admin role should match allowed list")
	}
	if admin.HasRole(repository.RoleSuperAdmin) {
		t.Error("admin role should not match super_admin-only list")
	}
}
