package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/flagwise/auth-service/internal/repository"
	"github.com/flagwise/auth-service/pkg/token"
)

// Principal is the authenticated identity attached to a request after the
// authorization middleware passes. It carries no secrets; TokenHash is the
// stored form of the presented token, needed by the session endpoints.
type Principal struct {
	ID          string
	Email       string
	Kind        string // token.KindUser or token.KindAdmin
	Role        string // admins only
	Permissions []string
	TokenHash   string
}

func (p *Principal) IsAdmin() bool {
	return p.Kind == token.KindAdmin
}

// HasPermission reports whether the principal may perform the named
// capability. The top role passes every check.
func (p *Principal) HasPermission(perm string) bool {
	if p.Role == repository.RoleSuperAdmin {
		return true
	}
	for _, granted := range p.Permissions {
		if granted == perm {
			return true
		}
	}
	return false
}

// HasRole reports whether the principal's role is one of allowed.
func (p *Principal) HasRole(allowed ...string) bool {
	for _, role := range allowed {
		if p.Role == role {
			return true
		}
	}
	return false
}

// Authorizer is the single entry point every protected request passes
// through: token verification, principal load, status and lock checks, and
// for admins the registry membership check that makes self-verifying tokens
// revocable server-side.
type Authorizer struct {
	userStore    UserStore
	adminStore   AdminStore
	sessionStore SessionStore
	codec        *token.Codec
	log          zerolog.Logger
}

func NewAuthorizer(
	userStore UserStore,
	adminStore AdminStore,
	sessionStore SessionStore,
	codec *token.Codec,
	log zerolog.Logger,
) *Authorizer {
	return &Authorizer{
		userStore:    userStore,
		adminStore:   adminStore,
		sessionStore: sessionStore,
		codec:        codec,
		log:          log,
	}
}

// Authenticate resolves a bearer token to a Principal or one of the stable
// authorization errors.
func (a *Authorizer) Authenticate(ctx context.Context, bearer string) (*Principal, error) {
	if bearer == "" {
		return nil, ErrMissingToken
	}

	claims, err := a.codec.Verify(bearer)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	switch claims.PrincipalKind {
	case token.KindUser:
		return a.authenticateUser(ctx, claims)
	case token.KindAdmin:
		return a.authenticateAdmin(ctx, claims, bearer)
	default:
		return nil, ErrInvalidToken
	}
}

func (a *Authorizer) authenticateUser(ctx context.Context, claims *token.Claims) (*Principal, error) {
	user, err := a.userStore.GetByID(ctx, claims.SubjectID())
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrPrincipalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if user.Status != repository.UserStatusActive {
		return nil, ErrAccountInactive
	}

	return &Principal{
		ID:    user.ID,
		Email: user.Email,
		Kind:  token.KindUser,
	}, nil
}

func (a *Authorizer) authenticateAdmin(ctx context.Context, claims *token.Claims, bearer string) (*Principal, error) {
	admin, err := a.adminStore.GetByID(ctx, claims.SubjectID())
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrPrincipalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load admin: %w", err)
	}

	if admin.Status != repository.AdminStatusActive {
		return nil, ErrAccountInactive
	}
	if admin.IsLocked(time.Now()) {
		return nil, ErrAccountLocked
	}

	// Expired entries for this admin are swept here, on use, rather than by
	// any scheduled job.
	if err := a.sessionStore.PruneExpired(ctx, admin.ID); err != nil {
		a.log.Warn().Err(err).Str("admin_id", admin.ID).Msg("Failed to prune expired sessions")
	}

	tokenHash := repository.HashToken(bearer)
	live, err := a.sessionStore.Contains(ctx, admin.ID, tokenHash)
	if err != nil {
		return nil, fmt.Errorf("failed to check session registry: %w", err)
	}
	if !live {
		// Cryptographically valid but revoked or lapsed server-side.
		return nil, ErrSessionNotFound
	}

	return &Principal{
		ID:          admin.ID,
		Email:       admin.Email,
		Kind:        token.KindAdmin,
		Role:        admin.Role,
		Permissions: admin.Permissions,
		TokenHash:   tokenHash,
	}, nil
}
