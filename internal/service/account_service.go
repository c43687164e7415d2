package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/flagwise/auth-service/internal/repository"
	"github.com/flagwise/auth-service/pkg/password"
	"github.com/flagwise/auth-service/pkg/token"
)

// AccountService handles end-user registration and login. Users have no
// lockout machine and no session registry; their tokens stand alone until
// expiry.
type AccountService struct {
	userStore UserStore
	bridge    *Bridge
	codec     *token.Codec
	hasher    *password.Hasher
	tokenTTL  time.Duration
	log       zerolog.Logger
}

func NewAccountService(
	userStore UserStore,
	bridge *Bridge,
	codec *token.Codec,
	hasher *password.Hasher,
	tokenTTL time.Duration,
	log zerolog.Logger,
) *AccountService {
	return &AccountService{
		userStore: userStore,
		bridge:    bridge,
		codec:     codec,
		hasher:    hasher,
		tokenTTL:  tokenTTL,
		log:       log,
	}
}

type RegisterRequest struct {
	Email       string
	Password    string
	DisplayName string
}

type UserLoginResponse struct {
	User  *repository.User
	Token string
}

// Register creates a password-based user account.
func (s *AccountService) Register(ctx context.Context, req *RegisterRequest) (*repository.User, error) {
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &repository.User{
		Email:        req.Email,
		PasswordHash: &hash,
		DisplayName:  req.DisplayName,
		Status:       repository.UserStatusActive,
	}

	err = s.userStore.Create(ctx, user)
	if errors.Is(err, repository.ErrDuplicateEmail) {
		return nil, ErrDuplicateAccount
	}
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("user_id", user.ID).Msg("User registered")
	return user, nil
}

// Login authenticates a user by email and password and issues a bearer token.
func (s *AccountService) Login(ctx context.Context, email, pass string) (*UserLoginResponse, error) {
	user, err := s.userStore.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if user.Status != repository.UserStatusActive {
		s.log.Warn().Str("user_id", user.ID).Str("status", user.Status).Msg("User login rejected: not active")
		return nil, ErrAccountInactive
	}

	if user.PasswordHash == nil {
		// Federation-only account attempting a password login.
		return nil, ErrNoPasswordSet
	}

	ok, err := password.Verify(pass, *user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("password verification error: %w", err)
	}
	if !ok {
		s.log.Warn().Str("user_id", user.ID).Msg("Invalid user password")
		return nil, ErrInvalidCredentials
	}

	signed, err := s.codec.Issue(user.ID, token.KindUser, s.tokenTTL)
	if err != nil {
		return nil, fmt.Errorf("token issuance failed: %w", err)
	}

	s.log.Info().Str("user_id", user.ID).Msg("User login successful")
	return &UserLoginResponse{User: user, Token: signed}, nil
}

// FederatedLogin exchanges an external identity callback payload for a local
// user and a normal bearer token. From the token onward the principal is
// indistinguishable from a password login.
func (s *AccountService) FederatedLogin(ctx context.Context, providerName string, payload map[string]any) (*UserLoginResponse, error) {
	user, err := s.bridge.ResolveCallback(ctx, providerName, payload)
	if err != nil {
		return nil, err
	}

	if user.Status != repository.UserStatusActive {
		return nil, ErrAccountInactive
	}

	signed, err := s.codec.Issue(user.ID, token.KindUser, s.tokenTTL)
	if err != nil {
		return nil, fmt.Errorf("token issuance failed: %w", err)
	}

	s.log.Info().Str("user_id", user.ID).Str("provider", providerName).Msg("Federated login successful")
	return &UserLoginResponse{User: user, Token: signed}, nil
}

// SetUserStatus transitions a user between lifecycle states. Tokens already
// issued keep failing at the authorization check while the user is not
// active; no token revocation is needed.
func (s *AccountService) SetUserStatus(ctx context.Context, userID, status string) error {
	switch status {
	case repository.UserStatusActive, repository.UserStatusPending,
		repository.UserStatusSuspended, repository.UserStatusRevoked:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidStatus, status)
	}

	err := s.userStore.UpdateStatus(ctx, userID, status)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrAccountNotFound
	}
	if err != nil {
		return err
	}

	s.log.Info().Str("user_id", userID).Str("status", status).Msg("User status updated")
	return nil
}
