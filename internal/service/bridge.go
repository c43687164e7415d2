package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/flagwise/auth-service/internal/repository"
)

// ExternalProfile is the normalized form of a third-party identity
// assertion. The assertion itself is verified out-of-band by the provider's
// redirect flow; by the time a profile reaches the bridge it is trusted.
type ExternalProfile struct {
	Provider    string
	Email       string
	DisplayName string
	AvatarURL   *string
}

// Provider normalizes a provider-specific callback payload into an
// ExternalProfile.
type Provider interface {
	Name() string
	Normalize(payload map[string]any) (*ExternalProfile, error)
}

// Registry holds the configured identity providers. It is built once at
// service start and never mutated from request handling code.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	m := make(map[string]Provider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	return &Registry{providers: m}
}

func (r *Registry) Lookup(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// Bridge maps external identity assertions to local user records.
type Bridge struct {
	userStore UserStore
	registry  *Registry
	log       zerolog.Logger
}

func NewBridge(userStore UserStore, registry *Registry, log zerolog.Logger) *Bridge {
	return &Bridge{
		userStore: userStore,
		registry:  registry,
		log:       log,
	}
}

// ResolveCallback normalizes a raw provider payload and resolves it to a
// local user.
func (b *Bridge) ResolveCallback(ctx context.Context, providerName string, payload map[string]any) (*repository.User, error) {
	provider, ok := b.registry.Lookup(providerName)
	if !ok {
		return nil, ErrUnknownProvider
	}

	profile, err := provider.Normalize(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidProfile, providerName, err)
	}
	return b.Resolve(ctx, profile)
}

// Resolve looks up the user carried by the profile's email, creating an
// active federation-only account if none exists. Idempotent under
// concurrent invocation: the store's email uniqueness constraint is the
// enforcement point, and a race-induced duplicate failure is retried as a
// lookup rather than surfaced.
func (b *Bridge) Resolve(ctx context.Context, profile *ExternalProfile) (*repository.User, error) {
	email := repository.NormalizeEmail(profile.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: profile carries no email", ErrInvalidProfile)
	}

	user, err := b.userStore.GetByEmail(ctx, email)
	if err == nil {
		if uerr := b.userStore.UpdateFederatedProfile(ctx, user.ID, profile.DisplayName, profile.AvatarURL); uerr != nil {
			return nil, uerr
		}
		user.DisplayName = profile.DisplayName
		user.AvatarURL = profile.AvatarURL
		user.EmailVerified = true
		return user, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	provider := profile.Provider
	user = &repository.User{
		Email:         email,
		EmailVerified: true,
		PasswordHash:  nil,
		DisplayName:   profile.DisplayName,
		AvatarURL:     profile.AvatarURL,
		Provider:      &provider,
		Status:        repository.UserStatusActive,
	}

	err = b.userStore.Create(ctx, user)
	if errors.Is(err, repository.ErrDuplicateEmail) {
		// Lost the creation race to a concurrent first login; the record
		// now exists, so re-read it.
		b.log.Debug().Str("email", email).Msg("Concurrent federated signup, re-reading existing user")
		return b.userStore.GetByEmail(ctx, email)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create federated user: %w", err)
	}

	b.log.Info().Str("user_id", user.ID).Str("provider", provider).Msg("Federated user created")
	return user, nil
}
