package service

import (
	"errors"
	"fmt"
)

// Built-in identity providers. Each maps the claim names its callback
// payload uses onto an ExternalProfile.

type googleProvider struct{}

func (googleProvider) Name() string { return "google" }

func (googleProvider) Normalize(payload map[string]any) (*ExternalProfile, error) {
	email, err := stringClaim(payload, "email")
	if err != nil {
		return nil, err
	}
	name, _ := stringClaim(payload, "name")
	profile := &ExternalProfile{
		Provider:    "google",
		Email:       email,
		DisplayName: name,
	}
	if picture, err := stringClaim(payload, "picture"); err == nil {
		profile.AvatarURL = &picture
	}
	return profile, nil
}

type githubProvider struct{}

func (githubProvider) Name() string { return "github" }

func (githubProvider) Normalize(payload map[string]any) (*ExternalProfile, error) {
	email, err := stringClaim(payload, "email")
	if err != nil {
		return nil, err
	}
	name, _ := stringClaim(payload, "name")
	if name == "" {
		name, _ = stringClaim(payload, "login")
	}
	profile := &ExternalProfile{
		Provider:    "github",
		Email:       email,
		DisplayName: name,
	}
	if avatar, err := stringClaim(payload, "avatar_url"); err == nil {
		profile.AvatarURL = &avatar
	}
	return profile, nil
}

// DefaultRegistry returns the provider registry the service ships with.
func DefaultRegistry() *Registry {
	return NewRegistry(googleProvider{}, githubProvider{})
}

func stringClaim(payload map[string]any, key string) (string, error) {
	v, ok := payload[key]
	if !ok {
		return "", fmt.Errorf("missing %q claim", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", errors.New("invalid " + key + " claim")
	}
	return s, nil
}
