package service

import "errors"

// Stable error kinds surfaced to the HTTP boundary. Messages stay generic so
// a failed login never reveals which field was wrong or whether the account
// exists.
var (
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrNoPasswordSet          = errors.New("no password set for account")
	ErrAccountLocked          = errors.New("account is locked")
	ErrAccountInactive        = errors.New("account is not active")
	ErrInvalidToken           = errors.New("invalid token")
	ErrTokenExpired           = errors.New("token expired")
	ErrMissingToken           = errors.New("missing authorization token")
	ErrPrincipalNotFound      = errors.New("principal not found")
	ErrSessionNotFound        = errors.New("session not found")
	ErrInsufficientPermission = errors.New("insufficient permission")
	ErrDuplicateAccount       = errors.New("account already exists")
	ErrUnknownProvider        = errors.New("unknown identity provider")
	ErrInvalidProfile         = errors.New("invalid identity profile")
	ErrInvalidStatus          = errors.New("invalid account status")
	ErrAccountNotFound        = errors.New("account not found")
)
