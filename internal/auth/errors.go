package auth

import "errors"

var (
	// ErrTokenInvalid is returned when a token fails signature, issuer or
	// expiry checks.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrInvalidHash is returned when a stored secret looks like a PHC
	// string but cannot be decoded.
	ErrInvalidHash = errors.New("auth: invalid secret hash")

	// ErrSecretRequired is returned when signing without a key.
	ErrSecretRequired = errors.New("auth: signing secret required")
)
