package credential

import "errors"

// Sentinel errors for credential management.
var (
	// ErrInvalidKey is returned when the delegated-identity private key
	// cannot be parsed.
	ErrInvalidKey = errors.New("credential: invalid signing key")

	// ErrExchangeRejected is returned when the token endpoint rejects the
	// assertion. This is fatal and never retried by this package.
	ErrExchangeRejected = errors.New("credential: token exchange rejected")
)
