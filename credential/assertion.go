package credential

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// assertionBackdate is subtracted from iat to tolerate clock drift
	// between this process and the token endpoint.
	assertionBackdate = time.Minute

	// assertionValidity is the lifetime of a minted assertion.
	assertionValidity = 10 * time.Minute
)

// AssertionSigner mints short-lived RS256 assertions proving the delegated
// app identity.
type AssertionSigner struct {
	appID string
	key   *rsa.PrivateKey
}

// NewAssertionSigner parses the PEM-encoded RSA private key and returns a
// signer for the given app id.
func NewAssertionSigner(appID string, privateKeyPEM []byte) (*AssertionSigner, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return &AssertionSigner{appID: appID, key: key}, nil
}

// Sign mints an assertion valid from now (backdated one minute) for ten
// minutes, with the app id as issuer.
func (s *AssertionSigner) Sign(now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    s.appID,
		IssuedAt:  jwt.NewNumericDate(now.Add(-assertionBackdate)),
		ExpiresAt: jwt.NewNumericDate(now.Add(assertionValidity)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("%w: signing assertion: %v", ErrInvalidKey, err)
	}
	return signed, nil
}
