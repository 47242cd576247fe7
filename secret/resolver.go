package secret

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates the referenced value does not exist.
	ErrNotFound = errors.New("secret: not found")

	// ErrUnknownScheme indicates a reference whose scheme has no registered
	// provider.
	ErrUnknownScheme = errors.New("secret: unknown scheme")
)

// Resolver dispatches references to providers by scheme.
type Resolver struct {
	providers map[string]Provider
}

// NewResolver creates a resolver over the given providers.
func NewResolver(providers ...Provider) *Resolver {
	r := &Resolver{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		if p != nil {
			r.providers[p.Scheme()] = p
		}
	}
	return r
}

// Default returns a resolver with the env and file providers registered.
func Default() *Resolver {
	return NewResolver(EnvProvider{}, FileProvider{})
}

// Resolve returns the value a reference points at. A value without a
// registered scheme prefix is returned as-is.
func (r *Resolver) Resolve(ctx context.Context, value string) ([]byte, error) {
	scheme, ref, ok := splitRef(value)
	if !ok {
		return []byte(value), nil
	}
	provider, registered := r.providers[scheme]
	if !registered {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
	}
	return provider.Resolve(ctx, ref)
}

// splitRef splits "scheme:ref". Only short lowercase-alphabetic prefixes
// count as schemes, so literal values containing colons (PEM headers, URLs
// with drive letters) pass through.
func splitRef(value string) (scheme, ref string, ok bool) {
	i := strings.IndexByte(value, ':')
	if i <= 0 || i > 8 || i == len(value)-1 {
		return "", "", false
	}
	for _, c := range value[:i] {
		if c < 'a' || c > 'z' {
			return "", "", false
		}
	}
	return value[:i], value[i+1:], true
}
