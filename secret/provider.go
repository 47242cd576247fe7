package secret

import (
	"context"
	"fmt"
	"os"
)

// Provider resolves references under a single scheme.
type Provider interface {
	// Scheme is the reference prefix this provider handles, without the
	// trailing colon.
	Scheme() string

	// Resolve returns the value the reference points at.
	Resolve(ctx context.Context, ref string) ([]byte, error)
}

// EnvProvider resolves "env:NAME" references from the process environment.
type EnvProvider struct{}

func (EnvProvider) Scheme() string { return "env" }

func (EnvProvider) Resolve(_ context.Context, ref string) ([]byte, error) {
	value, ok := os.LookupEnv(ref)
	if !ok {
		return nil, fmt.Errorf("%w: environment variable %q is not set", ErrNotFound, ref)
	}
	return []byte(value), nil
}

// FileProvider resolves "file:/path" references from the filesystem.
type FileProvider struct{}

func (FileProvider) Scheme() string { return "file" }

func (FileProvider) Resolve(_ context.Context, ref string) ([]byte, error) {
	data, err := os.ReadFile(ref)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return nil, fmt.Errorf("secret: reading %s: %w", ref, err)
	}
	return data, nil
}
