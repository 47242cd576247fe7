package credential

import (
	"context"
	"sync"
	"time"
)

// Token is an installation-scoped access token with its expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// TokenStore holds cached tokens keyed by installation id.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - The in-memory implementation suffices for single-process deployments;
//   multi-instance deployments may back this with a shared store.
type TokenStore interface {
	// Get returns the cached token for the installation. Returns
	// (Token{}, false) on miss or expiry.
	Get(ctx context.Context, installationID int64) (Token, bool)

	// Put stores a token for the installation, replacing any prior entry.
	Put(ctx context.Context, installationID int64, token Token) error
}

// MemoryTokenStore is an in-memory TokenStore.
type MemoryTokenStore struct {
	mu      sync.RWMutex
	entries map[int64]Token
}

// NewMemoryTokenStore creates an empty in-memory token store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{entries: make(map[int64]Token)}
}

// Get retrieves a cached token. Expired entries are cleaned up lazily.
func (s *MemoryTokenStore) Get(_ context.Context, installationID int64) (Token, bool) {
	s.mu.RLock()
	token, ok := s.entries[installationID]
	s.mu.RUnlock()

	if !ok {
		return Token{}, false
	}

	if time.Now().After(token.ExpiresAt) {
		s.mu.Lock()
		// Re-check under the write lock: a refresh may have replaced it.
		if current, ok := s.entries[installationID]; ok && current == token {
			delete(s.entries, installationID)
		}
		s.mu.Unlock()
		return Token{}, false
	}

	return token, true
}

// Put stores a token, replacing any prior entry for the installation.
func (s *MemoryTokenStore) Put(_ context.Context, installationID int64, token Token) error {
	s.mu.Lock()
	s.entries[installationID] = token
	s.mu.Unlock()
	return nil
}

// Ensure MemoryTokenStore implements TokenStore.
var _ TokenStore = (*MemoryTokenStore)(nil)
