package credential

import (
	"context"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/forgegate/observe"
)

// ManagerConfig configures the credential manager.
type ManagerConfig struct {
	// AppID is the delegated app identity (iss claim of minted assertions).
	AppID string

	// PrivateKey is the PEM-encoded RSA private key for the app.
	PrivateKey []byte

	// Exchanger performs the assertion-for-token exchange.
	Exchanger Exchanger

	// Store caches issued tokens. Default: in-memory store.
	Store TokenStore

	// RefreshMargin is how long before expiry a cached token is treated as
	// stale. Default: 5 minutes.
	RefreshMargin time.Duration

	// Logger receives refresh events. Default: discard.
	Logger observe.Logger
}

// Manager issues installation tokens, caching them per installation and
// collapsing concurrent refreshes into a single exchange.
type Manager struct {
	signer    *AssertionSigner
	exchanger Exchanger
	store     TokenStore
	margin    time.Duration
	logger    observe.Logger
	group     singleflight.Group
	now       func() time.Time
}

// NewManager creates a credential manager. Fails if the private key cannot
// be parsed.
func NewManager(config ManagerConfig) (*Manager, error) {
	signer, err := NewAssertionSigner(config.AppID, config.PrivateKey)
	if err != nil {
		return nil, err
	}

	if config.Store == nil {
		config.Store = NewMemoryTokenStore()
	}
	if config.RefreshMargin <= 0 {
		config.RefreshMargin = 5 * time.Minute
	}
	if config.Logger == nil {
		config.Logger = observe.NopLogger()
	}

	return &Manager{
		signer:    signer,
		exchanger: config.Exchanger,
		store:     config.Store,
		margin:    config.RefreshMargin,
		logger:    config.Logger,
		now:       time.Now,
	}, nil
}

// Token returns a valid installation token, refreshing it if the cached one
// is missing or within the refresh margin of expiry.
//
// If N callers observe a stale entry for the same installation concurrently,
// exactly one exchange is performed; the others wait on the in-flight
// refresh and share its result, success or error.
func (m *Manager) Token(ctx context.Context, installationID int64) (Token, error) {
	if token, ok := m.store.Get(ctx, installationID); ok && m.fresh(token) {
		return token, nil
	}

	v, err, _ := m.group.Do(strconv.FormatInt(installationID, 10), func() (any, error) {
		// A caller that lost the race may enter after the winner already
		// stored a fresh token; serve it without a second exchange.
		if token, ok := m.store.Get(ctx, installationID); ok && m.fresh(token) {
			return token, nil
		}
		return m.refresh(ctx, installationID)
	})
	if err != nil {
		return Token{}, err
	}
	return v.(Token), nil
}

func (m *Manager) fresh(token Token) bool {
	return m.now().Before(token.ExpiresAt.Add(-m.margin))
}

func (m *Manager) refresh(ctx context.Context, installationID int64) (Token, error) {
	assertion, err := m.signer.Sign(m.now())
	if err != nil {
		return Token{}, err
	}

	token, err := m.exchanger.Exchange(ctx, assertion, installationID)
	if err != nil {
		m.logger.Warn(ctx, "token refresh failed",
			observe.F("installation_id", installationID),
			observe.F("error", err.Error()),
		)
		return Token{}, err
	}

	if err := m.store.Put(ctx, installationID, token); err != nil {
		return Token{}, err
	}

	m.logger.Info(ctx, "installation token refreshed",
		observe.F("installation_id", installationID),
		observe.F("expires_at", token.ExpiresAt.UTC().Format(time.RFC3339)),
	)
	return token, nil
}
