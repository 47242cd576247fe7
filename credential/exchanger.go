package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Exchanger swaps a signed assertion for an installation-scoped token.
type Exchanger interface {
	// Exchange performs one token exchange for the installation. A rejected
	// exchange returns an error wrapping ErrExchangeRejected.
	Exchange(ctx context.Context, assertion string, installationID int64) (Token, error)
}

// HTTPExchangerConfig configures the HTTP token exchanger.
type HTTPExchangerConfig struct {
	// BaseURL is the forge API base URL (e.g. "https://api.github.com").
	BaseURL string

	// HTTPClient is the HTTP client to use for requests.
	// If nil, a default client with 30s timeout is used.
	HTTPClient *http.Client
}

// HTTPExchanger exchanges assertions at the forge's installation token
// endpoint.
type HTTPExchanger struct {
	config HTTPExchangerConfig
}

// NewHTTPExchanger creates an HTTP exchanger.
func NewHTTPExchanger(config HTTPExchangerConfig) *HTTPExchanger {
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPExchanger{config: config}
}

// Exchange POSTs the assertion to /app/installations/{id}/access_tokens and
// decodes the issued token.
func (e *HTTPExchanger) Exchange(ctx context.Context, assertion string, installationID int64) (Token, error) {
	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", e.config.BaseURL, installationID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(nil))
	if err != nil {
		return Token{}, fmt.Errorf("credential: building exchange request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+assertion)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := e.config.HTTPClient.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("credential: token exchange: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Token{}, fmt.Errorf("%w: status %d: %s", ErrExchangeRejected, resp.StatusCode, bytes.TrimSpace(body))
	}

	var issued struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&issued); err != nil {
		return Token{}, fmt.Errorf("%w: decoding response: %v", ErrExchangeRejected, err)
	}
	if issued.Token == "" {
		return Token{}, fmt.Errorf("%w: empty token in response", ErrExchangeRejected)
	}

	return Token{Value: issued.Token, ExpiresAt: issued.ExpiresAt}, nil
}

// Ensure HTTPExchanger implements Exchanger.
var _ Exchanger = (*HTTPExchanger)(nil)
