package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/jonwraymond/forgegate/dispatch"
	"github.com/jonwraymond/forgegate/ratelimit"
	"github.com/jonwraymond/forgegate/secret"
)

// Env is the environment-variable configuration, read under the FORGEGATE
// namespace (FORGEGATE_APP_ID, FORGEGATE_RULE_FILE, ...).
type Env struct {
	// AppID is the delegated app identity used to mint assertions.
	AppID string `envconfig:"APP_ID" required:"true"`

	// PrivateKeyRef locates the app's RSA key: "file:/path/to/app.pem",
	// "env:OTHER_VAR", or the PEM text inline.
	PrivateKeyRef string `envconfig:"PRIVATE_KEY" required:"true"`

	APIBaseURL string `envconfig:"API_BASE_URL" default:"https://api.github.com"`

	// RuleFile is the YAML permission rule set loaded at startup.
	RuleFile string `envconfig:"RULE_FILE" required:"true"`

	RateCapacity      float64       `envconfig:"RATE_CAPACITY" default:"100"`
	RateRefillPerHour float64       `envconfig:"RATE_REFILL_PER_HOUR" default:"5000"`
	RatePolicy        string        `envconfig:"RATE_POLICY" default:"reject"`
	RateMaxWait       time.Duration `envconfig:"RATE_MAX_WAIT" default:"1m"`

	RetryMaxAttempts int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// AuditPath is the JSONL audit destination. Empty keeps records in
	// memory only.
	AuditPath string `envconfig:"AUDIT_PATH"`
}

const namespace = "FORGEGATE"

// LoadEnv reads the gateway configuration from the environment.
func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("gateway: loading environment: %w", err)
	}
	return &env, nil
}

// PrivateKey resolves the configured key reference into PEM bytes.
func (e *Env) PrivateKey(ctx context.Context) ([]byte, error) {
	key, err := secret.Default().Resolve(ctx, e.PrivateKeyRef)
	if err != nil {
		return nil, fmt.Errorf("gateway: resolving private key: %w", err)
	}
	return key, nil
}

// RateConfig maps the environment figures onto the limiter's configuration.
// The refill figure is hourly, matching how the hosting API states its quota.
func (e *Env) RateConfig() (ratelimit.Config, error) {
	var policy ratelimit.Policy
	switch e.RatePolicy {
	case "reject", "":
		policy = ratelimit.Reject
	case "block":
		policy = ratelimit.Block
	default:
		return ratelimit.Config{}, fmt.Errorf("gateway: unknown rate policy %q", e.RatePolicy)
	}
	return ratelimit.Config{
		Capacity: e.RateCapacity,
		Rate:     e.RateRefillPerHour / 3600,
		Policy:   policy,
		MaxWait:  e.RateMaxWait,
	}, nil
}

// RetryConfig maps the environment onto the dispatcher's retry bounds.
func (e *Env) RetryConfig() dispatch.RetryConfig {
	return dispatch.RetryConfig{
		MaxAttempts: e.RetryMaxAttempts,
		Jitter:      true,
	}
}
