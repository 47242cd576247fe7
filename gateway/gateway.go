package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonwraymond/forgegate/audit"
	"github.com/jonwraymond/forgegate/credential"
	"github.com/jonwraymond/forgegate/dispatch"
	"github.com/jonwraymond/forgegate/forge"
	"github.com/jonwraymond/forgegate/health"
	"github.com/jonwraymond/forgegate/observe"
	"github.com/jonwraymond/forgegate/permission"
	"github.com/jonwraymond/forgegate/ratelimit"
)

type contextKey int

const installationKey contextKey = 0

func withInstallation(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, installationKey, id)
}

func installationFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(installationKey).(int64)
	return id, ok
}

// Config assembles a gateway programmatically. FromEnv builds one from the
// environment instead.
type Config struct {
	// AppID and PrivateKey identify the delegated app.
	AppID      string
	PrivateKey []byte

	// APIBaseURL is the forge API base URL.
	// Default: "https://api.github.com"
	APIBaseURL string

	// Rules is the startup permission rule set.
	Rules []permission.Rule

	// Rate configures the per-installation budget.
	Rate ratelimit.Config

	// Retry bounds the dispatcher's transient-failure retries.
	Retry dispatch.RetryConfig

	// Audit receives every invocation record. Default: in-memory.
	Audit audit.Recorder

	// Logger for all layers. Default: discard.
	Logger observe.Logger

	// Metrics for the dispatcher. Default: OTel metrics against the global
	// meter provider.
	Metrics observe.Metrics

	// Tracer for per-invocation spans. Default: no-op tracer.
	Tracer trace.Tracer

	// HTTPClient is shared by the token exchanger and the forge client.
	HTTPClient *http.Client
}

// Gateway is the assembled mediation layer.
type Gateway struct {
	dispatcher *dispatch.Dispatcher
	limiter    *ratelimit.Limiter
	health     *health.Aggregator
	logger     observe.Logger
	closers    []io.Closer
}

// New assembles a gateway from explicit configuration.
func New(config Config) (*Gateway, error) {
	if config.Logger == nil {
		config.Logger = observe.NopLogger()
	}
	if config.Audit == nil {
		config.Audit = audit.NewMemoryRecorder()
	}
	if config.Metrics == nil {
		metrics, err := observe.NewMetrics(otel.GetMeterProvider().Meter("forgegate"))
		if err != nil {
			return nil, fmt.Errorf("gateway: building metrics: %w", err)
		}
		config.Metrics = metrics
	}

	credentials, err := credential.NewManager(credential.ManagerConfig{
		AppID:      config.AppID,
		PrivateKey: config.PrivateKey,
		Exchanger: credential.NewHTTPExchanger(credential.HTTPExchangerConfig{
			BaseURL:    config.APIBaseURL,
			HTTPClient: config.HTTPClient,
		}),
		Logger: config.Logger.With(observe.F("component", "credential")),
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: building credential manager: %w", err)
	}

	for _, rule := range config.Rules {
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("gateway: invalid permission rule: %w", err)
		}
	}
	engine := permission.NewEngine(config.Rules)

	limiter := ratelimit.NewLimiter(config.Rate)

	// The forge's response headers carry the authoritative remaining quota;
	// the reporter clamps the local bucket to it. The request context names
	// the installation the figure belongs to.
	client := forge.NewHTTPClient(forge.HTTPClientConfig{
		BaseURL:    config.APIBaseURL,
		HTTPClient: config.HTTPClient,
		RateReporter: func(ctx context.Context, remaining float64) {
			if id, ok := installationFromContext(ctx); ok {
				limiter.TrueUp(id, remaining)
			}
		},
	})

	log := audit.NewLog(config.Audit, config.Logger.With(observe.F("component", "audit")))

	dispatcher, err := dispatch.New(dispatch.Config{
		Tokens:  credentials,
		Rules:   engine,
		Limiter: limiter,
		Forge:   client,
		Audit:   log,
		Logger:  config.Logger.With(observe.F("component", "dispatch")),
		Metrics: config.Metrics,
		Tracer:  config.Tracer,
		Retry:   config.Retry,
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: building dispatcher: %w", err)
	}

	checks := health.NewAggregator(health.AggregatorConfig{})
	checks.Register(forgeChecker(config.APIBaseURL, config.HTTPClient))
	checks.Register(rulesChecker(config.Rules))

	return &Gateway{
		dispatcher: dispatcher,
		limiter:    limiter,
		health:     checks,
		logger:     config.Logger,
	}, nil
}

// Health exposes the gateway's readiness checks, for wiring into an HTTP
// probe endpoint via health.ReadinessHandler.
func (g *Gateway) Health() *health.Aggregator {
	return g.health
}

// forgeChecker probes the API's unauthenticated rate-limit endpoint. Any
// well-formed HTTP response counts as reachable.
func forgeChecker(baseURL string, client *http.Client) health.Checker {
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return health.NewCheckerFunc("forge", func(ctx context.Context) health.Result {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/rate_limit", nil)
		if err != nil {
			return health.Fail("building probe request", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return health.Fail("forge unreachable", err)
		}
		resp.Body.Close()
		if resp.StatusCode >= 500 {
			return health.Warn(fmt.Sprintf("forge answered %d", resp.StatusCode))
		}
		return health.OK("reachable")
	})
}

// rulesChecker reports a degraded gateway when the rule set is empty:
// default deny turns every invocation away.
func rulesChecker(rules []permission.Rule) health.Checker {
	return health.NewCheckerFunc("rules", func(context.Context) health.Result {
		if len(rules) == 0 {
			return health.Warn("rule set is empty, all invocations deny")
		}
		return health.OK(fmt.Sprintf("%d rules loaded", len(rules)))
	})
}

// FromEnv assembles a gateway from FORGEGATE_* environment variables.
func FromEnv(ctx context.Context) (*Gateway, error) {
	env, err := LoadEnv()
	if err != nil {
		return nil, err
	}

	key, err := env.PrivateKey(ctx)
	if err != nil {
		return nil, err
	}
	rules, err := permission.LoadRules(env.RuleFile)
	if err != nil {
		return nil, fmt.Errorf("gateway: loading rules: %w", err)
	}
	rate, err := env.RateConfig()
	if err != nil {
		return nil, err
	}

	var recorder audit.Recorder
	var closers []io.Closer
	if env.AuditPath != "" {
		f, err := os.OpenFile(env.AuditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("gateway: opening audit file: %w", err)
		}
		recorder = audit.NewJSONLRecorder(f)
		closers = append(closers, f)
	}

	g, err := New(Config{
		AppID:      env.AppID,
		PrivateKey: key,
		APIBaseURL: env.APIBaseURL,
		Rules:      rules,
		Rate:       rate,
		Retry:      env.RetryConfig(),
		Audit:      recorder,
		Logger:     observe.NewLogger(env.LogLevel),
	})
	if err != nil {
		return nil, err
	}
	g.closers = closers
	return g, nil
}

// Close releases resources held by the gateway (the audit file, when open).
func (g *Gateway) Close() error {
	var errs []error
	for _, c := range g.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Identity names the calling principal of a request.
type Identity struct {
	InstallationID int64  `json:"installation_id"`
	ActingUser     string `json:"acting_user,omitempty"`
	Agent          string `json:"agent"`
}

// Request is one tool call over the structured channel.
type Request struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
	Identity  Identity       `json:"identity"`
}

// ErrorBody is the serialized failure shape.
type ErrorBody struct {
	Kind         string `json:"kind"`
	Stage        string `json:"stage"`
	Message      string `json:"message"`
	RetryAfterMS int64  `json:"retry_after_ms,omitempty"`
	Existing     string `json:"existing,omitempty"`
}

// Response is the structured result returned for every request.
type Response struct {
	InvocationID string     `json:"invocation_id"`
	Status       string     `json:"status"`
	Payload      any        `json:"payload,omitempty"`
	Error        *ErrorBody `json:"error,omitempty"`
}

// Handle runs one tool invocation end to end. It always returns a
// structured response.
func (g *Gateway) Handle(ctx context.Context, req Request) Response {
	ctx = withInstallation(ctx, req.Identity.InstallationID)

	inv := dispatch.NewInvocation(req.Tool, req.Arguments, dispatch.Identity{
		InstallationID: req.Identity.InstallationID,
		ActingUser:     req.Identity.ActingUser,
		Agent:          req.Identity.Agent,
	})
	result := g.dispatcher.Invoke(ctx, inv)

	resp := Response{
		InvocationID: result.InvocationID,
		Status:       string(result.Status),
		Payload:      result.Payload,
	}
	if result.Err != nil {
		resp.Error = &ErrorBody{
			Kind:         string(result.Err.Kind),
			Stage:        string(result.Err.Stage),
			Message:      result.Err.Message,
			RetryAfterMS: result.Err.RetryAfter.Milliseconds(),
			Existing:     result.Err.Existing,
		}
	}
	return resp
}
