package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/jonwraymond/forgegate/audit"
	"github.com/jonwraymond/forgegate/credential"
	"github.com/jonwraymond/forgegate/forge"
	"github.com/jonwraymond/forgegate/observe"
	"github.com/jonwraymond/forgegate/permission"
	"github.com/jonwraymond/forgegate/ratelimit"
)

// TokenSource provides installation tokens. credential.Manager implements it.
type TokenSource interface {
	Token(ctx context.Context, installationID int64) (credential.Token, error)
}

// RateAcquirer debits an installation's request budget. ratelimit.Limiter
// implements it.
type RateAcquirer interface {
	Acquire(ctx context.Context, installationID int64, cost float64) (ratelimit.Decision, error)
}

// PermissionEvaluator decides authorization. permission.Engine implements it.
type PermissionEvaluator interface {
	Evaluate(subject, action, resource string) permission.Decision
}

// Auditor records invocation outcomes. audit.Log implements it.
type Auditor interface {
	Record(ctx context.Context, record audit.Record)
}

// Config wires the dispatcher's collaborators. All state is passed in
// explicitly; the dispatcher holds no ambient globals.
type Config struct {
	Tokens  TokenSource
	Rules   PermissionEvaluator
	Limiter RateAcquirer
	Forge   forge.Client
	Audit   Auditor

	// Logger receives per-invocation log entries. Default: discard.
	Logger observe.Logger

	// Metrics receives per-invocation metrics. Default: discard.
	Metrics observe.Metrics

	// Tracer opens one span per invocation. Default: no-op tracer.
	Tracer trace.Tracer

	// Retry bounds the transient-failure retry loop.
	Retry RetryConfig
}

// Dispatcher routes tool invocations through permission, rate, and
// credential checks to the forge.
type Dispatcher struct {
	tokens  TokenSource
	rules   PermissionEvaluator
	limiter RateAcquirer
	forge   forge.Client
	audit   Auditor
	logger  observe.Logger
	metrics observe.Metrics
	tracer  trace.Tracer
	retry   RetryConfig
}

// New creates a dispatcher. All five collaborators are required.
func New(config Config) (*Dispatcher, error) {
	switch {
	case config.Tokens == nil:
		return nil, errors.New("dispatch: Tokens is required")
	case config.Rules == nil:
		return nil, errors.New("dispatch: Rules is required")
	case config.Limiter == nil:
		return nil, errors.New("dispatch: Limiter is required")
	case config.Forge == nil:
		return nil, errors.New("dispatch: Forge is required")
	case config.Audit == nil:
		return nil, errors.New("dispatch: Audit is required")
	}

	if config.Logger == nil {
		config.Logger = observe.NopLogger()
	}
	if config.Metrics == nil {
		config.Metrics = observe.NopMetrics()
	}
	if config.Tracer == nil {
		config.Tracer = tracenoop.NewTracerProvider().Tracer("forgegate")
	}

	return &Dispatcher{
		tokens:  config.Tokens,
		rules:   config.Rules,
		limiter: config.Limiter,
		forge:   config.Forge,
		audit:   config.Audit,
		logger:  config.Logger,
		metrics: config.Metrics,
		tracer:  config.Tracer,
		retry:   config.Retry.withDefaults(),
	}, nil
}

// Invoke executes one tool invocation synchronously. The result is always
// structured: no lower-layer error or panic escapes this boundary, and every
// invocation produces exactly one audit record.
func (d *Dispatcher) Invoke(ctx context.Context, inv Invocation) (result Result) {
	start := time.Now()

	ctx, span := d.tracer.Start(ctx, "forgegate.invoke", trace.WithAttributes(
		attribute.String("invocation.id", inv.ID),
		attribute.String("tool", inv.Tool),
		attribute.Int64("installation.id", inv.Identity.InstallationID),
	))
	defer span.End()

	var (
		resource string
		attempts int
	)
	defer func() {
		if r := recover(); r != nil {
			result = failure(inv.ID, newError(KindInternal, StageExecute, nil, "panic: %v", r))
		}
		d.finish(ctx, span, inv, result, resource, attempts, time.Since(start))
	}()

	result, resource, attempts = d.run(ctx, inv)
	return result
}

func (d *Dispatcher) run(ctx context.Context, inv Invocation) (Result, string, int) {
	tool, ok := ParseTool(inv.Tool)
	if !ok {
		return failure(inv.ID, newError(KindValidation, StageReceived, nil, "unknown tool %q", inv.Tool)), "", 0
	}
	if inv.Identity.InstallationID == 0 {
		return failure(inv.ID, newError(KindValidation, StageReceived, nil, "missing installation id")), "", 0
	}

	p, verr := parseParams(tool, arguments(inv.Args))
	if verr != nil {
		return failure(inv.ID, verr), p.repo, 0
	}

	decision := d.rules.Evaluate(inv.Identity.Subject(), tool.Action(), p.repo)
	if !decision.Allowed {
		return failure(inv.ID, newError(KindPermissionDenied, StagePermission, nil, "%s", decision.Reason)), p.repo, 0
	}

	grant, err := d.limiter.Acquire(ctx, inv.Identity.InstallationID, 1)
	if err != nil {
		return failure(inv.ID, newError(KindRateLimited, StageRate, err, "abandoned while waiting for rate budget: %v", err)), p.repo, 0
	}
	if !grant.Granted {
		derr := newError(KindRateLimited, StageRate, nil, "installation %d over budget", inv.Identity.InstallationID)
		derr.RetryAfter = grant.RetryAfter
		return failure(inv.ID, derr), p.repo, 0
	}

	// Once execution starts, upstream cancellation no longer propagates: a
	// partially applied mutation cannot be unwound, so the in-flight call
	// runs to completion.
	execCtx := context.WithoutCancel(ctx)

	payload, attempts, err := runWithRetry(execCtx, d.retry, transient, func(ctx context.Context) (any, error) {
		token, err := d.tokens.Token(ctx, inv.Identity.InstallationID)
		if err != nil {
			return nil, newError(KindCredential, StageCredential, err, "token refresh failed: %v", err)
		}
		return d.execute(ctx, tool, p, token.Value)
	})
	if err != nil {
		return failure(inv.ID, d.translate(tool, err, attempts)), p.repo, attempts
	}

	return success(inv.ID, payload), p.repo, attempts
}

// transient classifies retry eligibility: already-translated errors are
// final; everything else follows the forge classification.
func transient(err error) bool {
	var derr *Error
	if errors.As(err, &derr) {
		return false
	}
	return forge.IsTransient(err)
}

// execute maps a tool to its underlying API operation. Conflict guards that
// need argument context are handled here.
func (d *Dispatcher) execute(ctx context.Context, tool Tool, p params, token string) (any, error) {
	switch tool {
	case ToolReadFile:
		return d.forge.ReadFile(ctx, token, p.repo, p.path, p.ref)

	case ToolListFiles:
		return d.forge.ListFiles(ctx, token, p.repo, p.path, p.ref)

	case ToolCreateBranch:
		ref, err := d.forge.CreateBranch(ctx, token, p.repo, p.branch, p.fromRef)
		if errors.Is(err, forge.ErrRefExists) {
			derr := newError(KindConflict, StageExecute, err, "branch %q already exists", p.branch)
			derr.Existing = p.branch
			return nil, derr
		}
		return ref, err

	case ToolUpdateFile:
		return d.forge.UpdateFile(ctx, token, p.repo, p.path, []byte(p.content), p.message, p.branch)

	case ToolCreatePullRequest:
		existing, err := d.forge.FindPullRequest(ctx, token, p.repo, p.head, p.base)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			derr := newError(KindConflict, StageExecute, forge.ErrPullExists,
				"open pull request #%d already exists for %s -> %s", existing.Number, p.head, p.base)
			derr.Existing = fmt.Sprintf("#%d", existing.Number)
			return nil, derr
		}

		pull, err := d.forge.CreatePullRequest(ctx, token, p.repo, p.title, p.body, p.head, p.base)
		if errors.Is(err, forge.ErrPullExists) {
			// Lost the race between find and create.
			derr := newError(KindConflict, StageExecute, err, "pull request already exists for %s -> %s", p.head, p.base)
			return nil, derr
		}
		return pull, err

	case ToolGetIssue:
		return d.forge.GetIssue(ctx, token, p.repo, p.number)

	case ToolPostComment:
		return d.forge.PostComment(ctx, token, p.repo, p.number, p.body)

	default:
		return nil, newError(KindInternal, StageExecute, nil, "tool %q has no handler", tool)
	}
}

// translate is the sole conversion from lower-layer failures into the
// dispatcher's taxonomy.
func (d *Dispatcher) translate(tool Tool, err error, attempts int) *Error {
	var derr *Error
	if errors.As(err, &derr) {
		return derr
	}

	switch {
	case errors.Is(err, forge.ErrNotFound):
		return newError(KindValidation, StageExecute, err, "%s target not found: %v", tool, err)
	case errors.Is(err, forge.ErrIsDirectory):
		return newError(KindValidation, StageExecute, err, "%v", err)
	case errors.Is(err, credential.ErrExchangeRejected), errors.Is(err, credential.ErrInvalidKey):
		return newError(KindCredential, StageCredential, err, "%v", err)
	}

	var apiErr *forge.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 401:
			return newError(KindCredential, StageExecute, err, "forge rejected the installation token")
		case apiErr.StatusCode == 403:
			return newError(KindPermissionDenied, StageExecute, err, "forge denied the operation: %s", apiErr.Message)
		case apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 && apiErr.StatusCode != 429:
			return newError(KindValidation, StageExecute, err, "forge rejected the request: %s", apiErr.Message)
		}
	}

	if forge.IsTransient(err) {
		return newError(KindTransientAPI, StageExecute, err, "%s failed after %d attempts: %v", tool, attempts, err)
	}
	return newError(KindInternal, StageExecute, err, "%v", err)
}

func (d *Dispatcher) finish(ctx context.Context, span trace.Span, inv Invocation, result Result, resource string, attempts int, latency time.Duration) {
	// The audit record and telemetry complete even when the caller has
	// abandoned the invocation.
	ctx = context.WithoutCancel(ctx)

	outcome := result.Outcome()
	record := audit.Record{
		InvocationID:   inv.ID,
		InstallationID: inv.Identity.InstallationID,
		Subject:        inv.Identity.Subject(),
		ActingUser:     inv.Identity.ActingUser,
		Tool:           inv.Tool,
		Resource:       resource,
		Outcome:        outcome,
		Attempts:       attempts,
		Latency:        latency,
		Time:           time.Now().UTC(),
	}
	if result.Err != nil {
		record.Reason = result.Err.Message
	}
	d.audit.Record(ctx, record)

	d.metrics.RecordInvocation(ctx, inv.Tool, outcome, latency)

	span.SetAttributes(attribute.String("outcome", outcome))
	fields := []observe.Field{
		observe.F("invocation_id", inv.ID),
		observe.F("tool", inv.Tool),
		observe.F("installation_id", inv.Identity.InstallationID),
		observe.F("resource", resource),
		observe.F("outcome", outcome),
		observe.F("latency_ms", latency.Milliseconds()),
	}
	if result.Err != nil {
		span.SetStatus(codes.Error, string(result.Err.Kind))
		d.logger.Warn(ctx, "invocation failed", append(fields, observe.F("reason", result.Err.Message))...)
		return
	}
	span.SetStatus(codes.Ok, "")
	d.logger.Info(ctx, "invocation succeeded", fields...)
}
