package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonwraymond/forgegate/audit"
	"github.com/jonwraymond/forgegate/credential"
	"github.com/jonwraymond/forgegate/forge"
	"github.com/jonwraymond/forgegate/observe"
	"github.com/jonwraymond/forgegate/permission"
	"github.com/jonwraymond/forgegate/ratelimit"
)

type fakeTokens struct {
	calls atomic.Int64
	err   error
}

func (f *fakeTokens) Token(_ context.Context, _ int64) (credential.Token, error) {
	f.calls.Add(1)
	if f.err != nil {
		return credential.Token{}, f.err
	}
	return credential.Token{Value: "v1.installation-token", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

// fakeForge scripts per-method error sequences; once a method's queue is
// drained it succeeds.
type fakeForge struct {
	mu     sync.Mutex
	calls  map[string]int
	errs   map[string][]error
	panics map[string]bool

	// find is returned by FindPullRequest after the scripted errors.
	find *forge.PullRequest
}

func newFakeForge() *fakeForge {
	return &fakeForge{
		calls:  make(map[string]int),
		errs:   make(map[string][]error),
		panics: make(map[string]bool),
	}
}

func (f *fakeForge) script(method string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[method] = append(f.errs[method], errs...)
}

func (f *fakeForge) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeForge) step(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
	if f.panics[method] {
		panic("forge exploded")
	}
	queue := f.errs[method]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	f.errs[method] = queue[1:]
	return err
}

func (f *fakeForge) ReadFile(_ context.Context, _, repo, path, ref string) (*forge.FileContent, error) {
	if err := f.step("ReadFile"); err != nil {
		return nil, err
	}
	return &forge.FileContent{Path: path, Ref: ref, SHA: "abc123", Content: []byte("package main\n")}, nil
}

func (f *fakeForge) ListFiles(_ context.Context, _, repo, path, ref string) ([]forge.DirEntry, error) {
	if err := f.step("ListFiles"); err != nil {
		return nil, err
	}
	return []forge.DirEntry{{Name: "README.md", Path: "README.md", Type: "file"}}, nil
}

func (f *fakeForge) CreateBranch(_ context.Context, _, repo, branch, fromRef string) (*forge.BranchRef, error) {
	if err := f.step("CreateBranch"); err != nil {
		return nil, err
	}
	return &forge.BranchRef{Name: branch, SHA: "def456"}, nil
}

func (f *fakeForge) UpdateFile(_ context.Context, _, repo, path string, _ []byte, _, branch string) (*forge.CommitResult, error) {
	if err := f.step("UpdateFile"); err != nil {
		return nil, err
	}
	return &forge.CommitResult{Path: path, Branch: branch, CommitSHA: "789abc"}, nil
}

func (f *fakeForge) FindPullRequest(_ context.Context, _, repo, head, base string) (*forge.PullRequest, error) {
	if err := f.step("FindPullRequest"); err != nil {
		return nil, err
	}
	return f.find, nil
}

func (f *fakeForge) CreatePullRequest(_ context.Context, _, repo, title, body, head, base string) (*forge.PullRequest, error) {
	if err := f.step("CreatePullRequest"); err != nil {
		return nil, err
	}
	return &forge.PullRequest{Number: 42, Title: title, Head: head, Base: base, State: "open"}, nil
}

func (f *fakeForge) GetIssue(_ context.Context, _, repo string, number int) (*forge.Issue, error) {
	if err := f.step("GetIssue"); err != nil {
		return nil, err
	}
	return &forge.Issue{Number: number, Title: "flaky test", State: "open"}, nil
}

func (f *fakeForge) PostComment(_ context.Context, _, repo string, number int, body string) (*forge.Comment, error) {
	if err := f.step("PostComment"); err != nil {
		return nil, err
	}
	return &forge.Comment{ID: 1001}, nil
}

var _ forge.Client = (*fakeForge)(nil)

// deniedLimiter always rejects with a fixed wait estimate.
type deniedLimiter struct {
	retryAfter time.Duration
}

func (l deniedLimiter) Acquire(context.Context, int64, float64) (ratelimit.Decision, error) {
	return ratelimit.Decision{Granted: false, RetryAfter: l.retryAfter}, nil
}

type fixture struct {
	dispatcher *Dispatcher
	forge      *fakeForge
	tokens     *fakeTokens
	records    *audit.MemoryRecorder
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()

	fg := newFakeForge()
	tokens := &fakeTokens{}
	records := audit.NewMemoryRecorder()

	engine := permission.NewEngine([]permission.Rule{
		{Subject: "agent:planner", Resource: "octo-org/*", Actions: []string{"*"}},
		{Subject: "agent:reader", Resource: "octo-org/*", Actions: []string{"read_file", "list_files"}},
	})

	config := Config{
		Tokens:  tokens,
		Rules:   engine,
		Limiter: ratelimit.NewFrozenLimiter(100, ratelimit.Reject, 0),
		Forge:   fg,
		Audit:   audit.NewLog(records, observe.NopLogger()),
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
		},
	}
	if mutate != nil {
		mutate(&config)
	}

	d, err := New(config)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{dispatcher: d, forge: fg, tokens: tokens, records: records}
}

func planner(installation int64) Identity {
	return Identity{InstallationID: installation, Agent: "planner", ActingUser: "octocat"}
}

func TestDispatcher_ReadFileSuccess(t *testing.T) {
	fx := newFixture(t, nil)

	inv := NewInvocation("read_file", map[string]any{
		"repo": "octo-org/service",
		"path": "main.go",
	}, planner(7))
	result := fx.dispatcher.Invoke(context.Background(), inv)

	if result.Status != StatusSuccess {
		t.Fatalf("status = %v, err = %v", result.Status, result.Err)
	}
	file, ok := result.Payload.(*forge.FileContent)
	if !ok {
		t.Fatalf("payload type = %T", result.Payload)
	}
	if file.Ref != "main" {
		t.Errorf("default ref = %q, want main", file.Ref)
	}

	records := fx.records.Records()
	if len(records) != 1 {
		t.Fatalf("audit records = %d, want 1", len(records))
	}
	rec := records[0]
	if rec.Outcome != "succeeded" || rec.Tool != "read_file" || rec.Attempts != 1 {
		t.Errorf("record = %+v", rec)
	}
	if rec.Resource != "octo-org/service" || rec.Subject != "agent:planner" {
		t.Errorf("record identity = %+v", rec)
	}
}

func TestDispatcher_UnknownTool(t *testing.T) {
	fx := newFixture(t, nil)

	result := fx.dispatcher.Invoke(context.Background(),
		NewInvocation("delete_repo", map[string]any{"repo": "octo-org/service"}, planner(7)))

	if result.Err == nil || result.Err.Kind != KindValidation || result.Err.Stage != StageReceived {
		t.Fatalf("err = %v", result.Err)
	}
	if got := fx.tokens.calls.Load(); got != 0 {
		t.Errorf("token calls = %d, want 0", got)
	}
	if len(fx.records.Records()) != 1 {
		t.Errorf("audit records = %d, want 1", len(fx.records.Records()))
	}
}

func TestDispatcher_ArgumentValidation(t *testing.T) {
	fx := newFixture(t, nil)

	tests := []struct {
		name string
		tool string
		args map[string]any
	}{
		{"missing repo", "read_file", map[string]any{"path": "main.go"}},
		{"missing path", "read_file", map[string]any{"repo": "octo-org/service"}},
		{"wrong type", "read_file", map[string]any{"repo": "octo-org/service", "path": 12}},
		{"fractional issue number", "get_issue", map[string]any{"repo": "octo-org/service", "number": 1.5}},
		{"missing comment body", "post_comment", map[string]any{"repo": "octo-org/service", "number": 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := fx.dispatcher.Invoke(context.Background(), NewInvocation(tt.tool, tt.args, planner(7)))
			if result.Err == nil || result.Err.Kind != KindValidation {
				t.Fatalf("err = %v, want validation", result.Err)
			}
			if result.Err.Stage != StageReceived {
				t.Errorf("stage = %v, want received", result.Err.Stage)
			}
		})
	}
}

func TestDispatcher_PermissionDenied(t *testing.T) {
	fx := newFixture(t, nil)

	// agent:reader has no mutation grants.
	inv := NewInvocation("create_branch", map[string]any{
		"repo":   "octo-org/service",
		"branch": "fix/flaky-test",
	}, Identity{InstallationID: 7, Agent: "reader"})
	result := fx.dispatcher.Invoke(context.Background(), inv)

	if result.Err == nil || result.Err.Kind != KindPermissionDenied {
		t.Fatalf("err = %v, want permission_denied", result.Err)
	}
	if fx.tokens.calls.Load() != 0 {
		t.Error("denied invocation fetched a credential")
	}
	if fx.forge.callCount("CreateBranch") != 0 {
		t.Error("denied invocation reached the forge")
	}

	records := fx.records.Records()
	if len(records) != 1 {
		t.Fatalf("audit records = %d, want 1", len(records))
	}
	if records[0].Outcome != string(KindPermissionDenied) || records[0].Reason == "" {
		t.Errorf("record = %+v", records[0])
	}
}

func TestDispatcher_RateLimited(t *testing.T) {
	fx := newFixture(t, func(c *Config) {
		c.Limiter = deniedLimiter{retryAfter: 30 * time.Second}
	})

	result := fx.dispatcher.Invoke(context.Background(),
		NewInvocation("read_file", map[string]any{"repo": "octo-org/service", "path": "main.go"}, planner(7)))

	if result.Err == nil || result.Err.Kind != KindRateLimited {
		t.Fatalf("err = %v, want rate_limited", result.Err)
	}
	if result.Err.RetryAfter != 30*time.Second {
		t.Errorf("RetryAfter = %v, want 30s", result.Err.RetryAfter)
	}
	if fx.tokens.calls.Load() != 0 {
		t.Error("rate-limited invocation fetched a credential")
	}
	if len(fx.records.Records()) != 1 {
		t.Errorf("audit records = %d, want 1", len(fx.records.Records()))
	}
}

func TestDispatcher_TransientRetrySucceeds(t *testing.T) {
	fx := newFixture(t, nil)
	fx.forge.script("UpdateFile",
		&forge.APIError{StatusCode: 502, Message: "bad gateway"},
		&forge.APIError{StatusCode: 503, Message: "unavailable"},
	)

	inv := NewInvocation("update_file", map[string]any{
		"repo":    "octo-org/service",
		"path":    "main.go",
		"content": "package main\n",
		"message": "fix build",
		"branch":  "fix/build",
	}, planner(7))
	result := fx.dispatcher.Invoke(context.Background(), inv)

	if result.Status != StatusSuccess {
		t.Fatalf("status = %v, err = %v", result.Status, result.Err)
	}
	if got := fx.forge.callCount("UpdateFile"); got != 3 {
		t.Errorf("UpdateFile calls = %d, want 3", got)
	}

	records := fx.records.Records()
	if len(records) != 1 {
		t.Fatalf("audit records = %d, want exactly 1", len(records))
	}
	if records[0].Outcome != "succeeded" || records[0].Attempts != 3 {
		t.Errorf("record = %+v", records[0])
	}
}

func TestDispatcher_TransientRetryExhausted(t *testing.T) {
	fx := newFixture(t, nil)
	fx.forge.script("ReadFile",
		&forge.APIError{StatusCode: 502, Message: "bad gateway"},
		&forge.APIError{StatusCode: 502, Message: "bad gateway"},
		&forge.APIError{StatusCode: 502, Message: "bad gateway"},
	)

	result := fx.dispatcher.Invoke(context.Background(),
		NewInvocation("read_file", map[string]any{"repo": "octo-org/service", "path": "main.go"}, planner(7)))

	if result.Err == nil || result.Err.Kind != KindTransientAPI {
		t.Fatalf("err = %v, want transient_api", result.Err)
	}
	if got := fx.forge.callCount("ReadFile"); got != 3 {
		t.Errorf("ReadFile calls = %d, want 3 (attempt ceiling)", got)
	}
	if !strings.Contains(result.Err.Message, "3 attempts") {
		t.Errorf("message = %q", result.Err.Message)
	}
}

func TestDispatcher_BranchConflict(t *testing.T) {
	fx := newFixture(t, nil)
	fx.forge.script("CreateBranch", forge.ErrRefExists)

	args := map[string]any{"repo": "octo-org/service", "branch": "fix/flaky-test"}
	result := fx.dispatcher.Invoke(context.Background(), NewInvocation("create_branch", args, planner(7)))

	if result.Err == nil || result.Err.Kind != KindConflict {
		t.Fatalf("err = %v, want conflict", result.Err)
	}
	if result.Err.Existing != "fix/flaky-test" {
		t.Errorf("Existing = %q", result.Err.Existing)
	}
	if got := fx.forge.callCount("CreateBranch"); got != 1 {
		t.Errorf("CreateBranch calls = %d, conflict must not retry", got)
	}
	if !errors.Is(result.Err, forge.ErrRefExists) {
		t.Error("conflict does not unwrap to ErrRefExists")
	}

	// Second attempt reports the same conflict.
	fx.forge.script("CreateBranch", forge.ErrRefExists)
	again := fx.dispatcher.Invoke(context.Background(), NewInvocation("create_branch", args, planner(7)))
	if again.Err == nil || again.Err.Kind != KindConflict {
		t.Fatalf("second err = %v, want conflict", again.Err)
	}
}

func TestDispatcher_PullRequestConflictReturnsExisting(t *testing.T) {
	fx := newFixture(t, nil)
	fx.forge.find = &forge.PullRequest{Number: 7, Head: "fix/build", Base: "main", State: "open"}

	inv := NewInvocation("create_pull_request", map[string]any{
		"repo":  "octo-org/service",
		"title": "Fix build",
		"head":  "fix/build",
	}, planner(7))
	result := fx.dispatcher.Invoke(context.Background(), inv)

	if result.Err == nil || result.Err.Kind != KindConflict {
		t.Fatalf("err = %v, want conflict", result.Err)
	}
	if result.Err.Existing != "#7" {
		t.Errorf("Existing = %q, want #7", result.Err.Existing)
	}
	if fx.forge.callCount("CreatePullRequest") != 0 {
		t.Error("duplicate pull request was still created")
	}
}

func TestDispatcher_CredentialFailure(t *testing.T) {
	fx := newFixture(t, nil)
	fx.tokens.err = credential.ErrExchangeRejected

	result := fx.dispatcher.Invoke(context.Background(),
		NewInvocation("read_file", map[string]any{"repo": "octo-org/service", "path": "main.go"}, planner(7)))

	if result.Err == nil || result.Err.Kind != KindCredential || result.Err.Stage != StageCredential {
		t.Fatalf("err = %v, want credential failure", result.Err)
	}
	if got := fx.tokens.calls.Load(); got != 1 {
		t.Errorf("token calls = %d, credential failures must not retry", got)
	}
	if fx.forge.callCount("ReadFile") != 0 {
		t.Error("invocation reached the forge without a credential")
	}
}

func TestDispatcher_NotFoundIsValidation(t *testing.T) {
	fx := newFixture(t, nil)
	fx.forge.script("GetIssue", forge.ErrNotFound)

	result := fx.dispatcher.Invoke(context.Background(),
		NewInvocation("get_issue", map[string]any{"repo": "octo-org/service", "number": 404}, planner(7)))

	if result.Err == nil || result.Err.Kind != KindValidation {
		t.Fatalf("err = %v, want validation", result.Err)
	}
	if got := fx.forge.callCount("GetIssue"); got != 1 {
		t.Errorf("GetIssue calls = %d, not-found must not retry", got)
	}
}

func TestDispatcher_PanicBecomesInternal(t *testing.T) {
	fx := newFixture(t, nil)
	fx.forge.panics["ListFiles"] = true

	result := fx.dispatcher.Invoke(context.Background(),
		NewInvocation("list_files", map[string]any{"repo": "octo-org/service"}, planner(7)))

	if result.Err == nil || result.Err.Kind != KindInternal {
		t.Fatalf("err = %v, want internal", result.Err)
	}
	if len(fx.records.Records()) != 1 {
		t.Errorf("audit records = %d, want 1 even after a panic", len(fx.records.Records()))
	}
}

func TestDispatcher_OneAuditRecordPerInvocation(t *testing.T) {
	fx := newFixture(t, nil)
	fx.forge.script("CreateBranch", forge.ErrRefExists)

	invocations := []Invocation{
		NewInvocation("read_file", map[string]any{"repo": "octo-org/service", "path": "a.go"}, planner(7)),
		NewInvocation("create_branch", map[string]any{"repo": "octo-org/service", "branch": "b"}, planner(7)),
		NewInvocation("read_file", map[string]any{"repo": "other-org/private"}, planner(7)),
		NewInvocation("nonsense", nil, planner(7)),
	}
	for _, inv := range invocations {
		fx.dispatcher.Invoke(context.Background(), inv)
	}

	records := fx.records.Records()
	if len(records) != len(invocations) {
		t.Fatalf("audit records = %d, want %d", len(records), len(invocations))
	}
	seen := make(map[string]bool)
	for _, rec := range records {
		if seen[rec.InvocationID] {
			t.Errorf("duplicate record for invocation %s", rec.InvocationID)
		}
		seen[rec.InvocationID] = true
	}
}

func TestDispatcher_ConcurrentInvocations(t *testing.T) {
	fx := newFixture(t, nil)

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := fx.dispatcher.Invoke(context.Background(),
				NewInvocation("read_file", map[string]any{"repo": "octo-org/service", "path": "main.go"}, planner(7)))
			if result.Status != StatusSuccess {
				t.Errorf("status = %v, err = %v", result.Status, result.Err)
			}
		}()
	}
	wg.Wait()

	if got := len(fx.records.Records()); got != n {
		t.Errorf("audit records = %d, want %d", got, n)
	}
}

func TestDispatcher_CancelledCallerStillAudited(t *testing.T) {
	fx := newFixture(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Execution and the audit write survive the caller's cancellation.
	result := fx.dispatcher.Invoke(ctx,
		NewInvocation("post_comment", map[string]any{
			"repo":   "octo-org/service",
			"number": 12,
			"body":   "retriggered CI",
		}, planner(7)))

	if result.Status != StatusSuccess {
		t.Fatalf("status = %v, err = %v", result.Status, result.Err)
	}
	if len(fx.records.Records()) != 1 {
		t.Errorf("audit records = %d, want 1", len(fx.records.Records()))
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	if err == nil {
		t.Fatal("New accepted an empty config")
	}
}
