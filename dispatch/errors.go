package dispatch

import (
	"fmt"
	"time"
)

// Kind classifies an invocation failure.
type Kind string

const (
	// KindCredential: the delegated-identity exchange was rejected. Fatal,
	// never retried.
	KindCredential Kind = "credential"

	// KindPermissionDenied: the rule set denies the call. Never retried,
	// always audited with the denial reason.
	KindPermissionDenied Kind = "permission_denied"

	// KindRateLimited: the installation's budget is exhausted. The caller
	// should back off for RetryAfter and retry.
	KindRateLimited Kind = "rate_limited"

	// KindTransientAPI: the API failed transiently and internal retries
	// were exhausted.
	KindTransientAPI Kind = "transient_api"

	// KindValidation: malformed arguments. Fatal to the call.
	KindValidation Kind = "validation"

	// KindConflict: an idempotence guard triggered; Existing identifies the
	// already-present resource when available.
	KindConflict Kind = "conflict"

	// KindInternal: a failure the dispatcher could not classify.
	KindInternal Kind = "internal"
)

// Stage names the pipeline stage at which a failure occurred.
type Stage string

const (
	StageReceived   Stage = "received"
	StagePermission Stage = "permission"
	StageRate       Stage = "rate"
	StageCredential Stage = "credential"
	StageExecute    Stage = "execute"
)

// Error is the dispatcher's translated failure. It is the only error shape
// that crosses the dispatcher boundary.
type Error struct {
	Kind    Kind
	Stage   Stage
	Message string

	// RetryAfter is set for KindRateLimited when a wait estimate exists.
	RetryAfter time.Duration

	// Existing identifies the already-present resource for KindConflict
	// (a branch name or pull request number).
	Existing string

	cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("dispatch: %s at %s stage: %s", e.Kind, e.Stage, e.Message)
}

// Unwrap returns the untranslated lower-layer error, for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.cause
}

func newError(kind Kind, stage Stage, cause error, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Stage:   stage,
		Message: fmt.Sprintf(format, args...),
		cause:   cause,
	}
}
