package dispatch

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// Identity is the calling principal for one invocation. Immutable,
// constructed per request.
type Identity struct {
	// InstallationID is the delegated-access context the call runs under.
	InstallationID int64

	// ActingUser is the human the agent acts on behalf of, when known.
	ActingUser string

	// Agent names the autonomous caller.
	Agent string
}

// Subject is the identity's permission-rule subject string.
func (id Identity) Subject() string {
	agent := id.Agent
	if agent == "" {
		agent = "unknown"
	}
	return "agent:" + agent
}

// Invocation is one tool request.
type Invocation struct {
	ID         string
	Tool       string
	Args       map[string]any
	Identity   Identity
	ReceivedAt time.Time
}

// NewInvocation builds an invocation with a fresh ULID and timestamp.
func NewInvocation(tool string, args map[string]any, identity Identity) Invocation {
	return Invocation{
		ID:         ulid.Make().String(),
		Tool:       tool,
		Args:       args,
		Identity:   identity,
		ReceivedAt: time.Now().UTC(),
	}
}

// Status is the top-level outcome of an invocation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Result is the structured outcome returned to the caller. Exactly one of
// Payload and Err is set.
type Result struct {
	InvocationID string
	Status       Status
	Payload      any
	Err          *Error
}

// Outcome is the audit/metrics outcome label: "succeeded" on success,
// otherwise the error kind.
func (r Result) Outcome() string {
	if r.Status == StatusSuccess {
		return "succeeded"
	}
	if r.Err != nil {
		return string(r.Err.Kind)
	}
	return "failed"
}

func success(id string, payload any) Result {
	return Result{InvocationID: id, Status: StatusSuccess, Payload: payload}
}

func failure(id string, err *Error) Result {
	return Result{InvocationID: id, Status: StatusError, Err: err}
}

// String renders a short human-readable summary.
func (r Result) String() string {
	if r.Status == StatusSuccess {
		return fmt.Sprintf("%s: success", r.InvocationID)
	}
	return fmt.Sprintf("%s: %v", r.InvocationID, r.Err)
}
