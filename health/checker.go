package health

import (
	"context"
	"time"
)

// Status is a component's health state.
type Status int

const (
	// Healthy: the component is functioning normally.
	Healthy Status = iota
	// Degraded: the component serves requests but with reduced capability.
	Degraded
	// Unhealthy: the component cannot serve requests.
	Unhealthy
)

func (s Status) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	case Unhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// worse reports whether s is a worse state than other.
func (s Status) worse(other Status) bool {
	return s > other
}

// Result is one check's outcome.
type Result struct {
	Status   Status
	Message  string
	Duration time.Duration
	Checked  time.Time
}

// OK builds a healthy result.
func OK(message string) Result {
	return Result{Status: Healthy, Message: message, Checked: time.Now()}
}

// Warn builds a degraded result.
func Warn(message string) Result {
	return Result{Status: Degraded, Message: message, Checked: time.Now()}
}

// Fail builds an unhealthy result.
func Fail(message string, err error) Result {
	if err != nil {
		message = message + ": " + err.Error()
	}
	return Result{Status: Unhealthy, Message: message, Checked: time.Now()}
}

// Checker probes one dependency.
type Checker interface {
	Name() string
	Check(ctx context.Context) Result
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc struct {
	name string
	fn   func(context.Context) Result
}

// NewCheckerFunc wraps fn as a named checker.
func NewCheckerFunc(name string, fn func(context.Context) Result) *CheckerFunc {
	return &CheckerFunc{name: name, fn: fn}
}

func (c *CheckerFunc) Name() string { return c.name }

func (c *CheckerFunc) Check(ctx context.Context) Result { return c.fn(ctx) }
