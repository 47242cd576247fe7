package permission

import "fmt"

// Dimension names the part of a request that failed to match any rule.
type Dimension string

const (
	DimensionSubject  Dimension = "subject"
	DimensionResource Dimension = "resource"
	DimensionAction   Dimension = "action"
)

// Decision is the outcome of an evaluation. A denial carries a reason and
// the unmatched dimension.
type Decision struct {
	Allowed   bool
	Reason    string
	Dimension Dimension
}

// Engine evaluates requests against an immutable rule set.
type Engine struct {
	rules []Rule
}

// NewEngine creates an engine over the given rules. The slice is copied;
// the engine never mutates rules and requires no locking.
func NewEngine(rules []Rule) *Engine {
	owned := make([]Rule, len(rules))
	copy(owned, rules)
	return &Engine{rules: owned}
}

// Rules returns a copy of the engine's rule set.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Evaluate decides whether subject may perform action on resource.
//
// Default-deny: the request is allowed only if some rule matches all three
// dimensions. A denial identifies the deepest dimension any rule reached,
// so "action" means a rule covered this subject and resource but did not
// grant the action.
func (e *Engine) Evaluate(subject, action, resource string) Decision {
	denial := Decision{
		Dimension: DimensionSubject,
		Reason:    fmt.Sprintf("no rule matches subject %q", subject),
	}
	depth := 0

	for _, rule := range e.rules {
		if !rule.matchesSubject(subject) {
			continue
		}
		if depth < 1 {
			depth = 1
			denial = Decision{
				Dimension: DimensionResource,
				Reason:    fmt.Sprintf("no rule for subject %q covers resource %q", subject, resource),
			}
		}

		if !rule.matchesResource(resource) {
			continue
		}
		if depth < 2 {
			depth = 2
			denial = Decision{
				Dimension: DimensionAction,
				Reason:    fmt.Sprintf("no rule for %q on %q grants action %q", subject, resource, action),
			}
		}

		if rule.allowsAction(action) {
			return Decision{Allowed: true}
		}
	}

	return denial
}
