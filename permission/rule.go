package permission

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
)

// Rule is a static grant: a subject pattern, a resource pattern, and the set
// of actions the rule allows.
//
// Patterns are globs: "agent:*" matches any agent subject, "octo-org/*"
// matches any repository under octo-org.
type Rule struct {
	Subject  string   `yaml:"subject"`
	Resource string   `yaml:"resource"`
	Actions  []string `yaml:"actions"`
}

// Validate checks the rule's patterns and action set.
func (r Rule) Validate() error {
	if r.Subject == "" {
		return fmt.Errorf("%w: empty subject pattern", ErrInvalidRule)
	}
	if !doublestar.ValidatePattern(r.Subject) {
		return fmt.Errorf("%w: bad subject pattern %q", ErrInvalidRule, r.Subject)
	}
	if r.Resource == "" {
		return fmt.Errorf("%w: empty resource pattern", ErrInvalidRule)
	}
	if !doublestar.ValidatePattern(r.Resource) {
		return fmt.Errorf("%w: bad resource pattern %q", ErrInvalidRule, r.Resource)
	}
	if len(r.Actions) == 0 {
		return fmt.Errorf("%w: rule for %q grants no actions", ErrInvalidRule, r.Resource)
	}
	return nil
}

func (r Rule) matchesSubject(subject string) bool {
	return matchGlob(r.Subject, subject)
}

func (r Rule) matchesResource(resource string) bool {
	return matchGlob(r.Resource, resource)
}

func (r Rule) allowsAction(action string) bool {
	for _, a := range r.Actions {
		if a == "*" || a == action {
			return true
		}
	}
	return false
}

// matchGlob matches a doublestar pattern against a value. Patterns are
// validated at load time; a malformed pattern matches nothing.
func matchGlob(pattern, value string) bool {
	ok, err := doublestar.Match(pattern, value)
	return err == nil && ok
}
