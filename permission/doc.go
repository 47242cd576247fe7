// Package permission decides whether an identity may perform an action
// against a resource.
//
// Policy is default-deny: a request is allowed only if at least one rule
// matches the subject, matches the resource, and lists the action. Rules are
// loaded at startup and immutable thereafter; evaluation is pure and
// side-effect-free so it can run before any network or audit cost is
// incurred.
package permission
