// Package health reports whether the gateway is fit to serve invocations.
//
// A Checker probes one dependency (the forge API, the rule set, the audit
// sink). An Aggregator runs all registered checkers and folds their results
// into an overall status. Handler exposes the aggregate over HTTP for
// liveness and readiness probes.
package health
