// Package dispatch executes tool invocations against the forge on behalf of
// an autonomous agent.
//
// Every invocation runs a fixed pipeline: argument validation, permission
// evaluation, rate acquisition, credential fetch, then the underlying API
// call with bounded retries for transient failures. Each stage can fail; the
// failure is tagged with its stage, translated into the package's error
// taxonomy, audited, and returned as a structured result. No lower-layer
// error reaches the caller untranslated, and no invocation panics past the
// dispatcher boundary.
package dispatch
