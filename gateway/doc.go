// Package gateway is the composition root. It assembles the credential,
// permission, rate-limit, forge, audit, and dispatch layers into a single
// Gateway with a transport-agnostic request/response surface.
//
// The gateway accepts already-validated input: webhook parsing, signature
// verification, and queue transport live outside this module.
package gateway
