// Package forge talks to the source-code-hosting REST API.
//
// The client is stateless with respect to credentials: every call takes the
// installation token to use, so token custody stays with the credential
// manager. Rate-limit-remaining response headers are surfaced through an
// optional callback so the process-local rate limiter can true itself up
// against the server's view.
package forge
