// Package secret resolves references to sensitive configuration values.
//
// A reference carries a scheme prefix: "env:APP_KEY" reads an environment
// variable, "file:/etc/forgegate/app.pem" reads a file. Values without a
// recognized scheme pass through unchanged, so inline PEM blocks keep
// working.
package secret
