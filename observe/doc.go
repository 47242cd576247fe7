// Package observe provides the telemetry primitives used across forgegate:
// a structured JSON logger with credential redaction, and OpenTelemetry
// metrics for tool invocations.
//
// The package instruments against the OTel API only; exporter selection is
// left to the embedding process.
package observe
