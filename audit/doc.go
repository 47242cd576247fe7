// Package audit records an immutable trail of tool invocations.
//
// Every invocation attempt produces exactly one record, whatever its
// outcome. Recording must never fail the invocation it describes: a recorder
// failure is reported to a fallback logger and swallowed. Records for one
// installation are appended in the order their invocations completed;
// records across installations may interleave.
package audit
