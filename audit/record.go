package audit

import "time"

// Record is one append-only audit entry.
type Record struct {
	InvocationID   string        `json:"invocation_id"`
	InstallationID int64         `json:"installation_id"`
	Subject        string        `json:"subject"`
	ActingUser     string        `json:"acting_user,omitempty"`
	Tool           string        `json:"tool"`
	Resource       string        `json:"resource,omitempty"`
	Outcome        string        `json:"outcome"`
	Reason         string        `json:"reason,omitempty"`
	Attempts       int           `json:"attempts,omitempty"`
	Latency        time.Duration `json:"latency_ns"`
	Time           time.Time     `json:"time"`
}
