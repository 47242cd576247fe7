package audit

import "sync"

// MemoryRecorder keeps records in memory. Intended for tests and
// short-lived processes.
type MemoryRecorder struct {
	mu      sync.Mutex
	records []Record
}

// NewMemoryRecorder creates an empty in-memory recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

// Append stores the record.
func (r *MemoryRecorder) Append(record Record) error {
	r.mu.Lock()
	r.records = append(r.records, record)
	r.mu.Unlock()
	return nil
}

// Records returns a snapshot of all records in append order.
func (r *MemoryRecorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// ByInstallation returns the records for one installation, in append order.
func (r *MemoryRecorder) ByInstallation(installationID int64) []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Record
	for _, record := range r.records {
		if record.InstallationID == installationID {
			out = append(out, record)
		}
	}
	return out
}

// Ensure MemoryRecorder implements Recorder.
var _ Recorder = (*MemoryRecorder)(nil)
