package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// JSONLRecorder appends records as newline-delimited JSON.
type JSONLRecorder struct {
	mu sync.Mutex
	w  io.Writer
}

// NewJSONLRecorder creates a recorder writing to w.
func NewJSONLRecorder(w io.Writer) *JSONLRecorder {
	return &JSONLRecorder{w: w}
}

// Append writes one record as a JSON line.
func (r *JSONLRecorder) Append(record Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("audit: encoding record: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("audit: writing record: %w", err)
	}
	return nil
}

// Ensure JSONLRecorder implements Recorder.
var _ Recorder = (*JSONLRecorder)(nil)
