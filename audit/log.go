package audit

import (
	"context"
	"sync"

	"github.com/jonwraymond/forgegate/observe"
)

// Recorder persists audit records.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use across
//   installations; the Log serializes appends within one installation.
type Recorder interface {
	Append(record Record) error
}

// Log writes records through a Recorder, preserving per-installation order
// and never surfacing recorder failures to the caller.
type Log struct {
	recorder Recorder
	fallback observe.Logger

	mu    sync.Mutex
	lanes map[int64]*sync.Mutex
}

// NewLog creates an audit log. A nil fallback discards failure reports.
func NewLog(recorder Recorder, fallback observe.Logger) *Log {
	if fallback == nil {
		fallback = observe.NopLogger()
	}
	return &Log{
		recorder: recorder,
		fallback: fallback,
		lanes:    make(map[int64]*sync.Mutex),
	}
}

// Record appends one record. Appends for the same installation happen in
// call order; a recorder failure goes to the fallback logger and is
// swallowed.
func (l *Log) Record(ctx context.Context, record Record) {
	lane := l.lane(record.InstallationID)
	lane.Lock()
	defer lane.Unlock()

	if err := l.recorder.Append(record); err != nil {
		l.fallback.Error(ctx, "audit append failed",
			observe.F("invocation_id", record.InvocationID),
			observe.F("installation_id", record.InstallationID),
			observe.F("tool", record.Tool),
			observe.F("outcome", record.Outcome),
			observe.F("error", err.Error()),
		)
	}
}

func (l *Log) lane(installationID int64) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lane, ok := l.lanes[installationID]
	if !ok {
		lane = &sync.Mutex{}
		l.lanes[installationID] = lane
	}
	return lane
}
