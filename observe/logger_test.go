package observe

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
)

func decodeEntries(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("warn", &buf)
	ctx := context.Background()

	logger.Debug(ctx, "debug msg")
	logger.Info(ctx, "info msg")
	logger.Warn(ctx, "warn msg")
	logger.Error(ctx, "error msg")

	entries := decodeEntries(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0]["level"] != "warn" || entries[1]["level"] != "error" {
		t.Errorf("levels = %v, %v; want warn, error", entries[0]["level"], entries[1]["level"])
	}
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	logger.Info(context.Background(), "invoked", F("tool", "read_file"), F("attempts", 2))

	entries := decodeEntries(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0]["tool"] != "read_file" {
		t.Errorf("tool = %v, want read_file", entries[0]["tool"])
	}
	if entries[0]["attempts"] != float64(2) {
		t.Errorf("attempts = %v, want 2", entries[0]["attempts"])
	}
}

func TestLogger_RedactsCredentials(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	logger.Info(context.Background(), "token refreshed",
		F("token", "ghs_secretvalue"),
		F("assertion", "eyJhbGciOi"),
		F("installation_id", int64(42)),
	)

	entries := decodeEntries(t, &buf)
	if entries[0]["token"] != "[REDACTED]" {
		t.Errorf("token = %v, want [REDACTED]", entries[0]["token"])
	}
	if entries[0]["assertion"] != "[REDACTED]" {
		t.Errorf("assertion = %v, want [REDACTED]", entries[0]["assertion"])
	}
	if entries[0]["installation_id"] != float64(42) {
		t.Errorf("installation_id = %v, want 42", entries[0]["installation_id"])
	}
	if strings.Contains(buf.String(), "ghs_secretvalue") {
		t.Error("raw token value leaked into log output")
	}
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	base := NewLoggerWithWriter("info", &buf)
	scoped := base.With(F("installation_id", int64(7)))

	scoped.Info(context.Background(), "scoped entry")
	base.Info(context.Background(), "base entry")

	entries := decodeEntries(t, &buf)
	if entries[0]["installation_id"] != float64(7) {
		t.Errorf("scoped entry missing attached field: %v", entries[0])
	}
	if _, ok := entries[1]["installation_id"]; ok {
		t.Error("base logger inherited field from derived logger")
	}
}

func TestLogger_ConcurrentUse(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info(context.Background(), "concurrent entry")
		}()
	}
	wg.Wait()

	entries := decodeEntries(t, &buf)
	if len(entries) != 20 {
		t.Errorf("got %d entries, want 20", len(entries))
	}
}
