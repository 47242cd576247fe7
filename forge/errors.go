package forge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
)

// Sentinel errors for forge operations.
var (
	// ErrNotFound is returned when the target resource does not exist.
	ErrNotFound = errors.New("forge: not found")

	// ErrRefExists is returned when a branch to be created already exists.
	ErrRefExists = errors.New("forge: ref already exists")

	// ErrPullExists is returned when an open pull request already exists
	// for the same head and base.
	ErrPullExists = errors.New("forge: pull request already exists")

	// ErrIsDirectory is returned when a file operation targets a directory.
	ErrIsDirectory = errors.New("forge: path is a directory")
)

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("forge: API error: status %d: %s", e.StatusCode, e.Message)
}

// readErrorMessage extracts the API's error message from a response body.
// It reads a bounded slice of the body, decodes the {"message": ...} JSON
// envelope, and falls back to the raw text.
func readErrorMessage(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 64<<10))
	if err != nil || len(body) == 0 {
		return ""
	}
	var envelope struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Message != "" {
		return envelope.Message
	}
	return strings.TrimSpace(string(body))
}

// IsTransient reports whether an error is worth retrying: server-side
// failures, throttling responses, and transport errors that never produced a
// status code. Client errors are permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode >= 500:
			return true
		case apiErr.StatusCode == 429:
			return true
		case apiErr.StatusCode == 408:
			return true
		default:
			return false
		}
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// Sentinel conditions are business outcomes, never transient.
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrRefExists) ||
		errors.Is(err, ErrPullExists) || errors.Is(err, ErrIsDirectory) {
		return false
	}

	// Anything else that reached us without an HTTP status is a transport
	// failure (connection reset, EOF mid-body).
	return true
}
