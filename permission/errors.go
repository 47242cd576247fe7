package permission

import "errors"

// Sentinel errors for rule loading.
var (
	// ErrInvalidRule is returned when a rule fails validation at load time.
	ErrInvalidRule = errors.New("permission: invalid rule")
)
