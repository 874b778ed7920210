package settings

import "errors"

// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNoRecord means no usable record exists: the file is missing,
	// unreadable after retries, or not valid JSON.
	ErrNoRecord = errors.New("settings: no record")

	// ErrInvalid means a record was read but fails validation.
	// The whole record is discarded.
	ErrInvalid = errors.New("settings: invalid record")
)
