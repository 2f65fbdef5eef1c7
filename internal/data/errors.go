package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	// ErrJobNotFound is returned when a queue job does not exist.
	ErrJobNotFound = errors.New("job not found")
	// ErrDlqRecordNotFound is returned when a DLQ record does not exist.
	ErrDlqRecordNotFound = errors.New("dlq record not found")
	// ErrRunNotFound is returned when no run exists for a natural key.
	ErrRunNotFound = errors.New("policy run not found")
	// ErrNoSnapshot is returned when no station bucket exists at or before
	// the requested decision bucket.
	ErrNoSnapshot = errors.New("no station snapshot at or before bucket")
)
