package domain

import "errors"

var (
	// Validation errors, rejected synchronously at submission time.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrEmptyFile         = errors.New("file is empty")
	ErrFileTooLarge      = errors.New("file too large")

	// Lookup errors.
	ErrJobNotFound    = errors.New("job not found")
	ErrResultNotReady = errors.New("results not ready")

	// Export errors.
	ErrInvalidFormat = errors.New("invalid export format")

	// Store invariant violations.
	ErrJobTerminal        = errors.New("job already in terminal state")
	ErrProgressRegression = errors.New("progress must be monotonically non-decreasing")
	ErrJobNotCancellable  = errors.New("job cannot be cancelled")
)
