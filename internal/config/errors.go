package config

import "errors"

// Configuration validation errors returned by Config.Validate.
// Callers can match them with errors.Is.
var (
	// ErrNoTarget is returned when neither a project URL nor a snapshot is given.
	ErrNoTarget = errors.New("no target specified: provide a project URL or use --from-snapshot")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidPageDelay is returned when the page delay or its spread is negative.
	ErrInvalidPageDelay = errors.New("invalid page delay: must be non-negative")

	// ErrInvalidProjectThreshold is returned for a negative backer threshold.
	ErrInvalidProjectThreshold = errors.New("invalid backer threshold: must be non-negative")

	// ErrInvalidCategoryThreshold is returned when the category share is outside [0, 1].
	ErrInvalidCategoryThreshold = errors.New("invalid category threshold: must be between 0 and 1")

	// ErrConflictingReportFormats is returned when both --json and --markdown are set.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrNoCachePath is returned when the project cache path is empty.
	ErrNoCachePath = errors.New("project cache path must not be empty")
)
