package durable

import "errors"

var (
	// Store errors.
	ErrNoStore     = errors.New("durable: no store configured")
	ErrStoreClosed = errors.New("durable: store closed")

	// Not found errors.
	ErrRunNotFound      = errors.New("durable: workflow run not found")
	ErrEntryNotFound    = errors.New("durable: history entry not found")
	ErrTimerNotFound    = errors.New("durable: timer not found")
	ErrActivityNotFound = errors.New("durable: activity not registered")
	ErrWorkflowNotFound = errors.New("durable: workflow not registered")

	// Conflict errors.
	ErrRunAlreadyExists = errors.New("durable: workflow run already exists")

	// State errors.
	ErrInvalidState      = errors.New("durable: invalid state transition")
	ErrAttemptsExhausted = errors.New("durable: retry attempts exhausted")

	// ErrHistoryCorrupt indicates that the recorded history no longer
	// matches what the workflow definition schedules at the same position.
	// There is no safe recovery; the run is marked failed and requires
	// operator intervention.
	ErrHistoryCorrupt = errors.New("durable: history corrupt")
)
