package services

import "errors"

// Error taxonomy for daily task tracking and badge claims. All of these are
// per-request failures: state is left untouched and the process keeps going.
var (
	// ErrRateLimited: the daily ceiling for the task type (or its group) is
	// already reached. Retryable the next calendar day.
	ErrRateLimited = errors.New("daily limit reached")

	// ErrVerificationFailed: the external social/on-chain check did not pass.
	// Retryable immediately.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrNotEligible: badge requirement not met (or no progress exists yet).
	ErrNotEligible = errors.New("badge requirement not met")

	// ErrAlreadyClaimed: the badge was claimed before; claims are once-only.
	ErrAlreadyClaimed = errors.New("badge already claimed")

	// ErrPersistenceUnavailable: the backing store could not be reached.
	// Guaranteed to leave no partial writes behind.
	ErrPersistenceUnavailable = errors.New("persistence unavailable")

	ErrUnknownProject  = errors.New("unknown project")
	ErrUnknownTaskType = errors.New("unknown task type")
)
