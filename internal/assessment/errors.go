package assessment

import "errors"

var (
	// ErrInvalidQuestionSet is returned by Start for an empty or malformed question set.
	// Not retryable with the same input.
	ErrInvalidQuestionSet = errors.New("invalid question set")
	// ErrCheckpointCorrupt is returned by Resume when a checkpoint fails structural validation.
	ErrCheckpointCorrupt = errors.New("checkpoint corrupt")
	// ErrPersistenceUnavailable wraps progress store and attempt log failures.
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
	// ErrInvalidAnswer is returned by SelectAnswer for an out-of-range question or option.
	ErrInvalidAnswer = errors.New("invalid answer")
	// ErrNotRunning is returned for operations that need a running session.
	ErrNotRunning = errors.New("session is not running")
	// ErrSessionFinished is returned for any mutation after the session finished.
	ErrSessionFinished = errors.New("session already finished")
)
