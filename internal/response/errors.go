package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound       ErrCode = "NOT_FOUND"
	ErrCourseNotFound ErrCode = "COURSE_NOT_FOUND"

	// ─── Assessment ────────────────────────────────────────────────────
	ErrNoSession            ErrCode = "NO_ACTIVE_SESSION"
	ErrNoProgress           ErrCode = "NO_SAVED_PROGRESS"
	ErrNoQuestions          ErrCode = "NO_QUESTIONS"
	ErrInvalidAnswer        ErrCode = "INVALID_ANSWER"
	ErrSessionPaused        ErrCode = "SESSION_PAUSED"
	ErrSessionFinished      ErrCode = "SESSION_FINISHED"
	ErrSubmissionIncomplete ErrCode = "SUBMISSION_INCOMPLETE"
	ErrProgressNotSaved     ErrCode = "PROGRESS_NOT_SAVED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid."
	case ErrTokenExpired:
		return "Authentication token has expired."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrCourseNotFound:
		return "Course not found."

	// ─── Assessment ────────────────────────────────────────────────────
	case ErrNoSession:
		return "There is no active test for this course."
	case ErrNoProgress:
		return "There is no saved progress for this course."
	case ErrNoQuestions:
		return "No questions are available for this course yet."
	case ErrInvalidAnswer:
		return "The selected question or option does not exist."
	case ErrSessionPaused:
		return "The test is paused. Resume it to continue."
	case ErrSessionFinished:
		return "This test has already been submitted."
	case ErrSubmissionIncomplete:
		return "Some questions are unanswered. Confirm to submit anyway."
	case ErrProgressNotSaved:
		return "Your progress could not be saved. It will be retried automatically."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
