package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSession is returned when the learner has no live session for the course.
	ErrNoSession = errors.New("no active session for this course")
	// ErrNoProgress is returned when there is no resumable checkpoint.
	ErrNoProgress = errors.New("no saved progress for this course")
	// ErrSubmissionIncomplete is matched by SubmissionIncompleteError.
	ErrSubmissionIncomplete = errors.New("submission has unanswered questions")
)

// SubmissionIncompleteError asks the caller to confirm a submit with unanswered questions.
type SubmissionIncompleteError struct {
	Unanswered int
}

func (e *SubmissionIncompleteError) Error() string {
	return fmt.Sprintf("%d unanswered question(s), confirm to submit", e.Unanswered)
}

func (e *SubmissionIncompleteError) Is(target error) bool {
	return target == ErrSubmissionIncomplete
}
