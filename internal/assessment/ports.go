package assessment

import (
	"context"
	"time"

	"github.com/Deji-Tech/lawsa-iuo/internal/model"
)

// QuestionBank supplies the questions of a course.
type QuestionBank interface {
	// Fetch returns a shuffled, deduplicated set of at most limit questions.
	Fetch(ctx context.Context, courseID string, limit int) ([]model.Question, error)
}

// ProgressStore holds the latest checkpoint of an in-flight session per (user, course).
type ProgressStore interface {
	Save(ctx context.Context, userID, courseID string, state model.SessionState) error
	// Load returns nil, nil when no checkpoint exists.
	Load(ctx context.Context, userID, courseID string) (*model.SessionState, error)
	Delete(ctx context.Context, userID, courseID string) error
}

// AttemptLog records finished attempts.
type AttemptLog interface {
	Append(ctx context.Context, userID string, result model.AttemptResult) error
}

// VisibilityObserver reports when the session's client leaves the foreground.
type VisibilityObserver interface {
	Subscribe(fn func(hidden bool)) (cancel func())
}

// Checkpointer writes session snapshots on behalf of a Session.
type Checkpointer interface {
	// Enqueue schedules an asynchronous write and returns immediately.
	Enqueue(state model.SessionState)
	// Save writes state before returning.
	Save(ctx context.Context, state model.SessionState) error
	// Discard deletes the live checkpoint and rejects any later write.
	Discard(ctx context.Context) error
	Status() SaveStatus
}

// SaveStatus is the non-blocking "progress saved" indicator.
type SaveStatus struct {
	LastSavedAt time.Time
	LastError   error
}

// Saved reports whether the most recent write attempt succeeded.
func (s SaveStatus) Saved() bool {
	return s.LastError == nil
}
