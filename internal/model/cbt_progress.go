package model

import "time"

// ProgressOp is the kind of a queued checkpoint write.
type ProgressOp string

const (
	ProgressOpSave   ProgressOp = "save"
	ProgressOpDelete ProgressOp = "delete"
)

// ProgressJob is one entry of the progress write-behind queue.
type ProgressJob struct {
	Op       ProgressOp    `json:"op"`
	UserID   string        `json:"user_id"`
	CourseID string        `json:"course_id"`
	State    *SessionState `json:"state,omitempty"`
	QueuedAt time.Time     `json:"queued_at"`
	// Attempts counts failed applications of the job.
	Attempts int `json:"attempts,omitempty"`
}

// AttemptAverage is a learner's mean graded score.
type AttemptAverage struct {
	Level    string `json:"level,omitempty"`
	Average  int    `json:"average"`
	Attempts int    `json:"attempts"`
}
