package model

import (
	"time"

	"github.com/google/uuid"
)

// Unanswered marks a question the learner has not answered yet.
const Unanswered = -1

// SessionStatus enumerates CBT session states.
type SessionStatus string

const (
	SessionStatusRunning  SessionStatus = "RUNNING"
	SessionStatusPaused   SessionStatus = "PAUSED"
	SessionStatusFinished SessionStatus = "FINISHED"
)

// SessionMode selects the fixed duration and question count of a session.
type SessionMode string

const (
	SessionModeGraded   SessionMode = "GRADED"
	SessionModePractice SessionMode = "PRACTICE"
)

// Valid reports whether m is a known mode.
func (m SessionMode) Valid() bool {
	return m == SessionModeGraded || m == SessionModePractice
}

// SessionState is the full state of one attempt. It doubles as the checkpoint
// written to the progress store.
type SessionState struct {
	SessionID        uuid.UUID     `json:"session_id"`
	UserID           string        `json:"user_id"`
	CourseID         string        `json:"course_id"`
	Mode             SessionMode   `json:"mode"`
	Questions        []Question    `json:"questions"`
	Answers          []int         `json:"answers"`
	CurrentIndex     int           `json:"current_question_index"`
	RemainingSeconds int           `json:"time_remaining_seconds"`
	DurationSeconds  int           `json:"duration_seconds"`
	Status           SessionStatus `json:"status"`
	StartedAt        time.Time     `json:"started_at"`
	UpdatedAt        time.Time     `json:"last_updated_at"`
	// Revision increases on every mutation; the newest revision wins in the progress store.
	Revision int64 `json:"revision"`
}

// Clone returns a deep copy so callers can never alias the live session.
func (s SessionState) Clone() SessionState {
	out := s
	out.Questions = make([]Question, len(s.Questions))
	for i, q := range s.Questions {
		q.Options = append([]string(nil), q.Options...)
		out.Questions[i] = q
	}
	out.Answers = append([]int(nil), s.Answers...)
	return out
}

// AnsweredCount counts questions with a selected option.
func (s *SessionState) AnsweredCount() int {
	n := 0
	for _, a := range s.Answers {
		if a != Unanswered {
			n++
		}
	}
	return n
}

// SessionView is what clients see of a live session.
type SessionView struct {
	SessionID        uuid.UUID            `json:"session_id"`
	CourseID         string               `json:"course_id"`
	Mode             SessionMode          `json:"mode"`
	Status           SessionStatus        `json:"status"`
	Questions        []QuestionForLearner `json:"questions"`
	Answers          []int                `json:"answers"`
	CurrentIndex     int                  `json:"current_question_index"`
	RemainingSeconds int                  `json:"time_remaining_seconds"`
	Unanswered       int                  `json:"unanswered"`
	Saved            bool                 `json:"saved"`
	Hidden           bool                 `json:"hidden"`
	LastSavedAt      *time.Time           `json:"last_saved_at,omitempty"`
	Result           *AttemptResult       `json:"result,omitempty"`
}

// ProgressSummary describes a resumable checkpoint without exposing its questions.
type ProgressSummary struct {
	SessionID        uuid.UUID   `json:"session_id"`
	CourseID         string      `json:"course_id"`
	Mode             SessionMode `json:"mode"`
	TotalQuestions   int         `json:"total_questions"`
	Answered         int         `json:"answered"`
	CurrentIndex     int         `json:"current_question_index"`
	RemainingSeconds int         `json:"time_remaining_seconds"`
	UpdatedAt        time.Time   `json:"last_updated_at"`
}

// BeginSessionRequest is the payload for opening or resuming a session.
type BeginSessionRequest struct {
	Mode  SessionMode `json:"mode" binding:"omitempty,oneof=GRADED PRACTICE"`
	Fresh bool        `json:"fresh"`
}

// AnswerRequest selects an option for a question.
type AnswerRequest struct {
	QuestionIndex *int `json:"question_index" binding:"required,min=0"`
	OptionIndex   *int `json:"option_index" binding:"required,min=0"`
}

// SubmitRequest finishes a session. Confirm is required while questions are unanswered.
type SubmitRequest struct {
	Confirm bool `json:"confirm"`
}
