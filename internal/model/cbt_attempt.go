package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptResult is the immutable score of a finished session.
type AttemptResult struct {
	SessionID              uuid.UUID      `json:"session_id"`
	UserID                 string         `json:"user_id"`
	CourseID               string         `json:"course_id"`
	Level                  string         `json:"level,omitempty"`
	Mode                   SessionMode    `json:"mode"`
	CorrectCount           int            `json:"correct_answers"`
	TotalQuestions         int            `json:"total_questions"`
	Percentage             int            `json:"score"`
	TimeTakenSeconds       int            `json:"time_taken_seconds"`
	PerQuestionCorrectness []bool         `json:"per_question_correctness"`
	Details                []AnswerDetail `json:"questions_data"`
	AutoSubmitted          bool           `json:"auto_submitted"`
	CompletedAt            time.Time      `json:"completed_at"`
}

// AnswerDetail records how a single question was answered.
type AnswerDetail struct {
	QuestionID     string `json:"question_id"`
	SelectedAnswer int    `json:"selected_answer"`
	CorrectAnswer  int    `json:"correct_answer"`
	IsCorrect      bool   `json:"is_correct"`
}

// AttemptRecord is a stored attempt as listed in a learner's history.
type AttemptRecord struct {
	ID uuid.UUID `json:"id"`
	AttemptResult
}
