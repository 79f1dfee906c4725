package model

import (
	"errors"
	"fmt"
)

// Question is a single multiple-choice item of a course's question bank.
type Question struct {
	ID                 string   `json:"id"`
	CourseID           string   `json:"course_id,omitempty"`
	Level              string   `json:"level,omitempty"`
	Text               string   `json:"question_text"`
	Scenario           string   `json:"scenario,omitempty"`
	Options            []string `json:"options"`
	CorrectOptionIndex int      `json:"correct_answer"`
	Explanation        string   `json:"explanation,omitempty"`
}

// Validate checks the invariants a question must hold before it can enter a session.
func (q *Question) Validate() error {
	if q.ID == "" {
		return errors.New("question id is empty")
	}
	if q.Text == "" {
		return fmt.Errorf("question %s has no text", q.ID)
	}
	if len(q.Options) < 2 {
		return fmt.Errorf("question %s has %d options, need at least 2", q.ID, len(q.Options))
	}
	if q.CorrectOptionIndex < 0 || q.CorrectOptionIndex >= len(q.Options) {
		return fmt.Errorf("question %s correct option %d out of range", q.ID, q.CorrectOptionIndex)
	}
	return nil
}

// QuestionForLearner is a question without the correct answer, sent to clients.
type QuestionForLearner struct {
	ID       string   `json:"id"`
	Text     string   `json:"question_text"`
	Scenario string   `json:"scenario,omitempty"`
	Options  []string `json:"options"`
}

// ForLearner strips the answer key.
func (q *Question) ForLearner() QuestionForLearner {
	opts := make([]string, len(q.Options))
	copy(opts, q.Options)
	return QuestionForLearner{ID: q.ID, Text: q.Text, Scenario: q.Scenario, Options: opts}
}

// SeedQuestion is one entry of a question import file.
type SeedQuestion struct {
	ID                 string   `json:"id" validate:"required,uuid"`
	Level              string   `json:"level" validate:"required,max=50"`
	Difficulty         string   `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
	Text               string   `json:"question_text" validate:"required,min=1,max=4000"`
	Scenario           string   `json:"scenario" validate:"omitempty,max=8000"`
	Options            []string `json:"options" validate:"required,min=2,dive,required"`
	CorrectOptionIndex int      `json:"correct_answer" validate:"min=0"`
	Explanation        string   `json:"explanation" validate:"omitempty,max=4000"`
}
