package assessment

import (
	"math"
	"time"

	"github.com/Deji-Tech/lawsa-iuo/internal/model"
)

// Score compares every answer with its question's correct option.
// Percentage is rounded half away from zero, so 2 of 3 scores 67.
func Score(state *model.SessionState, completedAt time.Time, auto bool) model.AttemptResult {
	total := len(state.Questions)
	correctness := make([]bool, total)
	details := make([]model.AnswerDetail, total)

	correct := 0
	for i, q := range state.Questions {
		selected := state.Answers[i]
		ok := selected == q.CorrectOptionIndex
		if ok {
			correct++
		}
		correctness[i] = ok
		details[i] = model.AnswerDetail{
			QuestionID:     q.ID,
			SelectedAnswer: selected,
			CorrectAnswer:  q.CorrectOptionIndex,
			IsCorrect:      ok,
		}
	}

	var pct int
	if total > 0 {
		pct = int(math.Round(float64(correct) * 100 / float64(total)))
	}

	var level string
	if total > 0 {
		level = state.Questions[0].Level
	}

	return model.AttemptResult{
		SessionID:              state.SessionID,
		UserID:                 state.UserID,
		CourseID:               state.CourseID,
		Level:                  level,
		Mode:                   state.Mode,
		CorrectCount:           correct,
		TotalQuestions:         total,
		Percentage:             pct,
		TimeTakenSeconds:       state.DurationSeconds - state.RemainingSeconds,
		PerQuestionCorrectness: correctness,
		Details:                details,
		AutoSubmitted:          auto,
		CompletedAt:            completedAt,
	}
}
