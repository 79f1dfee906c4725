package repository

import (
	"context"
	"encoding/json"

	"github.com/Deji-Tech/lawsa-iuo/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const insertAttemptSQL = `
	INSERT INTO cbt_attempts
	  (session_id, user_id, course_id, level, mode, score, total_questions, correct_answers,
	   time_taken_seconds, questions_data, auto_submitted, completed_at)
	VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (session_id) DO NOTHING`

// AttemptRepository handles cbt_attempts data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

func attemptArgs(a *model.AttemptResult) ([]any, error) {
	details, err := json.Marshal(a.Details)
	if err != nil {
		return nil, err
	}
	return []any{
		a.SessionID, a.UserID, a.CourseID, a.Level, a.Mode, a.Percentage, a.TotalQuestions,
		a.CorrectCount, a.TimeTakenSeconds, details, a.AutoSubmitted, a.CompletedAt,
	}, nil
}

// Insert stores one attempt. Re-inserting the same session is a no-op.
func (r *AttemptRepository) Insert(ctx context.Context, a *model.AttemptResult) error {
	args, err := attemptArgs(a)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, insertAttemptSQL, args...)
	return err
}

// InsertBatch stores attempts in one round trip.
func (r *AttemptRepository) InsertBatch(ctx context.Context, attempts []*model.AttemptResult) error {
	if len(attempts) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, a := range attempts {
		args, err := attemptArgs(a)
		if err != nil {
			return err
		}
		batch.Queue(insertAttemptSQL, args...)
	}
	return r.pool.SendBatch(ctx, batch).Close()
}

// ListByUser returns the user's most recent attempts, newest first.
func (r *AttemptRepository) ListByUser(ctx context.Context, userID string, limit int) ([]model.AttemptRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, user_id, course_id, COALESCE(level, ''), mode, score, total_questions,
		        correct_answers, time_taken_seconds, questions_data, auto_submitted, completed_at
		 FROM cbt_attempts
		 WHERE user_id = $1
		 ORDER BY completed_at DESC
		 LIMIT $2`, userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]model.AttemptRecord, 0)
	for rows.Next() {
		var (
			rec     model.AttemptRecord
			details []byte
		)
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.UserID, &rec.CourseID, &rec.Level, &rec.Mode,
			&rec.Percentage, &rec.TotalQuestions, &rec.CorrectCount, &rec.TimeTakenSeconds,
			&details, &rec.AutoSubmitted, &rec.CompletedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(details, &rec.Details); err != nil {
			return nil, err
		}
		rec.PerQuestionCorrectness = make([]bool, len(rec.Details))
		for i, d := range rec.Details {
			rec.PerQuestionCorrectness[i] = d.IsCorrect
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// AverageByUser returns the rounded mean score of the user's graded attempts, optionally
// restricted to one level, and the number of attempts it covers.
func (r *AttemptRepository) AverageByUser(ctx context.Context, userID, level string) (int, int, error) {
	var avg, count int
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(ROUND(AVG(score)), 0)::int, COUNT(*)::int
		 FROM cbt_attempts
		 WHERE user_id = $1 AND mode = $2 AND ($3 = '' OR level = $3)`,
		userID, model.SessionModeGraded, level,
	).Scan(&avg, &count)
	return avg, count, err
}
