package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Deji-Tech/lawsa-iuo/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrCourseNotFound is returned when a course does not exist or is inactive.
var ErrCourseNotFound = errors.New("course not found")

// QuestionRepository handles course and question data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// CourseLevel returns the level of an active course.
func (r *QuestionRepository) CourseLevel(ctx context.Context, courseID string) (string, error) {
	var level string
	err := r.pool.QueryRow(ctx,
		`SELECT level FROM courses WHERE id = $1 AND is_active`, courseID,
	).Scan(&level)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrCourseNotFound
	}
	return level, err
}

// Fetch returns up to limit active questions of the course's level in random order.
// Duplicates and questions failing validation are skipped.
func (r *QuestionRepository) Fetch(ctx context.Context, courseID string, limit int) ([]model.Question, error) {
	level, err := r.CourseLevel(ctx, courseID)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id::text, level, question_text, COALESCE(scenario, ''), options, correct_answer, COALESCE(explanation, '')
		 FROM questions
		 WHERE level = $1 AND is_active
		 ORDER BY random()
		 LIMIT $2`, level, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	questions := make([]model.Question, 0, limit)
	for rows.Next() {
		var (
			q       model.Question
			rawOpts []byte
		)
		if err := rows.Scan(&q.ID, &q.Level, &q.Text, &q.Scenario, &rawOpts, &q.CorrectOptionIndex, &q.Explanation); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(rawOpts, &q.Options); err != nil {
			return nil, fmt.Errorf("question %s options: %w", q.ID, err)
		}
		q.CourseID = courseID
		if _, dup := seen[q.ID]; dup || q.Validate() != nil {
			continue
		}
		seen[q.ID] = struct{}{}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// UpsertCourse inserts or updates a course.
func (r *QuestionRepository) UpsertCourse(ctx context.Context, c *model.Course) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO courses (id, title, level, is_active)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE
		 SET title = EXCLUDED.title, level = EXCLUDED.level, is_active = EXCLUDED.is_active`,
		c.ID, c.Title, c.Level, c.IsActive,
	)
	return err
}

// UpsertQuestion inserts or updates a question by ID.
func (r *QuestionRepository) UpsertQuestion(ctx context.Context, q *model.SeedQuestion) error {
	opts, err := json.Marshal(q.Options)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO questions (id, level, difficulty, question_text, scenario, options, correct_answer, explanation)
		 VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, ''), $6, $7, NULLIF($8, ''))
		 ON CONFLICT (id) DO UPDATE
		 SET level = EXCLUDED.level,
		     difficulty = EXCLUDED.difficulty,
		     question_text = EXCLUDED.question_text,
		     scenario = EXCLUDED.scenario,
		     options = EXCLUDED.options,
		     correct_answer = EXCLUDED.correct_answer,
		     explanation = EXCLUDED.explanation,
		     updated_at = NOW()`,
		q.ID, q.Level, q.Difficulty, q.Text, q.Scenario, opts, q.CorrectOptionIndex, q.Explanation,
	)
	return err
}
