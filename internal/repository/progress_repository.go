package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/Deji-Tech/lawsa-iuo/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProgressRepository stores the durable copy of live session checkpoints in cbt_progress.
type ProgressRepository struct {
	pool *pgxpool.Pool
}

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(pool *pgxpool.Pool) *ProgressRepository {
	return &ProgressRepository{pool: pool}
}

// Upsert writes a checkpoint. A stored row of the same session with a higher revision
// is left untouched. A FINISHED snapshot marks the row completed, which hides it from
// Get and LatestByUser until the delete that follows it lands.
func (r *ProgressRepository) Upsert(ctx context.Context, state *model.SessionState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO cbt_progress
		   (user_id, course_id, session_id, mode, state, current_question_index, time_remaining_seconds, revision, is_completed, last_updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (user_id, course_id) DO UPDATE
		 SET session_id = EXCLUDED.session_id,
		     mode = EXCLUDED.mode,
		     state = EXCLUDED.state,
		     current_question_index = EXCLUDED.current_question_index,
		     time_remaining_seconds = EXCLUDED.time_remaining_seconds,
		     revision = EXCLUDED.revision,
		     is_completed = EXCLUDED.is_completed,
		     last_updated_at = EXCLUDED.last_updated_at
		 WHERE cbt_progress.session_id <> EXCLUDED.session_id
		    OR cbt_progress.revision < EXCLUDED.revision`,
		state.UserID, state.CourseID, state.SessionID, state.Mode, raw,
		state.CurrentIndex, state.RemainingSeconds, state.Revision,
		state.Status == model.SessionStatusFinished, state.UpdatedAt,
	)
	return err
}

// Get returns the checkpoint for (userID, courseID), or nil when none exists.
func (r *ProgressRepository) Get(ctx context.Context, userID, courseID string) (*model.SessionState, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx,
		`SELECT state FROM cbt_progress
		 WHERE user_id = $1 AND course_id = $2 AND NOT is_completed`, userID, courseID,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var state model.SessionState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// LatestByUser returns up to limit unfinished checkpoints of the user across all
// courses, most recently updated first.
func (r *ProgressRepository) LatestByUser(ctx context.Context, userID string, limit int) ([]model.SessionState, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT state FROM cbt_progress
		 WHERE user_id = $1 AND NOT is_completed
		 ORDER BY last_updated_at DESC
		 LIMIT $2`, userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SessionState
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var state model.SessionState
		if err := json.Unmarshal(raw, &state); err != nil {
			return nil, err
		}
		out = append(out, state)
	}
	return out, rows.Err()
}

// Delete removes the checkpoint for (userID, courseID).
func (r *ProgressRepository) Delete(ctx context.Context, userID, courseID string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM cbt_progress WHERE user_id = $1 AND course_id = $2`, userID, courseID)
	return err
}
