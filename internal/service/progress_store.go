package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Deji-Tech/lawsa-iuo/internal/config"
	"github.com/Deji-Tech/lawsa-iuo/internal/model"
	"github.com/Deji-Tech/lawsa-iuo/internal/monitoring"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// tombstone marks a deleted checkpoint in Redis until the delete reaches PostgreSQL,
// so a lagging durable copy is never served back.
const tombstone = "deleted"

const tombstoneTTL = time.Hour

// ProgressReader is the durable side of the progress store.
type ProgressReader interface {
	Get(ctx context.Context, userID, courseID string) (*model.SessionState, error)
	LatestByUser(ctx context.Context, userID string, limit int) ([]model.SessionState, error)
}

// ProgressStore keeps the hot copy of every checkpoint in Redis and queues the
// durable write for the progress worker.
type ProgressStore struct {
	rdb     *redis.Client
	durable ProgressReader
	ttl     time.Duration
	log     zerolog.Logger
}

// NewProgressStore creates a new ProgressStore.
func NewProgressStore(rdb *redis.Client, durable ProgressReader, ttl time.Duration, log zerolog.Logger) *ProgressStore {
	return &ProgressStore{
		rdb:     rdb,
		durable: durable,
		ttl:     ttl,
		log:     log.With().Str("component", "progress_store").Logger(),
	}
}

// Save writes the snapshot to Redis and queues it for PostgreSQL in one transaction.
func (s *ProgressStore) Save(ctx context.Context, userID, courseID string, state model.SessionState) (err error) {
	defer func() {
		monitoring.CheckpointWrites.WithLabelValues(string(model.ProgressOpSave), monitoring.Result(err)).Inc()
	}()

	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	job, err := json.Marshal(model.ProgressJob{
		Op:       model.ProgressOpSave,
		UserID:   userID,
		CourseID: courseID,
		State:    &state,
		QueuedAt: time.Now(),
	})
	if err != nil {
		return err
	}

	key := config.CacheKey.ProgressKey(userID, courseID)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, raw, s.ttl)
		pipe.RPush(ctx, config.WorkerKey.PersistProgressQueue, job)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

// Load returns the hot copy, falling back to PostgreSQL on a cache miss and
// repopulating Redis from it.
func (s *ProgressStore) Load(ctx context.Context, userID, courseID string) (*model.SessionState, error) {
	key := config.CacheKey.ProgressKey(userID, courseID)

	val, err := s.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		if val == tombstone {
			return nil, nil
		}
		var state model.SessionState
		if err := json.Unmarshal([]byte(val), &state); err != nil {
			return nil, fmt.Errorf("decode progress: %w", err)
		}
		return &state, nil

	case errors.Is(err, redis.Nil):
		// Cache miss: fall through to PostgreSQL.

	default:
		return nil, fmt.Errorf("redis get progress: %w", err)
	}

	state, err := s.durable.Get(ctx, userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	if state == nil {
		return nil, nil
	}

	// Self-heal without clobbering a write that raced with us.
	if raw, err := json.Marshal(state); err == nil {
		if err := s.rdb.SetNX(ctx, key, raw, s.ttl).Err(); err != nil {
			s.log.Warn().Err(err).Str("user_id", userID).Str("course_id", courseID).Msg("Failed to re-cache progress")
		}
	}
	return state, nil
}

// Delete replaces the hot copy with a tombstone and queues the durable delete.
func (s *ProgressStore) Delete(ctx context.Context, userID, courseID string) (err error) {
	defer func() {
		monitoring.CheckpointWrites.WithLabelValues(string(model.ProgressOpDelete), monitoring.Result(err)).Inc()
	}()

	job, err := json.Marshal(model.ProgressJob{
		Op:       model.ProgressOpDelete,
		UserID:   userID,
		CourseID: courseID,
		QueuedAt: time.Now(),
	})
	if err != nil {
		return err
	}

	key := config.CacheKey.ProgressKey(userID, courseID)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, tombstone, tombstoneTTL)
		pipe.RPush(ctx, config.WorkerKey.PersistProgressQueue, job)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete progress: %w", err)
	}
	return nil
}

// LatestByUser returns the user's unfinished checkpoints across courses, newest first.
// Each durable row is replaced by its hot copy, so a checkpoint deleted or finished in
// Redis but not yet in PostgreSQL is skipped.
func (s *ProgressStore) LatestByUser(ctx context.Context, userID string, limit int) ([]model.SessionState, error) {
	rows, err := s.durable.LatestByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}

	out := make([]model.SessionState, 0, len(rows))
	for i := range rows {
		state, err := s.Load(ctx, userID, rows[i].CourseID)
		if err != nil {
			return nil, err
		}
		if state == nil || state.Status == model.SessionStatusFinished {
			continue
		}
		out = append(out, *state)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}
