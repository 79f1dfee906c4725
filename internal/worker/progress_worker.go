package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Deji-Tech/lawsa-iuo/internal/config"
	"github.com/Deji-Tech/lawsa-iuo/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	ProgressPollTimeout = 1 * time.Second
	ProgressRetryDelay  = 5 * time.Second
	// MaxProgressAttempts is how often a job is applied before it is dead-lettered.
	MaxProgressAttempts = 5
)

// ProgressWriter is the durable progress table.
type ProgressWriter interface {
	Upsert(ctx context.Context, state *model.SessionState) error
	Delete(ctx context.Context, userID, courseID string) error
}

// ProgressWorker consumes persist_progress_queue and applies checkpoints to PostgreSQL.
type ProgressWorker struct {
	repo ProgressWriter
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewProgressWorker creates a new ProgressWorker.
func NewProgressWorker(repo ProgressWriter, rdb *redis.Client, log zerolog.Logger) *ProgressWorker {
	return &ProgressWorker{
		repo: repo,
		rdb:  rdb,
		log:  log.With().Str("component", "progress_worker").Logger(),
	}
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *ProgressWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *ProgressWorker) processNext(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, ProgressPollTimeout, config.WorkerKey.PersistProgressQueue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}
	if len(result) < 2 {
		return
	}

	job, err := decodeProgressJob(result[1])
	if err != nil {
		w.log.Error().Err(err).Msg("Dropping malformed progress job")
		return
	}

	if err := w.apply(ctx, job); err != nil {
		if w.requeue(context.Background(), job, err) {
			select {
			case <-ctx.Done():
			case <-time.After(ProgressRetryDelay):
			}
		}
	}
}

// retryTarget counts one more failure on job and returns the list it belongs on:
// the live queue, or the dead-letter list once MaxProgressAttempts is reached.
func retryTarget(job *model.ProgressJob) (key string, dead bool) {
	job.Attempts++
	if job.Attempts >= MaxProgressAttempts {
		return config.WorkerKey.PersistProgressDead, true
	}
	return config.WorkerKey.PersistProgressQueue, false
}

// requeue puts a failed job back at the head of the queue, so a later job for the
// same pair cannot overtake it, or parks it in the dead-letter list. It reports
// whether the job will be retried.
func (w *ProgressWorker) requeue(ctx context.Context, job *model.ProgressJob, cause error) bool {
	key, dead := retryTarget(job)
	raw, err := json.Marshal(job)
	if err != nil {
		w.log.Error().Err(err).Msg("Dropping unencodable progress job")
		return false
	}

	log := w.log.With().
		Str("op", string(job.Op)).
		Str("user_id", job.UserID).
		Str("course_id", job.CourseID).
		Int("attempts", job.Attempts).
		Logger()

	if dead {
		log.Error().Err(cause).Msg("Progress job failed too often, moved to dead letter")
		if err := w.rdb.RPush(ctx, key, raw).Err(); err != nil {
			log.Error().Err(err).Msg("Dead letter push failed, job lost")
		}
		return false
	}

	log.Error().Err(cause).Msg("Persist error, retrying in 5s")
	if err := w.rdb.LPush(ctx, key, raw).Err(); err != nil {
		log.Error().Err(err).Msg("Requeue failed, job lost")
		return false
	}
	return true
}

func decodeProgressJob(raw string) (*model.ProgressJob, error) {
	var job model.ProgressJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, err
	}
	if job.UserID == "" || job.CourseID == "" {
		return nil, errors.New("progress job without user or course")
	}
	if job.Op == model.ProgressOpSave && job.State == nil {
		return nil, errors.New("save job without state")
	}
	return &job, nil
}

func (w *ProgressWorker) apply(ctx context.Context, job *model.ProgressJob) error {
	switch job.Op {
	case model.ProgressOpSave:
		return w.repo.Upsert(ctx, job.State)
	case model.ProgressOpDelete:
		return w.repo.Delete(ctx, job.UserID, job.CourseID)
	default:
		w.log.Warn().Str("op", string(job.Op)).Msg("Unknown progress op, skipped")
		return nil
	}
}

// drain processes all remaining items in the queue before shutdown.
func (w *ProgressWorker) drain(ctx context.Context) {
	drained := 0
	for {
		raw, err := w.rdb.LPop(ctx, config.WorkerKey.PersistProgressQueue).Result()
		if err != nil {
			break
		}

		job, err := decodeProgressJob(raw)
		if err != nil {
			w.log.Error().Err(err).Msg("Drain decode error")
			continue
		}

		if err := w.apply(ctx, job); err != nil {
			if w.requeue(ctx, job, err) {
				break
			}
			continue
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
