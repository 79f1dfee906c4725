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
	AttemptBatchSize    = 50
	AttemptBatchTimeout = 2 * time.Second
	AttemptPollTimeout  = 1 * time.Second
)

// AttemptWriter is the durable attempt table.
type AttemptWriter interface {
	Insert(ctx context.Context, a *model.AttemptResult) error
	InsertBatch(ctx context.Context, attempts []*model.AttemptResult) error
}

// AttemptWorker consumes persist_attempts_queue and inserts finished attempts in batches.
type AttemptWorker struct {
	repo AttemptWriter
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewAttemptWorker(repo AttemptWriter, rdb *redis.Client, log zerolog.Logger) *AttemptWorker {
	return &AttemptWorker{
		repo: repo,
		rdb:  rdb,
		log:  log.With().Str("component", "attempt_worker").Logger(),
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *AttemptWorker) Start(ctx context.Context) {
	w.log.Info().Msg("AttemptWorker started")

	batch := make([]*model.AttemptResult, 0, AttemptBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= AttemptBatchSize || time.Since(lastFlush) >= AttemptBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, AttemptPollTimeout, config.WorkerKey.PersistAttemptsQueue).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}
			if len(item) < 2 {
				continue
			}

			var a model.AttemptResult
			if err := json.Unmarshal([]byte(item[1]), &a); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}
			batch = append(batch, &a)
		}
	}
}

// ----------------------------------------------------------------
// Batch insert with single-row fallback
// ----------------------------------------------------------------

func (w *AttemptWorker) flushSafe(ctx context.Context, batch []*model.AttemptResult) {
	for _, a := range w.flush(ctx, batch) {
		raw, _ := json.Marshal(a)
		w.rdb.RPush(context.Background(), config.WorkerKey.PersistAttemptsQueue, raw)
	}
}

// flush persists batch and returns the attempts that could not be stored.
func (w *AttemptWorker) flush(ctx context.Context, batch []*model.AttemptResult) []*model.AttemptResult {
	if len(batch) == 0 {
		return nil
	}

	err := w.repo.InsertBatch(ctx, batch)
	if err == nil {
		w.log.Debug().Int("count", len(batch)).Msg("Attempts persisted")
		return nil
	}
	w.log.Warn().Err(err).Msg("bulk attempt insert failed, using fallback")

	var failed []*model.AttemptResult
	for _, a := range batch {
		if err := w.repo.Insert(ctx, a); err != nil {
			w.log.Error().Err(err).
				Str("session_id", a.SessionID.String()).
				Str("user_id", a.UserID).
				Msg("Insert failed, requeueing")
			failed = append(failed, a)
		}
	}
	return failed
}
