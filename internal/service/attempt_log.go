package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Deji-Tech/lawsa-iuo/internal/config"
	"github.com/Deji-Tech/lawsa-iuo/internal/model"
	"github.com/Deji-Tech/lawsa-iuo/internal/monitoring"
	"github.com/redis/go-redis/v9"
)

// AttemptLog queues finished attempts for the attempt worker.
type AttemptLog struct {
	rdb *redis.Client
}

// NewAttemptLog creates a new AttemptLog.
func NewAttemptLog(rdb *redis.Client) *AttemptLog {
	return &AttemptLog{rdb: rdb}
}

// Append pushes the result onto persist_attempts_queue.
func (l *AttemptLog) Append(ctx context.Context, userID string, result model.AttemptResult) error {
	result.UserID = userID
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	if err := l.rdb.RPush(ctx, config.WorkerKey.PersistAttemptsQueue, raw).Err(); err != nil {
		return fmt.Errorf("queue attempt: %w", err)
	}

	trigger := "manual"
	if result.AutoSubmitted {
		trigger = "timeout"
	}
	monitoring.AttemptsRecorded.WithLabelValues(trigger).Inc()
	return nil
}
