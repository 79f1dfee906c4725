package service

import (
	"context"
	"fmt"

	"github.com/Deji-Tech/lawsa-iuo/internal/model"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// AttemptReader is the read side of the attempt store.
type AttemptReader interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]model.AttemptRecord, error)
	AverageByUser(ctx context.Context, userID, level string) (int, int, error)
}

// AttemptService serves a learner's attempt history.
type AttemptService struct {
	repo AttemptReader
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(repo AttemptReader) *AttemptService {
	return &AttemptService{repo: repo}
}

// History returns the learner's latest attempts, newest first.
func (s *AttemptService) History(ctx context.Context, userID string, limit int) ([]model.AttemptRecord, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	records, err := s.repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return records, nil
}

// Average returns the learner's mean graded score, optionally for one level.
func (s *AttemptService) Average(ctx context.Context, userID, level string) (*model.AttemptAverage, error) {
	avg, n, err := s.repo.AverageByUser(ctx, userID, level)
	if err != nil {
		return nil, fmt.Errorf("average attempts: %w", err)
	}
	return &model.AttemptAverage{Level: level, Average: avg, Attempts: n}, nil
}
