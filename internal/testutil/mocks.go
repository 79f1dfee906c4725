package testutil

import (
	"context"

	"github.com/Deji-Tech/lawsa-iuo/internal/model"
	"github.com/stretchr/testify/mock"
)

// MockQuestionBank is a testify mock of assessment.QuestionBank.
type MockQuestionBank struct {
	mock.Mock
}

func (m *MockQuestionBank) Fetch(ctx context.Context, courseID string, limit int) ([]model.Question, error) {
	args := m.Called(ctx, courseID, limit)
	qs, _ := args.Get(0).([]model.Question)
	return qs, args.Error(1)
}

// MockAttemptLog is a testify mock of assessment.AttemptLog.
type MockAttemptLog struct {
	mock.Mock
}

func (m *MockAttemptLog) Append(ctx context.Context, userID string, result model.AttemptResult) error {
	return m.Called(ctx, userID, result).Error(0)
}
