package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Deji-Tech/lawsa-iuo/internal/config"
	"github.com/Deji-Tech/lawsa-iuo/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockProgressWriter struct {
	mock.Mock
}

func (m *mockProgressWriter) Upsert(ctx context.Context, state *model.SessionState) error {
	return m.Called(ctx, state).Error(0)
}

func (m *mockProgressWriter) Delete(ctx context.Context, userID, courseID string) error {
	return m.Called(ctx, userID, courseID).Error(0)
}

type mockAttemptWriter struct {
	mock.Mock
}

func (m *mockAttemptWriter) Insert(ctx context.Context, a *model.AttemptResult) error {
	return m.Called(ctx, a).Error(0)
}

func (m *mockAttemptWriter) InsertBatch(ctx context.Context, attempts []*model.AttemptResult) error {
	return m.Called(ctx, attempts).Error(0)
}

func TestDecodeProgressJob(t *testing.T) {
	save, _ := json.Marshal(model.ProgressJob{
		Op: model.ProgressOpSave, UserID: "u", CourseID: "c",
		State: &model.SessionState{UserID: "u", CourseID: "c", Revision: 3},
	})
	del, _ := json.Marshal(model.ProgressJob{Op: model.ProgressOpDelete, UserID: "u", CourseID: "c"})
	noState, _ := json.Marshal(model.ProgressJob{Op: model.ProgressOpSave, UserID: "u", CourseID: "c"})
	noUser, _ := json.Marshal(model.ProgressJob{Op: model.ProgressOpDelete, CourseID: "c"})

	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"save", string(save), false},
		{"delete", string(del), false},
		{"save without state", string(noState), true},
		{"missing user", string(noUser), true},
		{"not json", "{", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job, err := decodeProgressJob(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "u", job.UserID)
		})
	}
}

func TestProgressWorker_Apply(t *testing.T) {
	repo := new(mockProgressWriter)
	w := NewProgressWorker(repo, nil, zerolog.Nop())
	ctx := context.Background()
	state := &model.SessionState{UserID: "u", CourseID: "c", Revision: 4}

	repo.On("Upsert", ctx, state).Return(nil).Once()
	repo.On("Delete", ctx, "u", "c").Return(errors.New("conn reset")).Once()

	assert.NoError(t, w.apply(ctx, &model.ProgressJob{Op: model.ProgressOpSave, UserID: "u", CourseID: "c", State: state}))
	assert.Error(t, w.apply(ctx, &model.ProgressJob{Op: model.ProgressOpDelete, UserID: "u", CourseID: "c"}))
	assert.NoError(t, w.apply(ctx, &model.ProgressJob{Op: "archive", UserID: "u", CourseID: "c"}))
	repo.AssertExpectations(t)
}

func TestAttemptWorker_FlushBatch(t *testing.T) {
	repo := new(mockAttemptWriter)
	w := NewAttemptWorker(repo, nil, zerolog.Nop())
	batch := []*model.AttemptResult{{SessionID: uuid.New()}, {SessionID: uuid.New()}}

	repo.On("InsertBatch", mock.Anything, batch).Return(nil).Once()

	assert.Empty(t, w.flush(context.Background(), batch))
	repo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}

func TestAttemptWorker_FallsBackToSingleInserts(t *testing.T) {
	repo := new(mockAttemptWriter)
	w := NewAttemptWorker(repo, nil, zerolog.Nop())
	ok := &model.AttemptResult{SessionID: uuid.New(), UserID: "a"}
	bad := &model.AttemptResult{SessionID: uuid.New(), UserID: "b"}
	batch := []*model.AttemptResult{ok, bad}

	repo.On("InsertBatch", mock.Anything, batch).Return(errors.New("batch failed")).Once()
	repo.On("Insert", mock.Anything, ok).Return(nil).Once()
	repo.On("Insert", mock.Anything, bad).Return(errors.New("constraint")).Once()

	failed := w.flush(context.Background(), batch)
	assert.Equal(t, []*model.AttemptResult{bad}, failed)
	repo.AssertExpectations(t)
}

func TestAttemptWorker_EmptyBatch(t *testing.T) {
	repo := new(mockAttemptWriter)
	w := NewAttemptWorker(repo, nil, zerolog.Nop())

	assert.Nil(t, w.flush(context.Background(), nil))
	repo.AssertNotCalled(t, "InsertBatch", mock.Anything, mock.Anything)
}

func TestRetryTarget_DeadLettersAfterMaxAttempts(t *testing.T) {
	job := &model.ProgressJob{Op: model.ProgressOpDelete, UserID: "u", CourseID: "c"}

	for i := 1; i < MaxProgressAttempts; i++ {
		key, dead := retryTarget(job)
		assert.False(t, dead, "attempt %d", i)
		assert.Equal(t, config.WorkerKey.PersistProgressQueue, key)
		assert.Equal(t, i, job.Attempts)
	}

	key, dead := retryTarget(job)
	assert.True(t, dead)
	assert.Equal(t, config.WorkerKey.PersistProgressDead, key)

	raw, err := json.Marshal(job)
	require.NoError(t, err)
	decoded, err := decodeProgressJob(string(raw))
	require.NoError(t, err)
	assert.Equal(t, MaxProgressAttempts, decoded.Attempts)
}
