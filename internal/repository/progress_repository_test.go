//go:build integration

package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/Deji-Tech/lawsa-iuo/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a migrated database: DATABASE_URL=... go test -tags integration ./internal/repository/
func newProgressRepo(t *testing.T) *ProgressRepository {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	pool, err := pgxpool.New(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return NewProgressRepository(pool)
}

func progressState(userID, courseID string, updated time.Time) *model.SessionState {
	return &model.SessionState{
		SessionID: uuid.New(),
		UserID:    userID,
		CourseID:  courseID,
		Mode:      model.SessionModeGraded,
		Questions: []model.Question{{
			ID: "q1", CourseID: courseID, Text: "Question 1",
			Options: []string{"A", "B"}, CorrectOptionIndex: 1,
		}},
		Answers:          []int{-1},
		RemainingSeconds: 50,
		DurationSeconds:  60,
		Status:           model.SessionStatusPaused,
		UpdatedAt:        updated,
		Revision:         3,
	}
}

func TestProgressRepository_FinishedRowIsHidden(t *testing.T) {
	repo := newProgressRepo(t)
	ctx := context.Background()
	userID := "it-" + uuid.NewString()
	t.Cleanup(func() { _ = repo.Delete(ctx, userID, "law-101") })

	st := progressState(userID, "law-101", time.Now())
	require.NoError(t, repo.Upsert(ctx, st))
	got, err := repo.Get(ctx, userID, "law-101")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, st.SessionID, got.SessionID)

	st.Status = model.SessionStatusFinished
	st.Revision++
	require.NoError(t, repo.Upsert(ctx, st))

	got, err = repo.Get(ctx, userID, "law-101")
	require.NoError(t, err)
	assert.Nil(t, got)

	listed, err := repo.LatestByUser(ctx, userID, 10)
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestProgressRepository_LatestByUserNewestFirst(t *testing.T) {
	repo := newProgressRepo(t)
	ctx := context.Background()
	userID := "it-" + uuid.NewString()
	now := time.Now().UTC().Truncate(time.Millisecond)
	courses := []string{"law-101", "law-202", "law-303"}
	t.Cleanup(func() {
		for _, c := range courses {
			_ = repo.Delete(ctx, userID, c)
		}
	})

	require.NoError(t, repo.Upsert(ctx, progressState(userID, "law-101", now.Add(-2*time.Hour))))
	require.NoError(t, repo.Upsert(ctx, progressState(userID, "law-202", now)))
	require.NoError(t, repo.Upsert(ctx, progressState(userID, "law-303", now.Add(-time.Hour))))
	require.NoError(t, repo.Upsert(ctx, progressState("someone-else-"+userID, "law-101", now.Add(time.Hour))))
	t.Cleanup(func() { _ = repo.Delete(ctx, "someone-else-"+userID, "law-101") })

	listed, err := repo.LatestByUser(ctx, userID, 2)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "law-202", listed[0].CourseID)
	assert.Equal(t, "law-303", listed[1].CourseID)
}
