package assessment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Deji-Tech/lawsa-iuo/internal/assessment"
	"github.com/Deji-Tech/lawsa-iuo/internal/model"
	"github.com/Deji-Tech/lawsa-iuo/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func checkpointAt(rev int64) model.SessionState {
	return model.SessionState{
		SessionID:        uuid.MustParse("8f7d1c1e-3a52-4c1b-9a38-0d0f3b7c2a11"),
		UserID:           "user-1",
		CourseID:         "law-101",
		Mode:             model.SessionModeGraded,
		Questions:        testutil.Questions(0, 1),
		Answers:          []int{-1, -1},
		RemainingSeconds: 60,
		DurationSeconds:  60,
		Status:           model.SessionStatusRunning,
		Revision:         rev,
	}
}

func newAutosaver(store *testutil.ProgressStore, debounce time.Duration) *assessment.Autosaver {
	return assessment.NewAutosaver(store, "user-1", "law-101", assessment.AutosaveOptions{
		Debounce:     debounce,
		WriteTimeout: time.Second,
		MaxBackoff:   4 * debounce,
	})
}

func TestAutosaver_DebounceCoalescesBursts(t *testing.T) {
	store := testutil.NewProgressStore()
	a := newAutosaver(store, 30*time.Millisecond)
	defer a.Close()

	for rev := int64(1); rev <= 5; rev++ {
		a.Enqueue(checkpointAt(rev))
	}

	assert.Eventually(t, func() bool { return len(store.SavedRevisions()) == 1 }, waitFor, tick)
	assert.Equal(t, []int64{5}, store.SavedRevisions())
	assert.True(t, a.Status().Saved())
	assert.False(t, a.Status().LastSavedAt.IsZero())
}

func TestAutosaver_IgnoresOlderRevisions(t *testing.T) {
	store := testutil.NewProgressStore()
	a := newAutosaver(store, 10*time.Millisecond)
	defer a.Close()

	require.NoError(t, a.Save(context.Background(), checkpointAt(5)))
	a.Enqueue(checkpointAt(3))
	require.NoError(t, a.Save(context.Background(), checkpointAt(4)))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []int64{5}, store.SavedRevisions())

	got, err := store.Load(context.Background(), "user-1", "law-101")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(5), got.Revision)
}

func TestAutosaver_SaveSupersedesPending(t *testing.T) {
	store := testutil.NewProgressStore()
	a := newAutosaver(store, time.Hour)
	defer a.Close()

	a.Enqueue(checkpointAt(2))
	require.NoError(t, a.Save(context.Background(), checkpointAt(3)))
	require.NoError(t, a.Flush(context.Background()))

	assert.Equal(t, []int64{3}, store.SavedRevisions())
}

func TestAutosaver_FlushWritesPending(t *testing.T) {
	store := testutil.NewProgressStore()
	a := newAutosaver(store, time.Hour)
	defer a.Close()

	a.Enqueue(checkpointAt(7))
	assert.Empty(t, store.SavedRevisions())

	require.NoError(t, a.Flush(context.Background()))
	assert.Equal(t, []int64{7}, store.SavedRevisions())
}

func TestAutosaver_RetriesAfterFailure(t *testing.T) {
	store := testutil.NewProgressStore()
	store.Fail(errors.New("connection refused"))
	a := newAutosaver(store, 5*time.Millisecond)
	defer a.Close()

	a.Enqueue(checkpointAt(1))
	assert.Eventually(t, func() bool { return !a.Status().Saved() }, waitFor, tick)
	assert.ErrorContains(t, a.Status().LastError, "connection refused")

	store.Fail(nil)
	assert.Eventually(t, func() bool {
		revs := store.SavedRevisions()
		return len(revs) == 1 && revs[0] == 1
	}, waitFor, tick)
	assert.Eventually(t, func() bool { return a.Status().Saved() }, waitFor, tick)
}

func TestAutosaver_SyncSaveReportsFailure(t *testing.T) {
	store := testutil.NewProgressStore()
	store.Fail(errors.New("timeout"))
	a := newAutosaver(store, time.Hour)
	defer a.Close()

	err := a.Save(context.Background(), checkpointAt(1))
	assert.ErrorIs(t, err, assessment.ErrPersistenceUnavailable)
}

func TestAutosaver_NewerSnapshotCancelsInflightWrite(t *testing.T) {
	store := testutil.NewProgressStore()
	release := store.Block()
	a := newAutosaver(store, time.Millisecond)
	defer a.Close()

	a.Enqueue(checkpointAt(1))
	require.Eventually(t, func() bool { return store.Waiting() == 1 }, waitFor, tick)

	a.Enqueue(checkpointAt(2))
	release()

	assert.Eventually(t, func() bool {
		got, _ := store.Load(context.Background(), "user-1", "law-101")
		return got != nil && got.Revision == 2
	}, waitFor, tick)
	revs := store.SavedRevisions()
	assert.Equal(t, int64(2), revs[len(revs)-1])
}

func TestAutosaver_DiscardPreventsResurrection(t *testing.T) {
	store := testutil.NewProgressStore()
	release := store.Block()
	defer release()
	a := newAutosaver(store, time.Millisecond)

	a.Enqueue(checkpointAt(1))
	require.Eventually(t, func() bool { return store.Waiting() == 1 }, waitFor, tick)

	require.NoError(t, a.Discard(context.Background()))
	release()

	a.Enqueue(checkpointAt(2))
	assert.ErrorIs(t, a.Save(context.Background(), checkpointAt(3)), assessment.ErrCheckpointerClosed)

	time.Sleep(30 * time.Millisecond)
	assert.False(t, store.Has("user-1", "law-101"))
	assert.Empty(t, store.SavedRevisions())
	assert.Equal(t, 1, store.Deletes())
}

func TestAutosaver_DiscardDeletesExistingCheckpoint(t *testing.T) {
	store := testutil.NewProgressStore()
	store.Put(checkpointAt(9))
	a := newAutosaver(store, time.Hour)

	a.Enqueue(checkpointAt(10))
	require.NoError(t, a.Discard(context.Background()))

	assert.False(t, store.Has("user-1", "law-101"))
	assert.Empty(t, store.SavedRevisions())
}

func TestAutosaver_WithSession(t *testing.T) {
	store := testutil.NewProgressStore()
	a := newAutosaver(store, 5*time.Millisecond)
	attempts := &testutil.AttemptLog{}

	s, err := assessment.Start(testutil.Questions(0, 1), assessment.Options{
		UserID:      "user-1",
		CourseID:    "law-101",
		Duration:    time.Minute,
		Checkpoints: a,
		Attempts:    attempts,
	})
	require.NoError(t, err)
	require.NoError(t, s.SelectAnswer(1, 1))

	assert.Eventually(t, func() bool {
		got, _ := store.Load(context.Background(), "user-1", "law-101")
		return got != nil && got.Answers[1] == 1
	}, waitFor, tick)

	require.NoError(t, s.Pause(context.Background()))
	got, err := store.Load(context.Background(), "user-1", "law-101")
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusPaused, got.Status)

	require.NoError(t, s.Continue())
	_, err = s.Submit(context.Background())
	require.NoError(t, err)
	assert.False(t, store.Has("user-1", "law-101"))
	assert.Len(t, attempts.Results(), 1)
}
