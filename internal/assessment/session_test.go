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

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	clock    *testutil.Clock
	cp       *testutil.Checkpointer
	attempts *testutil.AttemptLog
}

func newFixture() *fixture {
	return &fixture{
		clock:    testutil.NewClock(epoch),
		cp:       &testutil.Checkpointer{},
		attempts: &testutil.AttemptLog{},
	}
}

func (f *fixture) options(duration time.Duration) assessment.Options {
	return assessment.Options{
		UserID:      "user-1",
		CourseID:    "law-101",
		Duration:    duration,
		Clock:       f.clock,
		Checkpoints: f.cp,
		Attempts:    f.attempts,
	}
}

func (f *fixture) start(t *testing.T, duration time.Duration, correct ...int) *assessment.Session {
	t.Helper()
	s, err := assessment.Start(testutil.Questions(correct...), f.options(duration))
	require.NoError(t, err)
	return s
}

func waitSettled(t *testing.T, s *assessment.Session) {
	t.Helper()
	select {
	case <-s.Settled():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not settle")
	}
}

func TestStart_InitialState(t *testing.T) {
	f := newFixture()
	s := f.start(t, time.Minute, 0, 1, 2)

	st := s.Snapshot()
	assert.Equal(t, model.SessionStatusRunning, st.Status)
	assert.Equal(t, []int{-1, -1, -1}, st.Answers)
	assert.Equal(t, 0, st.CurrentIndex)
	assert.Equal(t, 60, st.RemainingSeconds)
	assert.Equal(t, 60, st.DurationSeconds)
	assert.Equal(t, model.SessionModeGraded, st.Mode)
	assert.NotEqual(t, uuid.Nil, st.SessionID)
	assert.Equal(t, epoch, st.StartedAt)
	assert.Equal(t, 3, s.UnansweredCount())
	assert.Len(t, f.cp.Enqueued(), 1)
}

func TestStart_RejectsInvalidQuestionSets(t *testing.T) {
	dup := testutil.Questions(0, 1)
	dup[1].ID = dup[0].ID

	badCorrect := testutil.Questions(0)
	badCorrect[0].CorrectOptionIndex = 5

	oneOption := testutil.Questions(0)
	oneOption[0].Options = []string{"only"}

	tests := []struct {
		name      string
		questions []model.Question
	}{
		{"empty", nil},
		{"duplicate id", dup},
		{"correct option out of range", badCorrect},
		{"too few options", oneOption},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := assessment.Start(tt.questions, newFixture().options(time.Minute))
			assert.ErrorIs(t, err, assessment.ErrInvalidQuestionSet)
		})
	}
}

func TestStart_QuestionsAreCopied(t *testing.T) {
	qs := testutil.Questions(0, 1)
	s, err := assessment.Start(qs, newFixture().options(time.Minute))
	require.NoError(t, err)

	qs[0].Options[0] = "changed"
	assert.Equal(t, "A", s.Snapshot().Questions[0].Options[0])
}

func TestTick_CountsDown(t *testing.T) {
	f := newFixture()
	s := f.start(t, time.Minute, 0)

	assert.Nil(t, s.Tick(1))
	assert.Nil(t, s.Tick(5))
	assert.Equal(t, 54, s.Snapshot().RemainingSeconds)
}

func TestTick_ClampsAtZeroAndAutoSubmits(t *testing.T) {
	f := newFixture()
	s := f.start(t, 10*time.Second, 1, 0)
	require.NoError(t, s.SelectAnswer(0, 1))

	res := s.Tick(11)
	require.NotNil(t, res)
	assert.True(t, res.AutoSubmitted)
	assert.Equal(t, 1, res.CorrectCount)
	assert.Equal(t, 50, res.Percentage)
	assert.Equal(t, 10, res.TimeTakenSeconds)

	st := s.Snapshot()
	assert.Equal(t, 0, st.RemainingSeconds)
	assert.Equal(t, model.SessionStatusFinished, st.Status)

	waitSettled(t, s)
	assert.True(t, f.cp.Discarded())
	require.Len(t, f.attempts.Results(), 1)
	assert.Equal(t, "user-1", f.attempts.Results()[0].UserID)

	assert.Nil(t, s.Tick(1))
	assert.ErrorIs(t, s.SelectAnswer(1, 0), assessment.ErrSessionFinished)
}

func TestTick_IgnoredWhilePaused(t *testing.T) {
	f := newFixture()
	s := f.start(t, time.Minute, 0)
	require.NoError(t, s.Pause(context.Background()))

	assert.Nil(t, s.Tick(120))
	assert.Equal(t, 60, s.Snapshot().RemainingSeconds)
	assert.Equal(t, model.SessionStatusPaused, s.Status())
}

func TestTick_PeriodicCheckpoint(t *testing.T) {
	f := newFixture()
	opts := f.options(time.Minute)
	opts.CheckpointInterval = 30 * time.Second
	s, err := assessment.Start(testutil.Questions(0), opts)
	require.NoError(t, err)

	for i := 0; i < 29; i++ {
		s.Tick(1)
	}
	assert.Len(t, f.cp.Enqueued(), 1)

	s.Tick(1)
	enq := f.cp.Enqueued()
	require.Len(t, enq, 2)
	assert.Equal(t, 30, enq[1].RemainingSeconds)
}

func TestSelectAnswer_Idempotent(t *testing.T) {
	f := newFixture()
	s := f.start(t, time.Minute, 0, 1)

	require.NoError(t, s.SelectAnswer(1, 2))
	first := s.Snapshot()
	require.NoError(t, s.SelectAnswer(1, 2))
	second := s.Snapshot()

	assert.Equal(t, first.Answers, second.Answers)
	assert.Equal(t, first.Revision, second.Revision)
	assert.Len(t, f.cp.Enqueued(), 2)
	assert.Equal(t, []int{-1, 2}, second.Answers)
}

func TestSelectAnswer_ChangeOverwrites(t *testing.T) {
	f := newFixture()
	s := f.start(t, time.Minute, 0)

	require.NoError(t, s.SelectAnswer(0, 1))
	require.NoError(t, s.SelectAnswer(0, 2))
	assert.Equal(t, []int{2}, s.Snapshot().Answers)
}

func TestSelectAnswer_InvalidLeavesAnswersUnchanged(t *testing.T) {
	f := newFixture()
	s := f.start(t, time.Minute, 0, 1)
	require.NoError(t, s.SelectAnswer(0, 1))
	before := s.Snapshot()

	assert.ErrorIs(t, s.SelectAnswer(0, 3), assessment.ErrInvalidAnswer)
	assert.ErrorIs(t, s.SelectAnswer(0, -1), assessment.ErrInvalidAnswer)
	assert.ErrorIs(t, s.SelectAnswer(2, 0), assessment.ErrInvalidAnswer)
	assert.ErrorIs(t, s.SelectAnswer(-1, 0), assessment.ErrInvalidAnswer)

	after := s.Snapshot()
	assert.Equal(t, before.Answers, after.Answers)
	assert.Equal(t, before.Revision, after.Revision)
}

func TestSelectAnswer_RejectedWhilePaused(t *testing.T) {
	f := newFixture()
	s := f.start(t, time.Minute, 0)
	require.NoError(t, s.Pause(context.Background()))

	assert.ErrorIs(t, s.SelectAnswer(0, 1), assessment.ErrNotRunning)
	assert.ErrorIs(t, s.Advance(), assessment.ErrNotRunning)
}

func TestNavigation_BoundariesAreNoops(t *testing.T) {
	f := newFixture()
	s := f.start(t, time.Minute, 0, 1, 2)

	require.NoError(t, s.Back())
	assert.Equal(t, 0, s.Snapshot().CurrentIndex)

	require.NoError(t, s.Advance())
	require.NoError(t, s.Advance())
	assert.Equal(t, 2, s.Snapshot().CurrentIndex)

	rev := s.Snapshot().Revision
	require.NoError(t, s.Advance())
	assert.Equal(t, 2, s.Snapshot().CurrentIndex)
	assert.Equal(t, rev, s.Snapshot().Revision)

	require.NoError(t, s.Back())
	assert.Equal(t, 1, s.Snapshot().CurrentIndex)
}

func TestPauseContinue_PreservesState(t *testing.T) {
	f := newFixture()
	s := f.start(t, time.Minute, 0, 1)
	require.NoError(t, s.SelectAnswer(0, 2))
	require.NoError(t, s.Advance())
	s.Tick(7)
	before := s.Snapshot()

	require.NoError(t, s.Pause(context.Background()))
	require.NoError(t, s.Pause(context.Background()))
	saved := f.cp.Saved()
	require.Len(t, saved, 1)
	assert.Equal(t, model.SessionStatusPaused, saved[0].Status)
	assert.Equal(t, before.Answers, saved[0].Answers)
	assert.Equal(t, 53, saved[0].RemainingSeconds)

	require.NoError(t, s.Continue())
	after := s.Snapshot()
	assert.Equal(t, model.SessionStatusRunning, after.Status)
	assert.Equal(t, before.Answers, after.Answers)
	assert.Equal(t, before.CurrentIndex, after.CurrentIndex)
	assert.Equal(t, before.RemainingSeconds, after.RemainingSeconds)
}

func TestPause_ReportsPersistenceFailure(t *testing.T) {
	f := newFixture()
	f.cp.SaveErr = errors.New("redis down")
	s := f.start(t, time.Minute, 0)

	err := s.Pause(context.Background())
	assert.ErrorIs(t, err, assessment.ErrPersistenceUnavailable)
	assert.Equal(t, model.SessionStatusPaused, s.Status())
	assert.False(t, s.SaveStatus().Saved())
}

func TestResume_RoundTrip(t *testing.T) {
	f := newFixture()
	s := f.start(t, time.Minute, 0, 1, 2)
	require.NoError(t, s.SelectAnswer(0, 0))
	require.NoError(t, s.SelectAnswer(2, 1))
	require.NoError(t, s.Advance())
	s.Tick(15)
	require.NoError(t, s.Pause(context.Background()))
	checkpoint := f.cp.Saved()[0]

	f2 := newFixture()
	f2.clock.Advance(time.Hour)
	resumed, err := assessment.Resume(checkpoint, f2.options(0))
	require.NoError(t, err)

	st := resumed.Snapshot()
	assert.Equal(t, checkpoint.SessionID, st.SessionID)
	assert.Equal(t, []int{0, -1, 1}, st.Answers)
	assert.Equal(t, 1, st.CurrentIndex)
	assert.Equal(t, 45, st.RemainingSeconds)
	assert.Equal(t, 60, st.DurationSeconds)
	assert.Equal(t, model.SessionStatusRunning, st.Status)
	assert.Equal(t, f2.clock.Now().Add(-15*time.Second), st.StartedAt)
	assert.Greater(t, st.Revision, checkpoint.Revision)

	res, err := resumed.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 15, res.TimeTakenSeconds)
}

func TestResume_RejectsCorruptCheckpoints(t *testing.T) {
	f := newFixture()
	valid := f.start(t, time.Minute, 0, 1).Snapshot()

	tests := []struct {
		name   string
		mutate func(*model.SessionState)
	}{
		{"no questions", func(s *model.SessionState) { s.Questions = nil; s.Answers = nil }},
		{"answer count mismatch", func(s *model.SessionState) { s.Answers = []int{-1} }},
		{"answer out of range", func(s *model.SessionState) { s.Answers[1] = 7 }},
		{"cursor out of range", func(s *model.SessionState) { s.CurrentIndex = 2 }},
		{"negative remaining", func(s *model.SessionState) { s.RemainingSeconds = -1 }},
		{"remaining above duration", func(s *model.SessionState) { s.RemainingSeconds = 61 }},
		{"finished", func(s *model.SessionState) { s.Status = model.SessionStatusFinished }},
		{"missing id", func(s *model.SessionState) { s.SessionID = uuid.Nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cp := valid.Clone()
			tt.mutate(&cp)
			_, err := assessment.Resume(cp, newFixture().options(0))
			assert.ErrorIs(t, err, assessment.ErrCheckpointCorrupt)
		})
	}
}

func TestSubmit_ScoresAnswers(t *testing.T) {
	f := newFixture()
	s := f.start(t, time.Minute, 1, 0, 1)
	require.NoError(t, s.SelectAnswer(0, 1))
	require.NoError(t, s.SelectAnswer(1, 0))
	require.NoError(t, s.SelectAnswer(2, 2))

	res, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.CorrectCount)
	assert.Equal(t, 3, res.TotalQuestions)
	assert.Equal(t, 67, res.Percentage)
	assert.Equal(t, []bool{true, true, false}, res.PerQuestionCorrectness)
	assert.False(t, res.AutoSubmitted)
	require.Len(t, res.Details, 3)
	assert.Equal(t, model.AnswerDetail{QuestionID: "q3", SelectedAnswer: 2, CorrectAnswer: 1}, res.Details[2])

	select {
	case <-s.Settled():
	default:
		t.Fatal("manual submit should settle before returning")
	}
	assert.True(t, f.cp.Discarded())
	assert.Len(t, f.attempts.Results(), 1)

	got, ok := s.Result()
	require.True(t, ok)
	assert.Equal(t, *res, *got)

	_, err = s.Submit(context.Background())
	assert.ErrorIs(t, err, assessment.ErrSessionFinished)
	assert.ErrorIs(t, s.Pause(context.Background()), assessment.ErrSessionFinished)
	assert.ErrorIs(t, s.Continue(), assessment.ErrSessionFinished)
}

func TestSubmit_AllCorrectScoresFull(t *testing.T) {
	f := newFixture()
	s := f.start(t, time.Minute, 2, 1, 0, 2)
	for i, c := range []int{2, 1, 0, 2} {
		require.NoError(t, s.SelectAnswer(i, c))
	}

	res, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100, res.Percentage)
	assert.Equal(t, 4, res.CorrectCount)
}

func TestSubmit_UnansweredCountsAsWrong(t *testing.T) {
	f := newFixture()
	s := f.start(t, time.Minute, 0, 0)
	require.NoError(t, s.SelectAnswer(0, 0))
	assert.Equal(t, 1, s.UnansweredCount())

	res, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50, res.Percentage)
	assert.Equal(t, -1, res.Details[1].SelectedAnswer)
}

func TestSubmit_AttemptLogFailureSurfaces(t *testing.T) {
	f := newFixture()
	f.attempts.Fail(errors.New("queue unavailable"))
	opts := f.options(time.Minute)
	opts.SettleRetry = 5 * time.Millisecond
	s, err := assessment.Start(testutil.Questions(0), opts)
	require.NoError(t, err)

	res, err := s.Submit(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.ErrorIs(t, s.SaveStatus().LastError, assessment.ErrPersistenceUnavailable)

	f.attempts.Fail(nil)
	waitSettled(t, s)
	assert.Len(t, f.attempts.Results(), 1)
	assert.NoError(t, s.SaveStatus().LastError)
}

func TestSubmit_WritesFinishedCheckpointBeforeDiscard(t *testing.T) {
	f := newFixture()
	s := f.start(t, time.Minute, 0, 1)
	require.NoError(t, s.SelectAnswer(0, 0))

	_, err := s.Submit(context.Background())
	require.NoError(t, err)

	saved := f.cp.Saved()
	require.NotEmpty(t, saved)
	last := saved[len(saved)-1]
	assert.Equal(t, model.SessionStatusFinished, last.Status)
	assert.True(t, f.cp.Discarded())

	_, err = assessment.Resume(last, f.options(time.Minute))
	assert.ErrorIs(t, err, assessment.ErrCheckpointCorrupt)
}

func TestSubmit_FailedDiscardIsRetried(t *testing.T) {
	f := newFixture()
	f.cp.FailDiscard(errors.New("redis down"))
	opts := f.options(time.Minute)
	opts.SettleRetry = 5 * time.Millisecond
	s, err := assessment.Start(testutil.Questions(0), opts)
	require.NoError(t, err)

	_, err = s.Submit(context.Background())
	require.NoError(t, err)
	assert.Len(t, f.attempts.Results(), 1)

	require.Eventually(t, func() bool { return f.cp.Discards() >= 3 }, 2*time.Second, 5*time.Millisecond)
	select {
	case <-s.Settled():
		t.Fatal("session settled while the checkpoint still exists")
	default:
	}

	f.cp.FailDiscard(nil)
	waitSettled(t, s)
	assert.True(t, f.cp.Discarded())
	assert.Len(t, f.attempts.Results(), 1)
}

func TestObserve_HiddenForcesPause(t *testing.T) {
	f := newFixture()
	s := f.start(t, time.Minute, 0)
	sig := assessment.NewVisibilitySignal()
	s.Observe(sig)

	sig.Notify(true)
	assert.Equal(t, model.SessionStatusPaused, s.Status())
	assert.Len(t, f.cp.Saved(), 1)

	sig.Notify(false)
	assert.Equal(t, model.SessionStatusPaused, s.Status())

	require.NoError(t, s.Continue())
	s.Close()
	sig.Notify(true)
	assert.Equal(t, model.SessionStatusRunning, s.Status())
}
