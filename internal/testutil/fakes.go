// Package testutil holds in-memory fakes of the assessment ports for tests.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Deji-Tech/lawsa-iuo/internal/assessment"
	"github.com/Deji-Tech/lawsa-iuo/internal/model"
	"github.com/Deji-Tech/lawsa-iuo/internal/repository"
)

// Questions builds a valid question set with three options each, where correct[i] is
// the correct option of question i.
func Questions(correct ...int) []model.Question {
	qs := make([]model.Question, len(correct))
	for i, c := range correct {
		qs[i] = model.Question{
			ID:                 fmt.Sprintf("q%d", i+1),
			CourseID:           "law-101",
			Level:              "100",
			Text:               fmt.Sprintf("Question %d", i+1),
			Options:            []string{"A", "B", "C"},
			CorrectOptionIndex: c,
		}
	}
	return qs
}

// Clock is a manually advanced clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// ProgressStore keeps checkpoints in a map. Set Fail to make writes return an error.
type ProgressStore struct {
	mu      sync.Mutex
	data    map[string]model.SessionState
	saves   []int64
	deletes int
	fail    error
	block   chan struct{}
	waiting int
	gate    chan struct{}
}

func NewProgressStore() *ProgressStore {
	return &ProgressStore{data: make(map[string]model.SessionState)}
}

func progressKey(userID, courseID string) string {
	return userID + ":" + courseID
}

// Fail makes every following Save and Delete return err; nil restores normal behavior.
func (s *ProgressStore) Fail(err error) {
	s.mu.Lock()
	s.fail = err
	s.mu.Unlock()
}

// Block makes Save wait until the returned function is called or the context ends.
func (s *ProgressStore) Block() (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.block = ch
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.block = nil
			s.mu.Unlock()
			close(ch)
		})
	}
}

// BlockDeletes makes Delete wait until the returned function is called or the context ends.
func (s *ProgressStore) BlockDeletes() (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.gate = ch
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.gate = nil
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *ProgressStore) Save(ctx context.Context, userID, courseID string, state model.SessionState) error {
	s.mu.Lock()
	block := s.block
	s.mu.Unlock()
	if block != nil {
		s.mu.Lock()
		s.waiting++
		s.mu.Unlock()
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.data[progressKey(userID, courseID)] = state.Clone()
	s.saves = append(s.saves, state.Revision)
	return nil
}

func (s *ProgressStore) Load(_ context.Context, userID, courseID string) (*model.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.data[progressKey(userID, courseID)]
	if !ok {
		return nil, nil
	}
	out := st.Clone()
	return &out, nil
}

func (s *ProgressStore) Delete(ctx context.Context, userID, courseID string) error {
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	delete(s.data, progressKey(userID, courseID))
	s.deletes++
	return nil
}

// LatestByUser lists the user's unfinished checkpoints, most recently updated first.
func (s *ProgressStore) LatestByUser(_ context.Context, userID string, limit int) ([]model.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.SessionState
	for key, st := range s.data {
		if !strings.HasPrefix(key, userID+":") || st.Status == model.SessionStatusFinished {
			continue
		}
		out = append(out, st.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Put stores a checkpoint directly under its own user and course.
func (s *ProgressStore) Put(state model.SessionState) {
	s.PutFor(state.UserID, state.CourseID, state)
}

// PutFor stores a checkpoint under an explicit key.
func (s *ProgressStore) PutFor(userID, courseID string, state model.SessionState) {
	s.mu.Lock()
	s.data[progressKey(userID, courseID)] = state.Clone()
	s.mu.Unlock()
}

// SavedRevisions lists the revisions of successful writes in order.
func (s *ProgressStore) SavedRevisions() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.saves...)
}

// Waiting counts Save calls that reached a Block.
func (s *ProgressStore) Waiting() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiting
}

func (s *ProgressStore) Deletes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deletes
}

// Has reports whether a checkpoint exists for the pair.
func (s *ProgressStore) Has(userID, courseID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[progressKey(userID, courseID)]
	return ok
}

// AttemptLog records appended results.
type AttemptLog struct {
	mu      sync.Mutex
	results []model.AttemptResult
	fail    error
}

func (l *AttemptLog) Fail(err error) {
	l.mu.Lock()
	l.fail = err
	l.mu.Unlock()
}

func (l *AttemptLog) Append(_ context.Context, userID string, result model.AttemptResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail != nil {
		return l.fail
	}
	result.UserID = userID
	l.results = append(l.results, result)
	return nil
}

func (l *AttemptLog) Results() []model.AttemptResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.AttemptResult(nil), l.results...)
}

// ErrCourseNotFound is returned by QuestionBank for unknown courses.
var ErrCourseNotFound = repository.ErrCourseNotFound

// QuestionBank serves fixed question sets per course.
type QuestionBank struct {
	Courses map[string][]model.Question
}

func (b *QuestionBank) Fetch(_ context.Context, courseID string, limit int) ([]model.Question, error) {
	qs, ok := b.Courses[courseID]
	if !ok {
		return nil, ErrCourseNotFound
	}
	if limit > 0 && len(qs) > limit {
		qs = qs[:limit]
	}
	return append([]model.Question(nil), qs...), nil
}

// Checkpointer records what a session asks to persist without any I/O.
type Checkpointer struct {
	mu        sync.Mutex
	enqueued  []model.SessionState
	saved     []model.SessionState
	discarded  bool
	discards   int
	discardErr error
	SaveErr    error
}

func (c *Checkpointer) Enqueue(state model.SessionState) {
	c.mu.Lock()
	c.enqueued = append(c.enqueued, state)
	c.mu.Unlock()
}

func (c *Checkpointer) Save(_ context.Context, state model.SessionState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SaveErr != nil {
		return c.SaveErr
	}
	c.saved = append(c.saved, state)
	return nil
}

// FailDiscard makes Discard return err until it is called again with nil.
func (c *Checkpointer) FailDiscard(err error) {
	c.mu.Lock()
	c.discardErr = err
	c.mu.Unlock()
}

func (c *Checkpointer) Discard(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.discards++
	if c.discardErr != nil {
		return c.discardErr
	}
	c.discarded = true
	return nil
}

// Discards counts Discard calls, failed ones included.
func (c *Checkpointer) Discards() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.discards
}

func (c *Checkpointer) Status() assessment.SaveStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return assessment.SaveStatus{LastError: c.SaveErr}
}

func (c *Checkpointer) Enqueued() []model.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.SessionState(nil), c.enqueued...)
}

func (c *Checkpointer) Saved() []model.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.SessionState(nil), c.saved...)
}

func (c *Checkpointer) Discarded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.discarded
}
