// Package assessment implements the lifecycle of one timed CBT attempt:
// answers, navigation, pause and resume, checkpointing and scoring.
//
// A Session never performs I/O while holding its lock. Time only moves
// through Tick, so the owner decides how the clock is driven.
package assessment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Deji-Tech/lawsa-iuo/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DefaultGradedDuration     = 1800 * time.Second
	DefaultCheckpointInterval = 30 * time.Second
	DefaultSettleTimeout      = 5 * time.Second
	DefaultSettleRetry        = 500 * time.Millisecond

	maxSettleBackoff = 30 * time.Second
)

// Options configures a session. Identity fields are ignored by Resume,
// which takes them from the checkpoint.
type Options struct {
	SessionID uuid.UUID
	UserID    string
	CourseID  string
	Mode      model.SessionMode
	Duration  time.Duration

	CheckpointInterval time.Duration
	// SettleTimeout bounds the persistence work done after an automatic submit.
	SettleTimeout time.Duration
	// SettleRetry is the first delay before a failed settlement is retried.
	SettleRetry time.Duration

	Clock       Clock
	Checkpoints Checkpointer
	Attempts    AttemptLog
	// Log defaults to a disabled logger.
	Log *zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.Mode == "" {
		o.Mode = model.SessionModeGraded
	}
	if o.Duration == 0 {
		o.Duration = DefaultGradedDuration
	}
	if o.CheckpointInterval <= 0 {
		o.CheckpointInterval = DefaultCheckpointInterval
	}
	if o.SettleTimeout <= 0 {
		o.SettleTimeout = DefaultSettleTimeout
	}
	if o.SettleRetry <= 0 {
		o.SettleRetry = DefaultSettleRetry
	}
	if o.Clock == nil {
		o.Clock = SystemClock
	}
	return o
}

// Session is one attempt. All methods are safe for concurrent use.
type Session struct {
	mu              sync.Mutex
	state           model.SessionState
	opts            Options
	log             zerolog.Logger
	result          *model.AttemptResult
	sinceCheckpoint int
	attemptErr      error
	settled         chan struct{}
	unobserve       func()
}

// Start opens a new running session over questions.
func Start(questions []model.Question, opts Options) (*Session, error) {
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: no questions", ErrInvalidQuestionSet)
	}
	seen := make(map[string]struct{}, len(questions))
	for i := range questions {
		if err := questions[i].Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidQuestionSet, err)
		}
		if _, dup := seen[questions[i].ID]; dup {
			return nil, fmt.Errorf("%w: duplicate question %s", ErrInvalidQuestionSet, questions[i].ID)
		}
		seen[questions[i].ID] = struct{}{}
	}

	opts = opts.withDefaults()
	duration := int(opts.Duration / time.Second)
	if duration < 1 {
		return nil, fmt.Errorf("session duration %s is shorter than one second", opts.Duration)
	}
	if opts.SessionID == uuid.Nil {
		opts.SessionID = uuid.New()
	}

	answers := make([]int, len(questions))
	for i := range answers {
		answers[i] = model.Unanswered
	}

	now := opts.Clock.Now()
	s := &Session{
		opts: opts,
		state: model.SessionState{
			SessionID:        opts.SessionID,
			UserID:           opts.UserID,
			CourseID:         opts.CourseID,
			Mode:             opts.Mode,
			Questions:        model.SessionState{Questions: questions}.Clone().Questions,
			Answers:          answers,
			CurrentIndex:     0,
			RemainingSeconds: duration,
			DurationSeconds:  duration,
			Status:           model.SessionStatusRunning,
			StartedAt:        now,
			UpdatedAt:        now,
			Revision:         1,
		},
		settled: make(chan struct{}),
	}
	s.log = s.logger()

	s.enqueueLocked()
	return s, nil
}

// Resume rehydrates a running session from a checkpoint. StartedAt is moved back by the
// time already spent so the attempt keeps its total duration.
func Resume(checkpoint model.SessionState, opts Options) (*Session, error) {
	if err := validateCheckpoint(&checkpoint); err != nil {
		return nil, err
	}

	opts = opts.withDefaults()
	state := checkpoint.Clone()
	opts.SessionID = state.SessionID
	opts.UserID = state.UserID
	opts.CourseID = state.CourseID
	opts.Mode = state.Mode
	opts.Duration = time.Duration(state.DurationSeconds) * time.Second

	now := opts.Clock.Now()
	spent := time.Duration(state.DurationSeconds-state.RemainingSeconds) * time.Second
	state.StartedAt = now.Add(-spent)
	state.UpdatedAt = now
	state.Status = model.SessionStatusRunning
	state.Revision++

	s := &Session{opts: opts, state: state, settled: make(chan struct{})}
	s.log = s.logger()
	return s, nil
}

func validateCheckpoint(cp *model.SessionState) error {
	corrupt := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrCheckpointCorrupt, fmt.Sprintf(format, args...))
	}
	if len(cp.Questions) == 0 {
		return corrupt("no questions")
	}
	if len(cp.Answers) != len(cp.Questions) {
		return corrupt("%d answers for %d questions", len(cp.Answers), len(cp.Questions))
	}
	for i := range cp.Questions {
		if err := cp.Questions[i].Validate(); err != nil {
			return corrupt("%v", err)
		}
		a := cp.Answers[i]
		if a != model.Unanswered && (a < 0 || a >= len(cp.Questions[i].Options)) {
			return corrupt("answer %d of question %d out of range", a, i)
		}
	}
	if cp.CurrentIndex < 0 || cp.CurrentIndex >= len(cp.Questions) {
		return corrupt("current index %d out of range", cp.CurrentIndex)
	}
	if cp.DurationSeconds < 1 || cp.RemainingSeconds < 0 || cp.RemainingSeconds > cp.DurationSeconds {
		return corrupt("remaining %ds of %ds", cp.RemainingSeconds, cp.DurationSeconds)
	}
	if cp.Status == model.SessionStatusFinished {
		return corrupt("session already finished")
	}
	if cp.SessionID == uuid.Nil {
		return corrupt("missing session id")
	}
	return nil
}

func (s *Session) logger() zerolog.Logger {
	base := zerolog.Nop()
	if s.opts.Log != nil {
		base = *s.opts.Log
	}
	return base.With().
		Str("session_id", s.state.SessionID.String()).
		Str("user_id", s.state.UserID).
		Str("course_id", s.state.CourseID).
		Logger()
}

// Observe forces a pause whenever obs reports the client hidden.
func (s *Session) Observe(obs VisibilityObserver) {
	cancel := obs.Subscribe(func(hidden bool) {
		if !hidden {
			return
		}
		ctx, done := context.WithTimeout(context.Background(), s.opts.SettleTimeout)
		defer done()
		s.Hide(ctx)
	})

	s.mu.Lock()
	prev := s.unobserve
	s.unobserve = cancel
	s.mu.Unlock()
	if prev != nil {
		prev()
	}
}

// Close detaches observers. It does not touch persisted state.
func (s *Session) Close() {
	s.mu.Lock()
	cancel := s.unobserve
	s.unobserve = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Tick advances the timer by elapsedSeconds while running. When the time runs out the
// session is submitted automatically and the result is returned; otherwise nil.
func (s *Session) Tick(elapsedSeconds int) *model.AttemptResult {
	s.mu.Lock()
	if s.state.Status != model.SessionStatusRunning {
		s.mu.Unlock()
		return nil
	}
	if elapsedSeconds < 0 {
		elapsedSeconds = 0
	}

	if elapsedSeconds >= s.state.RemainingSeconds {
		s.state.RemainingSeconds = 0
	} else {
		s.state.RemainingSeconds -= elapsedSeconds
	}
	s.touchLocked()

	if s.state.RemainingSeconds == 0 {
		res := s.finishLocked(true)
		final := s.state.Clone()
		s.mu.Unlock()

		s.log.Info().Int("score", res.Percentage).Msg("Time expired, session auto-submitted")
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.opts.SettleTimeout)
			defer cancel()
			s.settle(ctx, res, final)
		}()
		return &res
	}

	s.sinceCheckpoint += elapsedSeconds
	if s.sinceCheckpoint >= int(s.opts.CheckpointInterval/time.Second) {
		s.sinceCheckpoint = 0
		s.enqueueLocked()
	}
	s.mu.Unlock()
	return nil
}

// SelectAnswer records option for the question at index.
func (s *Session) SelectAnswer(index, option int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireRunningLocked(); err != nil {
		return err
	}
	if index < 0 || index >= len(s.state.Questions) {
		return fmt.Errorf("%w: question index %d out of range", ErrInvalidAnswer, index)
	}
	if option < 0 || option >= len(s.state.Questions[index].Options) {
		return fmt.Errorf("%w: option %d out of range for question %d", ErrInvalidAnswer, option, index)
	}
	if s.state.Answers[index] == option {
		return nil
	}

	s.state.Answers[index] = option
	s.touchLocked()
	s.enqueueLocked()
	return nil
}

// Advance moves to the next question; no-op on the last one.
func (s *Session) Advance() error {
	return s.move(1)
}

// Back moves to the previous question; no-op on the first one.
func (s *Session) Back() error {
	return s.move(-1)
}

func (s *Session) move(step int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireRunningLocked(); err != nil {
		return err
	}
	next := s.state.CurrentIndex + step
	if next < 0 || next >= len(s.state.Questions) {
		return nil
	}
	s.state.CurrentIndex = next
	s.touchLocked()
	return nil
}

// Pause stops the timer and writes a checkpoint before returning. A failed write is
// reported as ErrPersistenceUnavailable; the session stays paused either way.
func (s *Session) Pause(ctx context.Context) error {
	s.mu.Lock()
	switch s.state.Status {
	case model.SessionStatusFinished:
		s.mu.Unlock()
		return ErrSessionFinished
	case model.SessionStatusPaused:
		s.mu.Unlock()
		return nil
	}
	s.state.Status = model.SessionStatusPaused
	s.sinceCheckpoint = 0
	s.touchLocked()
	snapshot := s.state.Clone()
	cp := s.opts.Checkpoints
	s.mu.Unlock()

	if cp == nil {
		return nil
	}
	if err := cp.Save(ctx, snapshot); err != nil {
		s.log.Warn().Err(err).Msg("Checkpoint on pause failed")
		return fmt.Errorf("%w: %w", ErrPersistenceUnavailable, err)
	}
	return nil
}

// Continue restarts the timer of a paused session.
func (s *Session) Continue() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state.Status {
	case model.SessionStatusFinished:
		return ErrSessionFinished
	case model.SessionStatusRunning:
		return nil
	}
	s.state.Status = model.SessionStatusRunning
	s.touchLocked()
	return nil
}

// Hide handles loss of foreground visibility: a running session is paused and
// checkpointed. Failures are logged only.
func (s *Session) Hide(ctx context.Context) {
	if s.Status() != model.SessionStatusRunning {
		return
	}
	if err := s.Pause(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Forced pause not saved, resume will restart fresh")
	}
}

// Submit scores the session, marks it finished, discards the live checkpoint and
// appends the result to the attempt log. Confirmation for unanswered questions is
// the caller's concern, see UnansweredCount.
func (s *Session) Submit(ctx context.Context) (*model.AttemptResult, error) {
	s.mu.Lock()
	if s.state.Status == model.SessionStatusFinished {
		s.mu.Unlock()
		return nil, ErrSessionFinished
	}
	res := s.finishLocked(false)
	final := s.state.Clone()
	s.mu.Unlock()

	s.settle(ctx, res, final)
	return &res, nil
}

func (s *Session) finishLocked(auto bool) model.AttemptResult {
	res := Score(&s.state, s.opts.Clock.Now(), auto)
	s.state.Status = model.SessionStatusFinished
	s.touchLocked()
	s.result = &res
	return res
}

// settle hands the finished attempt to the outside world. It runs once per session.
// The finished snapshot is written over the checkpoint before it is deleted, so a
// checkpoint that outlives a failed delete can no longer be resumed. Whatever fails
// is retried in the background with backoff; Settled closes once both the delete and
// the attempt append have succeeded.
func (s *Session) settle(ctx context.Context, res model.AttemptResult, final model.SessionState) {
	if cp := s.opts.Checkpoints; cp != nil {
		if err := cp.Save(ctx, final); err != nil {
			s.log.Warn().Err(err).Msg("Finished checkpoint not written")
		}
	}

	var st settlement
	s.trySettle(ctx, res, &st)
	if st.done() {
		close(s.settled)
		return
	}
	go s.retrySettle(res, st)
}

type settlement struct {
	discarded bool
	appended  bool
}

func (st settlement) done() bool {
	return st.discarded && st.appended
}

func (s *Session) trySettle(ctx context.Context, res model.AttemptResult, st *settlement) {
	if !st.discarded {
		st.discarded = true
		if cp := s.opts.Checkpoints; cp != nil {
			if err := cp.Discard(ctx); err != nil {
				s.log.Warn().Err(err).Msg("Discard checkpoint failed")
				st.discarded = false
			}
		}
	}

	if !st.appended {
		st.appended = true
		if s.opts.Attempts != nil {
			err := s.opts.Attempts.Append(ctx, s.state.UserID, res)
			s.mu.Lock()
			if err != nil {
				s.attemptErr = fmt.Errorf("%w: %w", ErrPersistenceUnavailable, err)
				st.appended = false
			} else {
				s.attemptErr = nil
			}
			s.mu.Unlock()
			if err != nil {
				s.log.Error().Err(err).Msg("Append attempt failed")
			}
		}
	}
}

func (s *Session) retrySettle(res model.AttemptResult, st settlement) {
	delay := s.opts.SettleRetry
	for attempt := 1; ; attempt++ {
		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), s.opts.SettleTimeout)
		s.trySettle(ctx, res, &st)
		cancel()
		if st.done() {
			s.log.Info().Int("attempts", attempt+1).Msg("Finished session settled after retry")
			close(s.settled)
			return
		}

		delay *= 2
		if delay > maxSettleBackoff {
			delay = maxSettleBackoff
		}
	}
}

// Settled is closed once the checkpoint of a finished session is deleted and its
// attempt is logged.
func (s *Session) Settled() <-chan struct{} {
	return s.settled
}

// UnansweredCount returns how many questions have no selected option.
func (s *Session) UnansweredCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.Answers) - s.state.AnsweredCount()
}

// Snapshot returns a deep copy of the current state.
func (s *Session) Snapshot() model.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

func (s *Session) Status() model.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Status
}

// Result returns the attempt result once the session is finished.
func (s *Session) Result() (*model.AttemptResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return nil, false
	}
	res := *s.result
	return &res, true
}

// SaveStatus reports whether progress and the final attempt reached durable storage.
func (s *Session) SaveStatus() SaveStatus {
	s.mu.Lock()
	attemptErr := s.attemptErr
	cp := s.opts.Checkpoints
	s.mu.Unlock()

	var st SaveStatus
	if cp != nil {
		st = cp.Status()
	}
	if attemptErr != nil {
		st.LastError = attemptErr
	}
	return st
}

func (s *Session) requireRunningLocked() error {
	switch s.state.Status {
	case model.SessionStatusFinished:
		return ErrSessionFinished
	case model.SessionStatusPaused:
		return ErrNotRunning
	}
	return nil
}

func (s *Session) touchLocked() {
	s.state.UpdatedAt = s.opts.Clock.Now()
	s.state.Revision++
}

func (s *Session) enqueueLocked() {
	if s.opts.Checkpoints != nil {
		s.opts.Checkpoints.Enqueue(s.state.Clone())
	}
}
