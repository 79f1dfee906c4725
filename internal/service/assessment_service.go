package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Deji-Tech/lawsa-iuo/internal/assessment"
	"github.com/Deji-Tech/lawsa-iuo/internal/config"
	"github.com/Deji-Tech/lawsa-iuo/internal/logger"
	"github.com/Deji-Tech/lawsa-iuo/internal/model"
	"github.com/Deji-Tech/lawsa-iuo/internal/monitoring"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// AssessmentService owns every live session of the process, one per (user, course).
type AssessmentService struct {
	bank     assessment.QuestionBank
	progress assessment.ProgressStore
	attempts assessment.AttemptLog
	cfg      config.AssessmentConfig
	clock    assessment.Clock
	log      zerolog.Logger

	mu    sync.Mutex
	live  map[string]*liveSession
	begin singleflight.Group
}

type liveSession struct {
	userID   string
	courseID string
	session  *assessment.Session
	saver    *assessment.Autosaver
	signal   *assessment.VisibilitySignal

	mu         sync.Mutex
	advance    *time.Timer
	finishedAt time.Time
}

// NewAssessmentService creates a new AssessmentService. A nil clock uses the system clock.
func NewAssessmentService(
	bank assessment.QuestionBank,
	progress assessment.ProgressStore,
	attempts assessment.AttemptLog,
	cfg config.AssessmentConfig,
	clock assessment.Clock,
	log zerolog.Logger,
) *AssessmentService {
	if clock == nil {
		clock = assessment.SystemClock
	}
	return &AssessmentService{
		bank:     bank,
		progress: progress,
		attempts: attempts,
		cfg:      cfg,
		clock:    clock,
		log:      log.With().Str("component", "assessment_service").Logger(),
		live:     make(map[string]*liveSession),
	}
}

func sessionKey(userID, courseID string) string {
	return userID + ":" + courseID
}

// ----------------------------------------------------------------
// Opening sessions
// ----------------------------------------------------------------

// Begin returns the learner's live session for the course, resumes a saved checkpoint,
// or starts a fresh attempt. Fresh discards any live session or checkpoint first.
func (s *AssessmentService) Begin(ctx context.Context, userID, courseID string, req model.BeginSessionRequest) (*model.SessionView, error) {
	key := sessionKey(userID, courseID)

	v, err, _ := s.begin.Do(key, func() (any, error) {
		if ls := s.lookup(key); ls != nil {
			finished := ls.session.Status() == model.SessionStatusFinished
			if !req.Fresh && !finished {
				return ls, nil
			}
			if finished {
				// The old checkpoint is only gone once the finished session has settled.
				if err := s.awaitSettled(ctx, ls); err != nil {
					return nil, err
				}
			}
			s.remove(key, ls)
			if !finished {
				if err := ls.saver.Discard(ctx); err != nil {
					s.log.Warn().Err(err).Str("user_id", userID).Str("course_id", courseID).Msg("Discard live session failed")
				}
			}
			ls.session.Close()
		}
		return s.open(ctx, userID, courseID, req)
	})
	if err != nil {
		return nil, err
	}
	return s.view(v.(*liveSession)), nil
}

func (s *AssessmentService) awaitSettled(ctx context.Context, ls *liveSession) error {
	wait := s.cfg.ShutdownFlush
	if wait <= 0 {
		wait = assessment.DefaultSettleTimeout
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ls.session.Settled():
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: previous attempt is still being saved", assessment.ErrPersistenceUnavailable)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (ls *liveSession) settled() bool {
	select {
	case <-ls.session.Settled():
		return true
	default:
		return false
	}
}

func (s *AssessmentService) open(ctx context.Context, userID, courseID string, req model.BeginSessionRequest) (*liveSession, error) {
	log := logger.ForSession(s.log, "", userID, courseID)

	if req.Fresh {
		if err := s.progress.Delete(ctx, userID, courseID); err != nil {
			log.Warn().Err(err).Msg("Failed to drop checkpoint before fresh start")
		}
		return s.start(ctx, userID, courseID, req.Mode)
	}

	cp, err := s.progress.Load(ctx, userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", assessment.ErrPersistenceUnavailable, err)
	}
	if cp == nil {
		return s.start(ctx, userID, courseID, req.Mode)
	}

	ls, err := s.resume(userID, courseID, *cp)
	if err == nil {
		return ls, nil
	}
	if !errors.Is(err, assessment.ErrCheckpointCorrupt) {
		return nil, err
	}

	log.Warn().Err(err).Msg("Discarding unusable checkpoint, starting fresh")
	if err := s.progress.Delete(ctx, userID, courseID); err != nil {
		log.Warn().Err(err).Msg("Failed to delete corrupt checkpoint")
	}
	return s.start(ctx, userID, courseID, req.Mode)
}

func (s *AssessmentService) start(ctx context.Context, userID, courseID string, mode model.SessionMode) (*liveSession, error) {
	if mode == "" {
		mode = model.SessionModeGraded
	}
	limit, duration := s.cfg.GradedQuestionLimit, s.cfg.GradedDuration
	if mode == model.SessionModePractice {
		limit, duration = s.cfg.PracticeQuestionLimit, s.cfg.PracticeDuration
	}

	questions, err := s.bank.Fetch(ctx, courseID, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch questions: %w", err)
	}

	saver := s.newSaver(userID, courseID)
	opts := s.sessionOptions(saver)
	opts.UserID = userID
	opts.CourseID = courseID
	opts.Mode = mode
	opts.Duration = duration

	sess, err := assessment.Start(questions, opts)
	if err != nil {
		saver.Close()
		return nil, err
	}
	monitoring.SessionsStarted.WithLabelValues(string(mode), "fresh").Inc()
	s.log.Info().Str("user_id", userID).Str("course_id", courseID).Str("mode", string(mode)).
		Int("questions", len(questions)).Msg("Session started")
	return s.register(userID, courseID, sess, saver), nil
}

func (s *AssessmentService) resume(userID, courseID string, cp model.SessionState) (*liveSession, error) {
	if cp.UserID != userID || cp.CourseID != courseID {
		return nil, fmt.Errorf("%w: checkpoint belongs to %s/%s", assessment.ErrCheckpointCorrupt, cp.UserID, cp.CourseID)
	}

	saver := s.newSaver(userID, courseID)
	sess, err := assessment.Resume(cp, s.sessionOptions(saver))
	if err != nil {
		saver.Close()
		return nil, err
	}
	monitoring.SessionsStarted.WithLabelValues(string(cp.Mode), "resumed").Inc()
	s.log.Info().Str("user_id", userID).Str("course_id", courseID).
		Int("remaining_seconds", cp.RemainingSeconds).Msg("Session resumed from checkpoint")
	return s.register(userID, courseID, sess, saver), nil
}

func (s *AssessmentService) newSaver(userID, courseID string) *assessment.Autosaver {
	return assessment.NewAutosaver(s.progress, userID, courseID, assessment.AutosaveOptions{
		Debounce: s.cfg.AutosaveDebounce,
		Log:      &s.log,
	})
}

func (s *AssessmentService) sessionOptions(saver *assessment.Autosaver) assessment.Options {
	return assessment.Options{
		CheckpointInterval: s.cfg.CheckpointInterval,
		SettleTimeout:      s.cfg.ShutdownFlush,
		SettleRetry:        s.cfg.SettleRetry,
		Clock:              s.clock,
		Checkpoints:        saver,
		Attempts:           s.attempts,
		Log:                &s.log,
	}
}

func (s *AssessmentService) register(userID, courseID string, sess *assessment.Session, saver *assessment.Autosaver) *liveSession {
	ls := &liveSession{
		userID:   userID,
		courseID: courseID,
		session:  sess,
		saver:    saver,
		signal:   assessment.NewVisibilitySignal(),
	}
	sess.Observe(ls.signal)

	s.mu.Lock()
	s.live[sessionKey(userID, courseID)] = ls
	monitoring.LiveSessions.Set(float64(len(s.live)))
	s.mu.Unlock()
	return ls
}

func (s *AssessmentService) lookup(key string) *liveSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live[key]
}

func (s *AssessmentService) remove(key string, ls *liveSession) {
	ls.stopAdvance()
	s.mu.Lock()
	if s.live[key] == ls {
		delete(s.live, key)
	}
	monitoring.LiveSessions.Set(float64(len(s.live)))
	s.mu.Unlock()
}

func (s *AssessmentService) get(userID, courseID string) (*liveSession, error) {
	if ls := s.lookup(sessionKey(userID, courseID)); ls != nil {
		return ls, nil
	}
	return nil, ErrNoSession
}

// ----------------------------------------------------------------
// Saved progress
// ----------------------------------------------------------------

// PendingProgress describes the resumable attempt for the course, live or checkpointed.
func (s *AssessmentService) PendingProgress(ctx context.Context, userID, courseID string) (*model.ProgressSummary, error) {
	if ls := s.lookup(sessionKey(userID, courseID)); ls != nil {
		if ls.session.Status() == model.SessionStatusFinished {
			if !ls.settled() {
				return nil, ErrNoProgress
			}
		} else {
			st := ls.session.Snapshot()
			return summarize(&st), nil
		}
	}

	cp, err := s.progress.Load(ctx, userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", assessment.ErrPersistenceUnavailable, err)
	}
	if cp == nil || cp.Status == model.SessionStatusFinished {
		return nil, ErrNoProgress
	}
	return summarize(cp), nil
}

// ProgressLister is implemented by progress stores that can list a learner's
// checkpoints across courses.
type ProgressLister interface {
	LatestByUser(ctx context.Context, userID string, limit int) ([]model.SessionState, error)
}

// activeProgressScan bounds how many saved checkpoints ActiveProgress inspects.
const activeProgressScan = 20

// ActiveProgress returns the learner's most recently updated unfinished attempt on
// any course. Live sessions take precedence over their saved checkpoints.
func (s *AssessmentService) ActiveProgress(ctx context.Context, userID string) (*model.ProgressSummary, error) {
	var best *model.SessionState
	consider := func(st model.SessionState) {
		if best == nil || st.UpdatedAt.After(best.UpdatedAt) {
			best = &st
		}
	}

	live := make(map[string]bool)
	for _, ls := range s.snapshotLive() {
		if ls.userID != userID {
			continue
		}
		live[ls.courseID] = true
		if ls.session.Status() == model.SessionStatusFinished {
			continue
		}
		consider(ls.session.Snapshot())
	}

	if lister, ok := s.progress.(ProgressLister); ok {
		saved, err := lister.LatestByUser(ctx, userID, activeProgressScan)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", assessment.ErrPersistenceUnavailable, err)
		}
		for _, st := range saved {
			if live[st.CourseID] || st.Status == model.SessionStatusFinished {
				continue
			}
			consider(st)
		}
	}

	if best == nil {
		return nil, ErrNoProgress
	}
	return summarize(best), nil
}

// DiscardProgress abandons the learner's unfinished attempt without scoring it.
func (s *AssessmentService) DiscardProgress(ctx context.Context, userID, courseID string) error {
	key := sessionKey(userID, courseID)
	ls := s.lookup(key)
	if ls != nil && ls.session.Status() != model.SessionStatusFinished {
		s.remove(key, ls)
		ls.session.Close()
		return ls.saver.Discard(ctx)
	}

	// A finished session stays live until its checkpoint is known to be gone.
	if err := s.progress.Delete(ctx, userID, courseID); err != nil {
		return fmt.Errorf("%w: %w", assessment.ErrPersistenceUnavailable, err)
	}
	if ls != nil {
		s.remove(key, ls)
		ls.session.Close()
	}
	return nil
}

func summarize(st *model.SessionState) *model.ProgressSummary {
	return &model.ProgressSummary{
		SessionID:        st.SessionID,
		CourseID:         st.CourseID,
		Mode:             st.Mode,
		TotalQuestions:   len(st.Questions),
		Answered:         st.AnsweredCount(),
		CurrentIndex:     st.CurrentIndex,
		RemainingSeconds: st.RemainingSeconds,
		UpdatedAt:        st.UpdatedAt,
	}
}

// ----------------------------------------------------------------
// In-session operations
// ----------------------------------------------------------------

// Answer records an option and, when enabled, moves to the next question after a short delay.
func (s *AssessmentService) Answer(userID, courseID string, questionIndex, optionIndex int) (*model.SessionView, error) {
	ls, err := s.get(userID, courseID)
	if err != nil {
		return nil, err
	}
	if err := ls.session.SelectAnswer(questionIndex, optionIndex); err != nil {
		return nil, err
	}
	s.scheduleAdvance(ls, questionIndex)
	return s.view(ls), nil
}

func (s *AssessmentService) scheduleAdvance(ls *liveSession, from int) {
	delay := s.cfg.AutoAdvanceDelay
	if delay <= 0 {
		return
	}
	st := ls.session.Snapshot()
	if st.CurrentIndex != from || from >= len(st.Questions)-1 {
		return
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.advance != nil {
		ls.advance.Stop()
	}
	ls.advance = time.AfterFunc(delay, func() {
		cur := ls.session.Snapshot()
		if cur.Status == model.SessionStatusRunning && cur.CurrentIndex == from {
			_ = ls.session.Advance()
		}
	})
}

func (ls *liveSession) stopAdvance() {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.advance != nil {
		ls.advance.Stop()
		ls.advance = nil
	}
}

func (s *AssessmentService) Next(userID, courseID string) (*model.SessionView, error) {
	return s.navigate(userID, courseID, (*assessment.Session).Advance)
}

func (s *AssessmentService) Prev(userID, courseID string) (*model.SessionView, error) {
	return s.navigate(userID, courseID, (*assessment.Session).Back)
}

func (s *AssessmentService) navigate(userID, courseID string, move func(*assessment.Session) error) (*model.SessionView, error) {
	ls, err := s.get(userID, courseID)
	if err != nil {
		return nil, err
	}
	ls.stopAdvance()
	if err := move(ls.session); err != nil {
		return nil, err
	}
	return s.view(ls), nil
}

// Pause stops the timer and saves a checkpoint before returning.
func (s *AssessmentService) Pause(ctx context.Context, userID, courseID string) (*model.SessionView, error) {
	ls, err := s.get(userID, courseID)
	if err != nil {
		return nil, err
	}
	ls.stopAdvance()
	if err := ls.session.Pause(ctx); err != nil {
		return nil, err
	}
	return s.view(ls), nil
}

// Continue restarts the timer of a paused session.
func (s *AssessmentService) Continue(userID, courseID string) (*model.SessionView, error) {
	ls, err := s.get(userID, courseID)
	if err != nil {
		return nil, err
	}
	if err := ls.session.Continue(); err != nil {
		return nil, err
	}
	return s.view(ls), nil
}

// SetVisibility forwards a client visibility change. Becoming hidden force-pauses the session.
func (s *AssessmentService) SetVisibility(userID, courseID string, hidden bool) (*model.SessionView, error) {
	ls, err := s.get(userID, courseID)
	if err != nil {
		return nil, err
	}
	if hidden {
		ls.stopAdvance()
	}
	ls.signal.Notify(hidden)
	return s.view(ls), nil
}

// Submit finishes the attempt. Without confirm, unanswered questions fail with
// a SubmissionIncompleteError.
func (s *AssessmentService) Submit(ctx context.Context, userID, courseID string, confirm bool) (*model.AttemptResult, error) {
	ls, err := s.get(userID, courseID)
	if err != nil {
		return nil, err
	}
	if ls.session.Status() == model.SessionStatusFinished {
		return nil, assessment.ErrSessionFinished
	}
	if n := ls.session.UnansweredCount(); n > 0 && !confirm {
		return nil, &SubmissionIncompleteError{Unanswered: n}
	}

	res, err := ls.session.Submit(ctx)
	if err != nil {
		return nil, err
	}
	s.markFinished(ls)
	s.log.Info().Str("user_id", userID).Str("course_id", courseID).
		Int("score", res.Percentage).Int("correct", res.CorrectCount).Msg("Session submitted")
	return res, nil
}

// State returns the client view of the live session.
func (s *AssessmentService) State(userID, courseID string) (*model.SessionView, error) {
	ls, err := s.get(userID, courseID)
	if err != nil {
		return nil, err
	}
	return s.view(ls), nil
}

func (s *AssessmentService) view(ls *liveSession) *model.SessionView {
	st := ls.session.Snapshot()
	save := ls.session.SaveStatus()

	questions := make([]model.QuestionForLearner, len(st.Questions))
	for i := range st.Questions {
		questions[i] = st.Questions[i].ForLearner()
	}

	v := &model.SessionView{
		SessionID:        st.SessionID,
		CourseID:         st.CourseID,
		Mode:             st.Mode,
		Status:           st.Status,
		Questions:        questions,
		Answers:          st.Answers,
		CurrentIndex:     st.CurrentIndex,
		RemainingSeconds: st.RemainingSeconds,
		Unanswered:       len(st.Answers) - st.AnsweredCount(),
		Saved:            save.Saved(),
		Hidden:           ls.signal.Hidden(),
	}
	if !save.LastSavedAt.IsZero() {
		t := save.LastSavedAt
		v.LastSavedAt = &t
	}
	if res, ok := ls.session.Result(); ok {
		v.Result = res
	}
	return v
}

func (s *AssessmentService) markFinished(ls *liveSession) {
	ls.stopAdvance()
	ls.mu.Lock()
	if ls.finishedAt.IsZero() {
		ls.finishedAt = s.clock.Now()
	}
	ls.mu.Unlock()
}

// ----------------------------------------------------------------
// Clock, cleanup and shutdown
// ----------------------------------------------------------------

// Run drives the timers of all live sessions until ctx is cancelled, then checkpoints
// every unfinished session. Call in a goroutine.
func (s *AssessmentService) Run(ctx context.Context) {
	s.log.Info().Msg("Session clock started")

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	last := s.clock.Now()
	var carry time.Duration
	for {
		select {
		case <-ctx.Done():
			s.Shutdown()
			return
		case <-ticker.C:
			now := s.clock.Now()
			carry += now.Sub(last)
			last = now

			whole := int(carry / time.Second)
			carry -= time.Duration(whole) * time.Second
			if whole > 0 {
				s.Tick(whole)
			}
			s.Cleanup(now)
		}
	}
}

// Tick advances every running session by elapsedSeconds.
func (s *AssessmentService) Tick(elapsedSeconds int) {
	for _, ls := range s.snapshotLive() {
		if res := ls.session.Tick(elapsedSeconds); res != nil {
			s.markFinished(ls)
			s.log.Info().Str("user_id", res.UserID).Str("course_id", res.CourseID).
				Int("score", res.Percentage).Msg("Time expired, session submitted")
		}
	}
}

// Cleanup evicts settled finished sessions, and paused sessions idle for longer than
// the retention window. Evicted paused sessions can be resumed from their checkpoint.
func (s *AssessmentService) Cleanup(now time.Time) {
	retention := s.cfg.FinishedRetention

	s.mu.Lock()
	var evict []*liveSession
	for key, ls := range s.live {
		ls.mu.Lock()
		finishedAt := ls.finishedAt
		ls.mu.Unlock()

		switch ls.session.Status() {
		case model.SessionStatusFinished:
			if finishedAt.IsZero() || now.Sub(finishedAt) < retention || !ls.settled() {
				continue
			}
		case model.SessionStatusPaused:
			if now.Sub(ls.session.Snapshot().UpdatedAt) < retention {
				continue
			}
		default:
			continue
		}
		delete(s.live, key)
		evict = append(evict, ls)
	}
	monitoring.LiveSessions.Set(float64(len(s.live)))
	s.mu.Unlock()

	for _, ls := range evict {
		ls.stopAdvance()
		ls.session.Close()
		if ls.session.Status() == model.SessionStatusPaused {
			s.persistAndClose(ls)
		}
	}
	if len(evict) > 0 {
		s.log.Debug().Int("count", len(evict)).Msg("Evicted idle sessions")
	}
}

func (s *AssessmentService) persistAndClose(ls *liveSession) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownFlush)
	defer cancel()

	if err := ls.saver.Save(ctx, ls.session.Snapshot()); err != nil {
		s.log.Warn().Err(err).Msg("Checkpoint on eviction failed")
	}
	ls.saver.Close()
}

// Shutdown pauses and checkpoints every running session within the configured
// flush timeout. Failures are logged; the affected sessions restart fresh.
func (s *AssessmentService) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownFlush)
	defer cancel()

	s.mu.Lock()
	all := make([]*liveSession, 0, len(s.live))
	for key, ls := range s.live {
		all = append(all, ls)
		delete(s.live, key)
	}
	monitoring.LiveSessions.Set(0)
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, ls := range all {
		wg.Add(1)
		go func(ls *liveSession) {
			defer wg.Done()
			ls.stopAdvance()
			ls.session.Close()

			switch ls.session.Status() {
			case model.SessionStatusRunning:
				ls.session.Hide(ctx)
			case model.SessionStatusPaused:
				if err := ls.saver.Flush(ctx); err != nil {
					s.log.Warn().Err(err).Msg("Flush on shutdown failed")
				}
			case model.SessionStatusFinished:
				select {
				case <-ls.session.Settled():
				case <-ctx.Done():
				}
			}
			ls.saver.Close()
		}(ls)
	}
	wg.Wait()
	s.log.Info().Int("sessions", len(all)).Msg("Live sessions checkpointed")
}

func (s *AssessmentService) snapshotLive() []*liveSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*liveSession, 0, len(s.live))
	for _, ls := range s.live {
		out = append(out, ls)
	}
	return out
}
