package assessment

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Deji-Tech/lawsa-iuo/internal/logger"
	"github.com/Deji-Tech/lawsa-iuo/internal/model"
	"github.com/rs/zerolog"
)

// ErrCheckpointerClosed is returned by Save after Discard or Close.
var ErrCheckpointerClosed = errors.New("checkpointer closed")

// AutosaveOptions tunes an Autosaver.
type AutosaveOptions struct {
	// Debounce is the minimum spacing of asynchronous writes.
	Debounce time.Duration
	// WriteTimeout bounds a single store write.
	WriteTimeout time.Duration
	// MaxBackoff caps the retry delay after failed writes.
	MaxBackoff time.Duration
	Log        *zerolog.Logger
}

// Autosaver is the Checkpointer backed by a ProgressStore. A single goroutine performs
// the asynchronous writes. Every write is checked against the highest revision already
// stored, so an older snapshot never replaces a newer one.
type Autosaver struct {
	store    ProgressStore
	userID   string
	courseID string
	opts     AutosaveOptions
	log      zerolog.Logger

	mu       sync.Mutex
	pending  *model.SessionState
	savedRev int64
	inflight context.CancelFunc
	failures int
	closed   bool
	status   SaveStatus

	// writeMu serializes store writes and deletes.
	writeMu sync.Mutex

	kick     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewAutosaver starts the writer goroutine. Stop it with Discard or Close.
func NewAutosaver(store ProgressStore, userID, courseID string, opts AutosaveOptions) *Autosaver {
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	log := zerolog.Nop()
	if opts.Log != nil {
		log = *opts.Log
	}

	a := &Autosaver{
		store:    store,
		userID:   userID,
		courseID: courseID,
		opts:     opts,
		log:      logger.ForSession(log, "autosave", userID, courseID),
		kick:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go a.run()
	return a
}

// Enqueue implements Checkpointer. The newest revision replaces any pending one and
// cancels a write still in flight.
func (a *Autosaver) Enqueue(state model.SessionState) {
	a.mu.Lock()
	if a.closed || state.Revision <= a.savedRev {
		a.mu.Unlock()
		return
	}
	if a.pending == nil || state.Revision > a.pending.Revision {
		st := state
		a.pending = &st
	}
	if a.inflight != nil {
		a.inflight()
	}
	a.mu.Unlock()

	a.signal()
}

// Save implements Checkpointer.
func (a *Autosaver) Save(ctx context.Context, state model.SessionState) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrCheckpointerClosed
	}
	if a.pending != nil && a.pending.Revision <= state.Revision {
		a.pending = nil
	}
	if a.inflight != nil {
		a.inflight()
	}
	a.mu.Unlock()

	return a.write(ctx, state)
}

// Flush writes a pending snapshot immediately. Used when the process is about to exit.
func (a *Autosaver) Flush(ctx context.Context) error {
	a.mu.Lock()
	st := a.pending
	a.pending = nil
	a.mu.Unlock()

	if st == nil {
		return nil
	}
	return a.write(ctx, *st)
}

// Discard implements Checkpointer. It waits for a write in progress, deletes the
// checkpoint and stops the writer.
func (a *Autosaver) Discard(ctx context.Context) error {
	a.mu.Lock()
	a.closed = true
	a.pending = nil
	if a.inflight != nil {
		a.inflight()
	}
	a.mu.Unlock()
	a.stop()

	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	if err := a.store.Delete(ctx, a.userID, a.courseID); err != nil {
		return errors.Join(ErrPersistenceUnavailable, err)
	}
	return nil
}

// Close stops the writer and keeps the stored checkpoint as it is.
func (a *Autosaver) Close() {
	a.mu.Lock()
	a.closed = true
	a.pending = nil
	a.mu.Unlock()
	a.stop()
}

// Status implements Checkpointer.
func (a *Autosaver) Status() SaveStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

func (a *Autosaver) stop() {
	a.stopOnce.Do(func() { close(a.done) })
}

func (a *Autosaver) signal() {
	select {
	case a.kick <- struct{}{}:
	default:
	}
}

func (a *Autosaver) run() {
	for {
		select {
		case <-a.done:
			return
		case <-a.kick:
		}

		t := time.NewTimer(a.delay())
		select {
		case <-a.done:
			t.Stop()
			return
		case <-t.C:
		}

		a.mu.Lock()
		st := a.pending
		a.pending = nil
		a.mu.Unlock()
		if st == nil {
			continue
		}
		_ = a.write(context.Background(), *st)
	}
}

// delay is the debounce window, stretched exponentially after consecutive failures.
func (a *Autosaver) delay() time.Duration {
	a.mu.Lock()
	failures := a.failures
	a.mu.Unlock()

	d := a.opts.Debounce
	for i := 0; i < failures && d < a.opts.MaxBackoff; i++ {
		d *= 2
	}
	if d > a.opts.MaxBackoff {
		d = a.opts.MaxBackoff
	}
	return d
}

func (a *Autosaver) write(parent context.Context, state model.SessionState) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrCheckpointerClosed
	}
	if state.Revision <= a.savedRev {
		a.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithTimeout(parent, a.opts.WriteTimeout)
	a.inflight = cancel
	a.mu.Unlock()

	err := a.store.Save(ctx, a.userID, a.courseID, state)
	cancel()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.inflight = nil

	if err == nil {
		a.savedRev = state.Revision
		a.failures = 0
		a.status = SaveStatus{LastSavedAt: time.Now()}
		return nil
	}

	if a.pending != nil && a.pending.Revision > state.Revision {
		// Superseded; the newer snapshot is already queued.
		return nil
	}

	a.failures++
	a.status.LastError = err
	a.log.Warn().Err(err).Int64("revision", state.Revision).Int("failures", a.failures).
		Msg("Checkpoint write failed, will retry")
	if !a.closed && a.pending == nil {
		st := state
		a.pending = &st
		a.signal()
	}
	return errors.Join(ErrPersistenceUnavailable, err)
}
