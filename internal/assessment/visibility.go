package assessment

import "sync"

// VisibilitySignal is a VisibilityObserver fed by the transport layer, for example
// a WebSocket message or a closed connection.
type VisibilitySignal struct {
	mu     sync.Mutex
	next   int
	subs   map[int]func(hidden bool)
	hidden bool
}

func NewVisibilitySignal() *VisibilitySignal {
	return &VisibilitySignal{subs: make(map[int]func(bool))}
}

// Subscribe implements VisibilityObserver.
func (v *VisibilitySignal) Subscribe(fn func(hidden bool)) (cancel func()) {
	v.mu.Lock()
	id := v.next
	v.next++
	v.subs[id] = fn
	v.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			v.mu.Lock()
			delete(v.subs, id)
			v.mu.Unlock()
		})
	}
}

// Notify delivers the visibility change to every subscriber. Subscribers run
// synchronously on the caller's goroutine, outside the signal's lock.
func (v *VisibilitySignal) Notify(hidden bool) {
	v.mu.Lock()
	v.hidden = hidden
	fns := make([]func(bool), 0, len(v.subs))
	for _, fn := range v.subs {
		fns = append(fns, fn)
	}
	v.mu.Unlock()

	for _, fn := range fns {
		fn(hidden)
	}
}

// Hidden reports the last notified state.
func (v *VisibilitySignal) Hidden() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.hidden
}
