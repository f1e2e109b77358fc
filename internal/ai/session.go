package ai

import (
	"context"
	"sync"
)

// SessionRegistry owns one long-lived session per key. The first caller for a
// key creates the session while later callers wait for it; a failed creation
// is not cached. Turns on the same session are serialised: Acquire holds the
// session until the returned release func is called.
type SessionRegistry[S any] struct {
	mu      sync.Mutex
	entries map[string]*sessionEntry[S]
}

type sessionEntry[S any] struct {
	ready chan struct{}
	sess  S
	err   error
	turn  chan struct{}
}

func NewSessionRegistry[S any]() *SessionRegistry[S] {
	return &SessionRegistry[S]{entries: make(map[string]*sessionEntry[S])}
}

func (r *SessionRegistry[S]) Acquire(ctx context.Context, key string, create func(ctx context.Context) (S, error)) (S, func(), error) {
	var zero S
	entry, err := r.get(ctx, key, create)
	if err != nil {
		return zero, nil, err
	}
	select {
	case entry.turn <- struct{}{}:
	case <-ctx.Done():
		return zero, nil, ctx.Err()
	}
	var once sync.Once
	release := func() {
		once.Do(func() { <-entry.turn })
	}
	return entry.sess, release, nil
}

func (r *SessionRegistry[S]) get(ctx context.Context, key string, create func(ctx context.Context) (S, error)) (*sessionEntry[S], error) {
	r.mu.Lock()
	entry, ok := r.entries[key]
	if !ok {
		entry = &sessionEntry[S]{ready: make(chan struct{}), turn: make(chan struct{}, 1)}
		r.entries[key] = entry
		r.mu.Unlock()

		entry.sess, entry.err = create(ctx)
		if entry.err != nil {
			r.mu.Lock()
			delete(r.entries, key)
			r.mu.Unlock()
		}
		close(entry.ready)
		return entry, entry.err
	}
	r.mu.Unlock()

	select {
	case <-entry.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if entry.err != nil {
		return nil, entry.err
	}
	return entry, nil
}

func (r *SessionRegistry[S]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
