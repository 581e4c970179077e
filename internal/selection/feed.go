package selection

import (
	"context"
	"sync"
)

// FetchFunc loads the candidate rows for a view given its current filter
// state. It must honour ctx cancellation.
type FetchFunc[T any] func(ctx context.Context, state State) ([]T, error)

// Feed re-fetches a view's rows whenever its predicate changes. Starting a
// fetch cancels the previous one, and a response that is no longer the
// latest is dropped, so stale rows never overwrite fresher ones. A state
// whose Version is not newer than one already fetched is ignored; states
// with a zero Version are always fetched.
type Feed[T any] struct {
	fetch FetchFunc[T]

	mu       sync.Mutex
	gen      uint64
	seen     uint64
	cancel   context.CancelFunc
	rows     []T
	err      error
	closed   bool
	onUpdate func(rows []T, err error)
}

func NewFeed[T any](fetch FetchFunc[T], onUpdate func(rows []T, err error)) *Feed[T] {
	return &Feed[T]{fetch: fetch, onUpdate: onUpdate}
}

// Update starts a fetch for state. The returned channel closes once that
// fetch has finished, whether its result was applied or dropped.
func (f *Feed[T]) Update(ctx context.Context, state State) <-chan struct{} {
	done := make(chan struct{})

	f.mu.Lock()
	if f.closed || (state.Version != 0 && state.Version <= f.seen) {
		f.mu.Unlock()
		close(done)
		return done
	}
	if state.Version > f.seen {
		f.seen = state.Version
	}
	if f.cancel != nil {
		f.cancel()
	}
	f.gen++
	gen := f.gen
	fetchCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		rows, err := f.fetch(fetchCtx, state.clone())

		f.mu.Lock()
		if gen != f.gen || f.closed {
			f.mu.Unlock()
			return
		}
		f.rows, f.err = rows, err
		f.cancel = nil
		notify := f.onUpdate
		f.mu.Unlock()

		if notify != nil {
			notify(rows, err)
		}
	}()
	return done
}

// Bind refetches on every state change of c, starting with its current state.
func (f *Feed[T]) Bind(ctx context.Context, c *Controller) (unbind func()) {
	unsubscribe := c.OnChange(func(s State) { f.Update(ctx, s) })
	f.Update(ctx, c.State())
	return unsubscribe
}

// Rows returns the latest applied result.
func (f *Feed[T]) Rows() ([]T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows, f.err
}

// Close cancels any fetch in flight and ignores all later results.
func (f *Feed[T]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.gen++
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
}
