package store

import (
	"context"

	"github.com/tbourn/go-mess-offline/internal/domain"
)

// Task is the pending result of an asynchronous store write. Callers may Wait
// for it or simply drop it; the write completes either way.
type Task[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func run[T any](fn func() (T, error)) *Task[T] {
	t := &Task[T]{done: make(chan struct{})}
	go func() {
		defer close(t.done)
		t.val, t.err = fn()
	}()
	return t
}

// Done is closed once the write has finished.
func (t *Task[T]) Done() <-chan struct{} { return t.done }

// Wait blocks until the write finishes or ctx is done. Abandoning the wait
// does not cancel the write.
func (t *Task[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.val, t.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// PutAsync runs Put in the background, detached from ctx cancellation.
func (s *Store) PutAsync(ctx context.Context, rec domain.StoredRecord) *Task[struct{}] {
	ctx = context.WithoutCancel(ctx)
	rec = rec.Clone()
	return run(func() (struct{}, error) {
		return struct{}{}, s.Put(ctx, rec)
	})
}

// EnqueueActionAsync runs EnqueueAction in the background, detached from ctx
// cancellation.
func (s *Store) EnqueueActionAsync(ctx context.Context, actionType string, data any) *Task[domain.QueuedAction] {
	ctx = context.WithoutCancel(ctx)
	return run(func() (domain.QueuedAction, error) {
		return s.EnqueueAction(ctx, actionType, data)
	})
}
