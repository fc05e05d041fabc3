package dispatch

import (
	"context"
	"sync"
)

// Awaitable is an operation that completes later, off the caller's goroutine.
type Awaitable[T any] interface {
	Done() <-chan struct{}
	// Result returns the outcome. It is only meaningful once Done is closed.
	Result() (T, error)
}

// Future is a single-resolution completion handle for one dispatched item.
type Future[T any] struct {
	done chan struct{}
	once sync.Once

	value T
	err   error
}

// NewFuture returns an unresolved future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolve completes the future. Only the first call has an effect; it reports
// whether this call was the one that resolved it.
func (f *Future[T]) Resolve(value T, err error) bool {
	resolved := false
	f.once.Do(func() {
		f.value = value
		f.err = err
		resolved = true
		close(f.done)
	})

	return resolved
}

// Done is closed once the future is resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Result returns the resolved value and error. Before resolution it returns
// the zero value and a nil error.
func (f *Future[T]) Result() (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	default:
		var zero T
		return zero, nil
	}
}

// Wait blocks until the future resolves or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
