package dispatch

import "context"

// Invoke runs fn on the UI loop and resolves the returned future when it finishes.
func Invoke(d Dispatcher, fn func() error) *Future[struct{}] {
	return InvokeValue(d, func() (struct{}, error) {
		return struct{}{}, fn()
	})
}

// InvokeValue runs fn on the UI loop and resolves the returned future with its
// result. An error or panic from fn resolves the future with a *WorkError.
// If the item cannot be posted the future resolves immediately with the
// dispatch error.
func InvokeValue[T any](d Dispatcher, fn func() (T, error)) *Future[T] {
	future := NewFuture[T]()

	err := d.Dispatch(func() {
		value, err := runGuarded(fn)
		future.Resolve(value, err)
	})
	if err != nil {
		var zero T
		future.Resolve(zero, err)
	}

	return future
}

// InvokeAwait starts a suspending operation on the UI loop and resolves the
// returned future once that operation completes. The loop is released as soon
// as fn returns; the operation is awaited on its own goroutine, so later work
// may run on the loop in the meantime.
func InvokeAwait[T any](d Dispatcher, fn func() Awaitable[T]) *Future[T] {
	future := NewFuture[T]()

	err := d.Dispatch(func() {
		var op Awaitable[T]
		done, err := runGuarded(func() (<-chan struct{}, error) {
			op = fn()
			if op == nil {
				return nil, nil
			}
			return op.Done(), nil
		})
		if err != nil || op == nil {
			var zero T
			future.Resolve(zero, err)
			return
		}

		go func() {
			<-done
			value, err := op.Result()
			if err != nil {
				err = &WorkError{Phase: PhaseAwait, Err: err}
			}
			future.Resolve(value, err)
		}()
	})
	if err != nil {
		var zero T
		future.Resolve(zero, err)
	}

	return future
}

// Call runs fn on the UI loop and waits for its result. When the caller is
// already on the loop fn runs inline, so re-entrant calls cannot deadlock.
func Call[T any](ctx context.Context, d Dispatcher, fn func() (T, error)) (T, error) {
	if d.CheckAccess() {
		return runGuarded(fn)
	}

	return InvokeValue(d, fn).Wait(ctx)
}

func runGuarded[T any](fn func() (T, error)) (value T, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			var zero T
			value = zero
			err = &WorkError{Phase: PhaseRun, Panic: recovered}
		}
	}()

	value, err = fn()
	if err != nil {
		err = &WorkError{Phase: PhaseRun, Err: err}
	}

	return value, err
}
