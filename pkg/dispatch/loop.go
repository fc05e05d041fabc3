package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"hostbridge/pkg/logger"
)

// Loop is a UI run loop: one goroutine, locked to its OS thread, draining an
// unbounded FIFO of posted work.
type Loop struct {
	log  *slog.Logger
	wake chan struct{}
	stop chan struct{}

	stopOnce sync.Once
	owner    atomic.Int64

	mu     sync.Mutex
	queue  []func()
	closed bool
}

// NewLoop returns a loop that accepts work immediately; nothing runs until Run is called.
func NewLoop(log *slog.Logger) *Loop {
	return &Loop{
		log:  logger.Component(log, "dispatch.loop"),
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
}

// Run executes posted work on the calling goroutine until ctx is done or
// Close is called. Work accepted before the loop closed still runs before Run
// returns.
func (l *Loop) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if !l.owner.CompareAndSwap(0, currentThreadID()) {
		return errors.New("dispatch: loop is already running")
	}
	defer l.owner.Store(0)

	l.log.Debug("UI loop started")
	for {
		l.drain()

		select {
		case <-ctx.Done():
			l.Close()
			l.drain()
			l.log.Debug("UI loop stopped", "reason", ctx.Err())
			return nil
		case <-l.stop:
			l.drain()
			l.log.Debug("UI loop stopped", "reason", "closed")
			return nil
		case <-l.wake:
		}
	}
}

// Close stops the loop from accepting work. Later Dispatch calls fail with
// ErrLoopClosed.
func (l *Loop) Close() {
	l.stopOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()
		close(l.stop)
	})
}

// CheckAccess reports whether the caller runs on the loop's goroutine.
func (l *Loop) CheckAccess() bool {
	owner := l.owner.Load()
	return owner != 0 && owner == currentThreadID()
}

// Dispatch queues fn behind previously posted work.
func (l *Loop) Dispatch(fn func()) error {
	if fn == nil {
		return errors.New("dispatch: work is nil")
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLoopClosed
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}

	return nil
}

// Pending returns the number of queued items not yet started.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.queue)
}

func (l *Loop) drain() {
	for {
		fn, ok := l.next()
		if !ok {
			return
		}
		l.execute(fn)
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.queue) == 0 {
		return nil, false
	}

	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}

// execute keeps a panicking item from taking the loop down.
func (l *Loop) execute(fn func()) {
	defer func() {
		if recovered := recover(); recovered != nil {
			l.log.Error("Dispatched work panicked", "panic", recovered)
		}
	}()

	fn()
}
